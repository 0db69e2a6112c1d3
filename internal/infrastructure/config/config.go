package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Crofton Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Farm     FarmConfig     `yaml:"farm"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Redis    RedisConfig    `yaml:"redis"`
	Weather  WeatherConfig  `yaml:"weather"`
	Engine   EngineConfig   `yaml:"engine"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// FarmConfig contains farm-specific information.
type FarmConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	OwnerID  string         `yaml:"owner_id"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for the weather provider.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for the sensor store.
// When Enabled is false the engine runs without sensor history: SENSOR_VALUE
// conditions evaluate to false and telemetry is not persisted.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains settings for the TTL suppression store.
// When Enabled is false an in-process expiring store is used instead,
// suitable for single-binary deployments and tests.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WeatherConfig contains weather provider settings.
type WeatherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// EngineConfig contains rule engine timing settings.
type EngineConfig struct {
	// CycleInterval is the fixed delay between the end of one evaluation
	// cycle and the start of the next.
	CycleInterval time.Duration `yaml:"cycle_interval"`

	// InitialDelay is how long the runner waits after startup before the
	// first cycle, giving telemetry a chance to populate.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// RuleCooldown is the minimum interval between executions of the same rule.
	RuleCooldown time.Duration `yaml:"rule_cooldown"`

	// NotificationCooldown is the minimum interval between notifications
	// emitted by the same rule. Independent of RuleCooldown.
	NotificationCooldown time.Duration `yaml:"notification_cooldown"`

	// SensorStaleness is the maximum age of a sensor snapshot before it is
	// treated as absent by the evaluator.
	SensorStaleness time.Duration `yaml:"sensor_staleness"`

	// OverrideTTL is how long a manual operator override suppresses
	// automated control of a device.
	OverrideTTL time.Duration `yaml:"override_ttl"`
}

// AuditConfig contains execution log retention settings.
type AuditConfig struct {
	// Retention is how long execution log entries are kept.
	Retention time.Duration `yaml:"retention"`

	// CleanupSchedule is a cron expression for the retention job.
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CROFTON_SECTION_KEY
// For example: CROFTON_DATABASE_PATH, CROFTON_REDIS_ADDR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Farm: FarmConfig{
			ID:       "farm-001",
			Name:     "Crofton",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/crofton.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "crofton-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       true,
			URL:           "http://localhost:8086",
			Org:           "crofton",
			Bucket:        "sensor_data",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Weather: WeatherConfig{
			BaseURL:  "https://api.openweathermap.org/data/2.5",
			Timeout:  10 * time.Second,
			CacheTTL: 10 * time.Minute,
		},
		Engine: EngineConfig{
			CycleInterval:        30 * time.Second,
			InitialDelay:         10 * time.Second,
			RuleCooldown:         5 * time.Minute,
			NotificationCooldown: 60 * time.Minute,
			SensorStaleness:      15 * time.Minute,
			OverrideTTL:          30 * time.Minute,
		},
		Audit: AuditConfig{
			Retention:       7 * 24 * time.Hour,
			CleanupSchedule: "0 2 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CROFTON_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CROFTON_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("CROFTON_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CROFTON_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CROFTON_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("CROFTON_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("CROFTON_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("CROFTON_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CROFTON_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CROFTON_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	if v := os.Getenv("CROFTON_WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}

	if v := os.Getenv("CROFTON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for invalid or inconsistent values.
//
// Returns:
//   - error: Describing the first invalid field found, or nil
func (c *Config) Validate() error {
	if c.Farm.ID == "" {
		return fmt.Errorf("farm.id is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout must not be negative")
	}
	if c.MQTT.Broker.Host == "" {
		return fmt.Errorf("mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		return fmt.Errorf("mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.org and influxdb.bucket are required")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Weather.Enabled && c.Weather.APIKey == "" {
		return fmt.Errorf("weather.api_key is required when weather is enabled")
	}
	if c.Engine.CycleInterval <= 0 {
		return fmt.Errorf("engine.cycle_interval must be positive")
	}
	if c.Engine.RuleCooldown < 0 || c.Engine.NotificationCooldown < 0 {
		return fmt.Errorf("engine cooldowns must not be negative")
	}
	if c.Engine.SensorStaleness <= 0 {
		return fmt.Errorf("engine.sensor_staleness must be positive")
	}
	if c.Engine.OverrideTTL <= 0 {
		return fmt.Errorf("engine.override_ttl must be positive")
	}
	if c.Audit.Retention <= 0 {
		return fmt.Errorf("audit.retention must be positive")
	}
	return nil
}
