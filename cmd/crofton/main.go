// Crofton Core - Farm Automation Rule Engine
//
// This is the main entry point for the Crofton Core application.
// Crofton Core evaluates declarative automation rules against sensor
// readings, time of day, device status and weather, arbitrates
// conflicting rules by priority, and dispatches actuator commands
// over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	_ "github.com/croftonlabs/crofton-core/migrations"

	"github.com/croftonlabs/crofton-core/internal/audit"
	"github.com/croftonlabs/crofton-core/internal/command"
	"github.com/croftonlabs/crofton-core/internal/device"
	"github.com/croftonlabs/crofton-core/internal/engine"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/config"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/database"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/influxdb"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/mqtt"
	"github.com/croftonlabs/crofton-core/internal/notify"
	"github.com/croftonlabs/crofton-core/internal/rules"
	"github.com/croftonlabs/crofton-core/internal/suppression"
	"github.com/croftonlabs/crofton-core/internal/telemetry"
	"github.com/croftonlabs/crofton-core/internal/weather"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Crofton Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	location, err := time.LoadLocation(cfg.Farm.Timezone)
	if err != nil {
		return fmt.Errorf("loading farm timezone %q: %w", cfg.Farm.Timezone, err)
	}

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := device.NewSQLiteRepository(db.DB)
	ruleRepo := rules.NewSQLiteRepository(db.DB)
	notifyRepo := notify.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional): without it the engine runs on
	// device state, time and weather conditions only.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Suppression store: Redis when configured, in-process otherwise
	var store suppression.Store
	if cfg.Redis.Enabled {
		redisClient := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing redis", "error", closeErr)
			}
		}()
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			return fmt.Errorf("connecting to redis: %w", pingErr)
		}
		store = suppression.NewRedisStore(redisClient)
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	} else {
		store = suppression.NewMemoryStore()
		log.Info("redis disabled, using in-process suppression store")
	}
	guard := suppression.NewGuard(store, cfg.Engine.OverrideTTL, cfg.Engine.NotificationCooldown)

	// Weather provider (optional)
	var weatherReader engine.WeatherReader
	if cfg.Weather.Enabled {
		weatherClient, weatherErr := weather.NewClient(cfg.Weather,
			cfg.Farm.Location.Latitude, cfg.Farm.Location.Longitude)
		if weatherErr != nil {
			return fmt.Errorf("creating weather client: %w", weatherErr)
		}
		weatherReader = weatherClient
		log.Info("weather provider enabled", "base_url", cfg.Weather.BaseURL)
	} else {
		log.Info("weather provider disabled")
	}

	// Telemetry listener keeps the device table and sensor history
	// current from controller reports.
	var writer telemetry.SensorWriter
	if influxClient != nil {
		writer = influxClient
	}
	listener := telemetry.NewListener(mqttClient, deviceRepo, writer,
		cfg.Farm.ID, byte(cfg.MQTT.QoS), log)
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("starting telemetry listener: %w", err)
	}
	log.Info("telemetry listener started")

	notifier := notify.NewService(notifyRepo, nil, log)
	transport := command.NewTransport(mqttClient, byte(cfg.MQTT.QoS))

	var sensorStore engine.SensorStore
	if influxClient != nil {
		sensorStore = influxClient
	}
	eng := engine.New(
		engine.Config{
			FarmID:          cfg.Farm.ID,
			OwnerID:         cfg.Farm.OwnerID,
			RuleCooldown:    cfg.Engine.RuleCooldown,
			SensorStaleness: cfg.Engine.SensorStaleness,
			Location:        location,
		},
		ruleRepo, sensorStore, deviceRepo, weatherReader,
		transport, notifier, guard, auditRepo, log,
	)

	// Audit retention cleanup
	retention := audit.NewRetentionJob(auditRepo, cfg.Audit.Retention, cfg.Audit.CleanupSchedule, log)
	if err := retention.Start(); err != nil {
		return fmt.Errorf("starting audit retention job: %w", err)
	}
	defer retention.Stop()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, starting evaluation loop")

	// Blocks until the shutdown signal cancels ctx
	runner := engine.NewRunner(eng, cfg.Engine.InitialDelay, cfg.Engine.CycleInterval, log)
	runner.Run(ctx)

	log.Info("shutdown signal received, cleaning up")
	log.Info("Crofton Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CROFTON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CROFTON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
