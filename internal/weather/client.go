package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/config"
)

// Sentinel errors for weather operations. Check with errors.Is().
var (
	// ErrDisabled indicates the weather integration is disabled in config.
	ErrDisabled = errors.New("weather: disabled in configuration")

	// ErrRequestFailed indicates the upstream API call failed.
	ErrRequestFailed = errors.New("weather: request failed")
)

// maxResponseSize caps the upstream response body at 1MB.
const maxResponseSize = 1 << 20

// Snapshot is one observation of current conditions at the farm site.
type Snapshot struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	RainAmount  float64   `json:"rain_amount"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Value returns the named weather field. "rain" is accepted as an
// alias for "rain_amount". ok is false for unknown fields.
func (s Snapshot) Value(field string) (value float64, ok bool) {
	switch strings.ToLower(field) {
	case "temperature":
		return s.Temperature, true
	case "humidity":
		return s.Humidity, true
	case "wind_speed":
		return s.WindSpeed, true
	case "rain_amount", "rain":
		return s.RainAmount, true
	}
	return 0, false
}

// Client fetches current conditions from an OpenWeatherMap-compatible
// API and caches them per farm so one observation serves many cycles.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	latitude   float64
	longitude  float64
	cache      *gocache.Cache
}

// NewClient creates a weather client for a single farm site.
// Returns ErrDisabled when the integration is off in config.
func NewClient(cfg config.WeatherConfig, latitude, longitude float64) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		latitude:   latitude,
		longitude:  longitude,
		cache:      gocache.New(cacheTTL, 2*cacheTTL),
	}, nil
}

// Current returns the current conditions for the farm, served from
// cache when a recent observation exists.
func (c *Client) Current(ctx context.Context, farmID string) (*Snapshot, error) {
	if cached, found := c.cache.Get(farmID); found {
		snap := cached.(Snapshot)
		return &snap, nil
	}

	snap, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(farmID, *snap)
	return snap, nil
}

// owmResponse is the subset of the OpenWeatherMap current-weather
// payload that rules can reference.
type owmResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

func (c *Client) fetch(ctx context.Context) (*Snapshot, error) {
	endpoint := fmt.Sprintf("%s?lat=%s&lon=%s&appid=%s&units=metric",
		c.baseURL,
		url.QueryEscape(fmt.Sprintf("%g", c.latitude)),
		url.QueryEscape(fmt.Sprintf("%g", c.longitude)),
		url.QueryEscape(c.apiKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}

	var parsed owmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}

	return &Snapshot{
		Temperature: parsed.Main.Temp,
		Humidity:    parsed.Main.Humidity,
		WindSpeed:   parsed.Wind.Speed,
		RainAmount:  parsed.Rain.OneHour,
		FetchedAt:   time.Now().UTC(),
	}, nil
}
