package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/config"
)

const owmBody = `{
	"main": {"temp": 18.4, "humidity": 72},
	"wind": {"speed": 3.1},
	"rain": {"1h": 0.6}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(config.WeatherConfig{
		Enabled:  true,
		BaseURL:  server.URL,
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
		CacheTTL: 10 * time.Minute,
	}, 51.5, -0.12)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClientDisabled(t *testing.T) {
	_, err := NewClient(config.WeatherConfig{Enabled: false}, 0, 0)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("NewClient() error = %v, want ErrDisabled", err)
	}
}

func TestCurrent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("appid"); got != "test-key" {
			t.Errorf("appid = %q, want test-key", got)
		}
		if got := r.URL.Query().Get("units"); got != "metric" {
			t.Errorf("units = %q, want metric", got)
		}
		w.Write([]byte(owmBody)) //nolint:errcheck // Test handler
	})

	snap, err := client.Current(context.Background(), "farm-1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}

	if snap.Temperature != 18.4 || snap.Humidity != 72 || snap.WindSpeed != 3.1 || snap.RainAmount != 0.6 {
		t.Errorf("Current() = %+v, fields do not match response", snap)
	}
}

func TestCurrentCaches(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(owmBody)) //nolint:errcheck // Test handler
	})

	for i := 0; i < 3; i++ {
		if _, err := client.Current(context.Background(), "farm-1"); err != nil {
			t.Fatalf("Current() error = %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream called %d times, want 1 (cached)", calls.Load())
	}

	// Different farm key misses the cache.
	if _, err := client.Current(context.Background(), "farm-2"); err != nil {
		t.Fatalf("Current(farm-2) error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream called %d times after second farm, want 2", calls.Load())
	}
}

func TestCurrentUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Current(context.Background(), "farm-1")
	if !errors.Is(err, ErrRequestFailed) {
		t.Errorf("Current() error = %v, want ErrRequestFailed", err)
	}
}

func TestCurrentMissingRainBlock(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"main":{"temp":25.0,"humidity":40},"wind":{"speed":1.2}}`)) //nolint:errcheck // Test handler
	})

	snap, err := client.Current(context.Background(), "farm-1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if snap.RainAmount != 0 {
		t.Errorf("RainAmount = %v, want 0 when rain block absent", snap.RainAmount)
	}
}

func TestValue(t *testing.T) {
	snap := Snapshot{Temperature: 20, Humidity: 55, WindSpeed: 4.2, RainAmount: 1.5}

	tests := []struct {
		field  string
		want   float64
		wantOK bool
	}{
		{"temperature", 20, true},
		{"humidity", 55, true},
		{"wind_speed", 4.2, true},
		{"rain_amount", 1.5, true},
		{"rain", 1.5, true},
		{"RAIN", 1.5, true},
		{"pressure", 0, false},
	}

	for _, tt := range tests {
		got, ok := snap.Value(tt.field)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Value(%q) = %v, %v; want %v, %v", tt.field, got, ok, tt.want, tt.wantOK)
		}
	}
}
