package sensor

import (
	"strings"
	"time"
)

// Canonical sensor field names. Rule conditions reference these; Value
// normalises aliases like "soil_moisture" onto them.
const (
	FieldTemperature    = "temperature"
	FieldHumidity       = "humidity"
	FieldSoilMoisture   = "soilmoisture"
	FieldLightIntensity = "lightintensity"
	FieldSoilPH         = "soilph"
)

// Snapshot is the latest known set of readings for one sensor device.
//
// Fields are pointers: nil means the device has never reported that
// field, which is distinct from a reading of zero.
type Snapshot struct {
	DeviceID       string    `json:"device_id"`
	Temperature    *float64  `json:"temperature,omitempty"`
	Humidity       *float64  `json:"humidity,omitempty"`
	SoilMoisture   *float64  `json:"soil_moisture,omitempty"`
	LightIntensity *float64  `json:"light_intensity,omitempty"`
	SoilPH         *float64  `json:"soil_ph,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NormalizeField maps a condition's field name onto the canonical form:
// lowercase with underscores stripped, so "Soil_Moisture" and
// "soilMoisture" both resolve to "soilmoisture".
func NormalizeField(field string) string {
	return strings.ReplaceAll(strings.ToLower(field), "_", "")
}

// Value returns the reading for the named field. ok is false when the
// field is unknown or the device has never reported it.
func (s Snapshot) Value(field string) (value float64, ok bool) {
	var p *float64
	switch NormalizeField(field) {
	case FieldTemperature:
		p = s.Temperature
	case FieldHumidity:
		p = s.Humidity
	case FieldSoilMoisture:
		p = s.SoilMoisture
	case FieldLightIntensity:
		p = s.LightIntensity
	case FieldSoilPH:
		p = s.SoilPH
	default:
		return 0, false
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// IsStale reports whether the snapshot is older than maxAge at the
// given instant. A zero Timestamp is always stale.
func (s Snapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.Timestamp.IsZero() {
		return true
	}
	return now.Sub(s.Timestamp) > maxAge
}

// Set assigns a reading to the named field. Unknown fields are ignored
// so telemetry payloads can carry extra keys without breaking ingest.
func (s *Snapshot) Set(field string, value float64) {
	v := value
	switch NormalizeField(field) {
	case FieldTemperature:
		s.Temperature = &v
	case FieldHumidity:
		s.Humidity = &v
	case FieldSoilMoisture:
		s.SoilMoisture = &v
	case FieldLightIntensity:
		s.LightIntensity = &v
	case FieldSoilPH:
		s.SoilPH = &v
	}
}
