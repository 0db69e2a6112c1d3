package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/croftonlabs/crofton-core/internal/sensor"
)

// measurementSensorReadings is the measurement all sensor telemetry is
// written under. Each reported field becomes an InfluxDB field.
const measurementSensorReadings = "sensor_readings"

// WriteSensorReading records a sensor snapshot.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Nil fields in the snapshot are not written.
func (c *Client) WriteSensorReading(farmID string, snap sensor.Snapshot) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{})
	for _, field := range []struct {
		name  string
		value *float64
	}{
		{"temperature", snap.Temperature},
		{"humidity", snap.Humidity},
		{"soil_moisture", snap.SoilMoisture},
		{"light_intensity", snap.LightIntensity},
		{"soil_ph", snap.SoilPH},
	} {
		if field.value != nil {
			fields[field.name] = *field.value
		}
	}
	if len(fields) == 0 {
		return
	}

	timestamp := snap.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	point := write.NewPoint(
		measurementSensorReadings,
		map[string]string{
			"device_id": snap.DeviceID,
			"farm_id":   farmID,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Use for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
