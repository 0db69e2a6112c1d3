// Package sensor defines the sensor reading types shared by the
// telemetry ingest path and the rule engine.
package sensor
