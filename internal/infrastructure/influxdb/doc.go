// Package influxdb provides time-series storage for Crofton Core.
//
// Sensor telemetry arriving over MQTT is written here through a batched,
// non-blocking write API. The rule engine reads the latest reading per
// sensor device back with a single Flux query at the start of each
// evaluation cycle.
//
// Write errors are asynchronous; register a callback with SetOnError to
// log them.
package influxdb
