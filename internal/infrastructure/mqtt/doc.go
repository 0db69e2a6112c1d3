// Package mqtt provides MQTT connectivity for Crofton Core.
//
// This package wraps paho.mqtt.golang with:
//   - Connection management with auto-reconnect and backoff
//   - Last Will and Testament for offline detection
//   - Subscription tracking and restore after reconnect
//   - Panic-safe message handlers
//   - Topic builders for the Crofton topic scheme
//
// Topic scheme:
//
//	crofton/command/{deviceID}   actuator commands from Core
//	crofton/state/{deviceID}     device state reports from controllers
//	crofton/sensors/{deviceID}   sensor telemetry from controllers
//	crofton/system/status        Core online/offline status (retained)
package mqtt
