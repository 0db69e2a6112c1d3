// Package device defines the field device model and its SQLite
// persistence.
//
// Devices are sensors and actuators attached to a farm's field
// controllers. The engine reads device status for DEVICE_STATUS
// conditions and updates operating state after dispatching commands;
// the telemetry listener keeps status and last-seen current from MQTT
// state reports.
package device
