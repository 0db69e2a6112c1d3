package mqtt

import "fmt"

// Topic prefixes for the Crofton MQTT scheme.
//
// Field controllers publish sensor readings and device state under the
// crofton prefix; Core publishes actuator commands and system status.
const (
	// TopicPrefix is the base for all Crofton topics.
	TopicPrefix = "crofton"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "crofton/system"
)

// Topics provides builders for Crofton MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("pump-north-3")
//	// Returns: "crofton/command/pump-north-3"
type Topics struct{}

// DeviceCommand returns the topic for actuator commands to a device.
//
// Example: crofton/command/pump-north-3
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceState returns the topic for device state reports from a controller.
//
// Example: crofton/state/pump-north-3
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// SensorReadings returns the topic for sensor telemetry from a device.
//
// Example: crofton/sensors/soil-probe-7
func (Topics) SensorReadings(deviceID string) string {
	return fmt.Sprintf("%s/sensors/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the Core online/offline status topic.
//
// Example: crofton/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching all device state reports.
//
// Pattern: crofton/state/+
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllSensorReadings returns a pattern matching all sensor telemetry.
//
// Pattern: crofton/sensors/+
func (Topics) AllSensorReadings() string {
	return fmt.Sprintf("%s/sensors/+", TopicPrefix)
}

// DeviceIDFromTopic extracts the trailing device ID from a state or
// sensor topic. Returns "" if the topic has no device segment.
func (Topics) DeviceIDFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return ""
}
