package device

import "time"

// Status is the connectivity state of a device as reported by its
// field controller.
type Status string

// Connectivity states.
const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// OperatingState is the last known actuator state.
type OperatingState string

// Actuator states.
const (
	StateOn  OperatingState = "ON"
	StateOff OperatingState = "OFF"
)

// Type classifies what a device is.
type Type string

// Device types.
const (
	TypeSensor   Type = "SENSOR"
	TypeActuator Type = "ACTUATOR"
)

// Device represents a field device: a sensor probe or an actuator such
// as a pump, valve, fan or light.
//
// ID is the internal row key; DeviceID is the stable identifier the
// device uses on MQTT topics and in rule conditions.
type Device struct {
	ID             string         `json:"id"`
	DeviceID       string         `json:"device_id"`
	FarmID         string         `json:"farm_id"`
	Name           string         `json:"name"`
	Type           Type           `json:"type"`
	Status         Status         `json:"status"`
	OperatingState OperatingState `json:"operating_state"`
	LastSeenAt     *time.Time     `json:"last_seen_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// IsOn reports whether the actuator is currently on.
func (d *Device) IsOn() bool {
	return d.OperatingState == StateOn
}
