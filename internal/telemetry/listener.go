// Package telemetry ingests MQTT traffic from field controllers:
// device state reports feed the device table, sensor readings feed the
// time-series store.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/croftonlabs/crofton-core/internal/device"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/mqtt"
	"github.com/croftonlabs/crofton-core/internal/sensor"
)

// handlerTimeout bounds the database work done per incoming message.
const handlerTimeout = 5 * time.Second

// Subscriber is the slice of the MQTT client the listener needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SensorWriter records sensor snapshots. Satisfied by influxdb.Client.
type SensorWriter interface {
	WriteSensorReading(farmID string, snap sensor.Snapshot)
}

// DeviceStore is the slice of the device repository the listener needs.
type DeviceStore interface {
	MarkSeen(ctx context.Context, deviceID string, status device.Status, seenAt time.Time) error
	UpdateOperatingState(ctx context.Context, deviceID string, state device.OperatingState) error
}

// Listener subscribes to the state and sensor topics and keeps the
// device table and time-series store current.
type Listener struct {
	sub     Subscriber
	devices DeviceStore
	writer  SensorWriter
	farmID  string
	qos     byte
	log     *logging.Logger

	baseCtx context.Context
}

// NewListener creates a telemetry listener. writer may be nil when
// time-series storage is disabled; sensor readings then only refresh
// device liveness.
func NewListener(sub Subscriber, devices DeviceStore, writer SensorWriter, farmID string, qos byte, log *logging.Logger) *Listener {
	return &Listener{
		sub:     sub,
		devices: devices,
		writer:  writer,
		farmID:  farmID,
		qos:     qos,
		log:     log.With("component", "telemetry"),
	}
}

// Start subscribes to the telemetry topics. The context bounds the
// lifetime of message handling, not the subscriptions themselves.
func (l *Listener) Start(ctx context.Context) error {
	l.baseCtx = ctx

	topics := mqtt.Topics{}
	if err := l.sub.Subscribe(topics.AllDeviceStates(), l.qos, l.handleState); err != nil {
		return fmt.Errorf("subscribing to device states: %w", err)
	}
	if err := l.sub.Subscribe(topics.AllSensorReadings(), l.qos, l.handleSensors); err != nil {
		return fmt.Errorf("subscribing to sensor readings: %w", err)
	}

	l.log.Info("telemetry listener started",
		"state_topic", topics.AllDeviceStates(),
		"sensor_topic", topics.AllSensorReadings())
	return nil
}

// statePayload is the wire format on crofton/state/{deviceID}.
type statePayload struct {
	Status         device.Status         `json:"status"`
	OperatingState device.OperatingState `json:"operating_state,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

func (l *Listener) handleState(topic string, payload []byte) error {
	deviceID := mqtt.Topics{}.DeviceIDFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("state topic %q has no device segment", topic)
	}

	var msg statePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding state for %s: %w", deviceID, err)
	}

	status := msg.Status
	if status == "" {
		status = device.StatusOnline
	}
	seenAt := msg.Timestamp
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(l.baseCtx, handlerTimeout)
	defer cancel()

	if err := l.devices.MarkSeen(ctx, deviceID, status, seenAt); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			l.log.Warn("state report from unregistered device", "device_id", deviceID)
			return nil
		}
		return fmt.Errorf("marking %s seen: %w", deviceID, err)
	}

	if msg.OperatingState != "" {
		if err := l.devices.UpdateOperatingState(ctx, deviceID, msg.OperatingState); err != nil {
			return fmt.Errorf("updating %s operating state: %w", deviceID, err)
		}
	}
	return nil
}

func (l *Listener) handleSensors(topic string, payload []byte) error {
	deviceID := mqtt.Topics{}.DeviceIDFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("sensor topic %q has no device segment", topic)
	}

	var snap sensor.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("decoding readings for %s: %w", deviceID, err)
	}
	snap.DeviceID = deviceID
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(l.baseCtx, handlerTimeout)
	defer cancel()

	// A reading counts as a heartbeat regardless of storage.
	if err := l.devices.MarkSeen(ctx, deviceID, device.StatusOnline, snap.Timestamp); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			l.log.Warn("readings from unregistered device", "device_id", deviceID)
			return nil
		}
		return fmt.Errorf("marking %s seen: %w", deviceID, err)
	}

	if l.writer != nil {
		l.writer.WriteSensorReading(l.farmID, snap)
	}
	return nil
}
