// Package command dispatches actuator commands to field controllers
// over MQTT.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/mqtt"
)

// SourceRuleEngine tags commands originated by rule actions, so field
// controllers and log readers can tell them from manual commands.
const SourceRuleEngine = "rule-engine"

// Publisher is the slice of the MQTT client the transport needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Message is the wire format published to crofton/command/{deviceID}.
type Message struct {
	ID       string         `json:"id"`
	DeviceID string         `json:"device_id"`
	Action   string         `json:"action"`
	Params   map[string]any `json:"params,omitempty"`
	Source   string         `json:"source"`
	IssuedAt time.Time      `json:"issued_at"`
}

// Transport publishes actuator commands over MQTT.
type Transport struct {
	pub Publisher
	qos byte
}

// NewTransport creates a command transport on an existing publisher.
func NewTransport(pub Publisher, qos byte) *Transport {
	return &Transport{pub: pub, qos: qos}
}

// Send publishes a command for the device. Commands are not retained:
// a controller that was offline should not replay stale commands on
// reconnect.
func (t *Transport) Send(ctx context.Context, deviceID, action string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sending command to %s: %w", deviceID, err)
	}

	msg := Message{
		ID:       "cmd-" + uuid.NewString()[:8],
		DeviceID: deviceID,
		Action:   action,
		Params:   params,
		Source:   SourceRuleEngine,
		IssuedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling command for %s: %w", deviceID, err)
	}

	topic := mqtt.Topics{}.DeviceCommand(deviceID)
	if err := t.pub.Publish(topic, payload, t.qos, false); err != nil {
		return fmt.Errorf("publishing command to %s: %w", topic, err)
	}
	return nil
}
