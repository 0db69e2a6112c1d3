package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/croftonlabs/crofton-core/internal/device"
	"github.com/croftonlabs/crofton-core/internal/rules"
)

// Wire-level command names understood by the device controllers.
const (
	commandTurnOn  = "turn_on"
	commandTurnOff = "turn_off"
)

// ActionResult describes the outcome of one action for the audit
// entry. Performed means the action took effect (a command was
// dispatched, a notification stored, or the device was already in the
// target state); conflict, override and cooldown skips are not
// performed.
type ActionResult struct {
	Type        rules.ActionType `json:"type"`
	DeviceID    string           `json:"device_id,omitempty"`
	Description string           `json:"description"`
	Performed   bool             `json:"performed"`
	Error       string           `json:"error,omitempty"`
}

// performActions executes the rule's actions in declared order.
// Failures are recorded per action and never abort the rest of the
// list.
func (e *Engine) performActions(ctx context.Context, rule *rules.Rule, claims claimSet) []ActionResult {
	results := make([]ActionResult, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		switch action.Type {
		case rules.ActionTurnOnDevice, rules.ActionTurnOffDevice:
			results = append(results, e.performDeviceAction(ctx, action, claims))
		case rules.ActionSendNotification, rules.ActionSendEmail:
			results = append(results, e.performNotification(ctx, rule, action))
		default:
			results = append(results, ActionResult{
				Type:        action.Type,
				Description: "unsupported action type",
				Error:       fmt.Sprintf("unsupported action type %q", action.Type),
			})
		}
	}
	return results
}

func (e *Engine) performDeviceAction(ctx context.Context, action rules.Action, claims claimSet) ActionResult {
	res := ActionResult{Type: action.Type, DeviceID: action.DeviceID}

	if claims.Has(action.DeviceID) {
		res.Description = fmt.Sprintf("skipped %s: already commanded by a higher-priority rule", action.DeviceID)
		return res
	}

	overridden, err := e.suppressor.IsOverridden(ctx, action.DeviceID)
	if err != nil {
		// Fail safe: when the override state is unknown, do not
		// command the device.
		res.Description = fmt.Sprintf("skipped %s: override check failed", action.DeviceID)
		res.Error = err.Error()
		return res
	}
	if overridden {
		res.Description = fmt.Sprintf("skipped %s: manual override active", action.DeviceID)
		return res
	}

	target := device.StateOn
	command := commandTurnOn
	if action.Type == rules.ActionTurnOffDevice {
		target = device.StateOff
		command = commandTurnOff
	}

	dev, err := e.devices.FindByDeviceID(ctx, action.DeviceID)
	if err != nil {
		res.Description = fmt.Sprintf("failed to resolve %s", action.DeviceID)
		res.Error = err.Error()
		return res
	}

	if dev.OperatingState == target {
		// Already in the target state: no command, but the device is
		// still claimed so lower-priority rules cannot flip it.
		claims.Claim(action.DeviceID)
		res.Performed = true
		res.Description = fmt.Sprintf("%s already %s, no command sent", action.DeviceID, strings.ToLower(string(target)))
		return res
	}

	var params map[string]any
	if action.DurationSeconds > 0 {
		params = map[string]any{"duration_seconds": action.DurationSeconds}
	}
	if err := e.transport.Send(ctx, action.DeviceID, command, params); err != nil {
		res.Description = fmt.Sprintf("failed to send %s to %s", command, action.DeviceID)
		res.Error = err.Error()
		return res
	}

	claims.Claim(action.DeviceID)
	res.Performed = true
	res.Description = fmt.Sprintf("sent %s to %s", command, action.DeviceID)
	return res
}

func (e *Engine) performNotification(ctx context.Context, rule *rules.Rule, action rules.Action) ActionResult {
	res := ActionResult{Type: action.Type}

	cooling, err := e.suppressor.NotificationCoolingDown(ctx, rule.ID)
	if err != nil {
		res.Description = "skipped notification: cooldown check failed"
		res.Error = err.Error()
		return res
	}
	if cooling {
		res.Description = "skipped notification: recently notified"
		return res
	}

	message := action.Message
	if message == "" {
		message = fmt.Sprintf("Rule %q fired", rule.Name)
	}
	sendEmail := action.Type == rules.ActionSendEmail
	if err := e.notifier.Notify(ctx, e.cfg.OwnerID, rule.Name, message, sendEmail); err != nil {
		res.Description = "failed to deliver notification"
		res.Error = err.Error()
		return res
	}
	if err := e.suppressor.StartNotificationCooldown(ctx, rule.ID); err != nil {
		e.log.Warn("starting notification cooldown failed", "rule_id", rule.ID, "error", err)
	}

	res.Performed = true
	res.Description = "notification sent"
	return res
}

// summarize joins result descriptions into the audit details line.
func summarize(results []ActionResult) string {
	if len(results) == 0 {
		return "no actions defined"
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Description
	}
	return strings.Join(parts, "; ")
}

// joinErrors collects per-action errors into the audit error column.
func joinErrors(results []ActionResult) string {
	var parts []string
	for _, r := range results {
		if r.Error != "" {
			parts = append(parts, r.Error)
		}
	}
	return strings.Join(parts, "; ")
}
