package rules

import (
	"fmt"
	"time"
)

// ConditionType identifies what a condition inspects.
type ConditionType string

// Supported condition types.
const (
	ConditionSensorValue  ConditionType = "SENSOR_VALUE"
	ConditionTimeRange    ConditionType = "TIME_RANGE"
	ConditionDeviceStatus ConditionType = "DEVICE_STATUS"
	ConditionWeather      ConditionType = "WEATHER"
)

// Operator is a comparison operator used by sensor and weather conditions.
type Operator string

// Supported comparison operators.
const (
	OpEQ  Operator = "EQ"
	OpNEQ Operator = "NEQ"
	OpGT  Operator = "GT"
	OpGTE Operator = "GTE"
	OpLT  Operator = "LT"
	OpLTE Operator = "LTE"
)

// LogicalOperator joins a condition's result with the next condition.
type LogicalOperator string

// Supported logical operators.
const (
	LogicalAND LogicalOperator = "AND"
	LogicalOR  LogicalOperator = "OR"
)

// ActionType identifies what an action does when a rule fires.
type ActionType string

// Supported action types.
const (
	ActionTurnOnDevice     ActionType = "TURN_ON_DEVICE"
	ActionTurnOffDevice    ActionType = "TURN_OFF_DEVICE"
	ActionSendNotification ActionType = "SEND_NOTIFICATION"
	ActionSendEmail        ActionType = "SEND_EMAIL"
)

// Condition is one clause of a rule's trigger expression.
//
// Value is interpreted per type: a numeric threshold for SENSOR_VALUE
// and WEATHER, "HH:MM" or "HH:MM-HH:MM" for TIME_RANGE, and a device
// status string for DEVICE_STATUS.
//
// Logical joins this condition's result with the NEXT condition in the
// list. Evaluation is a left-to-right fold with no precedence between
// AND and OR. The last condition's Logical is ignored.
type Condition struct {
	Type     ConditionType   `json:"type"`
	DeviceID string          `json:"device_id,omitempty"`
	Field    string          `json:"field,omitempty"`
	Operator Operator        `json:"operator,omitempty"`
	Value    string          `json:"value"`
	Logical  LogicalOperator `json:"logical_operator,omitempty"`
}

// Action is one effect executed when a rule fires.
//
// DurationSeconds is optional for device actions: a non-zero value asks
// the controller to revert the actuator after that many seconds.
type Action struct {
	Type            ActionType `json:"type"`
	DeviceID        string     `json:"device_id,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// Rule is a declarative automation rule owned by a farm.
//
// Conditions and Actions are stored as JSON documents in SQLite; the
// rest of the fields are plain columns.
type Rule struct {
	ID             string      `json:"id"`
	FarmID         string      `json:"farm_id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	Enabled        bool        `json:"enabled"`
	Priority       int         `json:"priority"`
	Conditions     []Condition `json:"conditions"`
	Actions        []Action    `json:"actions"`
	LastExecutedAt *time.Time  `json:"last_executed_at,omitempty"`
	ExecutionCount int64       `json:"execution_count"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// InCooldown reports whether the rule executed more recently than the
// cooldown window allows. Rules that never executed are not in cooldown.
func (r *Rule) InCooldown(now time.Time, cooldown time.Duration) bool {
	if r.LastExecutedAt == nil {
		return false
	}
	return now.Sub(*r.LastExecutedAt) < cooldown
}

// Validate checks the rule for structural problems before persisting.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.FarmID == "" {
		return fmt.Errorf("%w: farm_id is required", ErrInvalidRule)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalidRule)
	}

	for i, c := range r.Conditions {
		if err := c.validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, a := range r.Actions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func (c Condition) validate() error {
	switch c.Type {
	case ConditionSensorValue:
		if c.DeviceID == "" {
			return fmt.Errorf("%w: sensor condition requires device_id", ErrInvalidRule)
		}
		if c.Field == "" {
			return fmt.Errorf("%w: sensor condition requires field", ErrInvalidRule)
		}
		if !validOperator(c.Operator) {
			return fmt.Errorf("%w: invalid operator %q", ErrInvalidRule, c.Operator)
		}
	case ConditionWeather:
		if c.Field == "" {
			return fmt.Errorf("%w: weather condition requires field", ErrInvalidRule)
		}
		if !validOperator(c.Operator) {
			return fmt.Errorf("%w: invalid operator %q", ErrInvalidRule, c.Operator)
		}
	case ConditionTimeRange:
		if c.Value == "" {
			return fmt.Errorf("%w: time condition requires value", ErrInvalidRule)
		}
	case ConditionDeviceStatus:
		if c.DeviceID == "" {
			return fmt.Errorf("%w: device status condition requires device_id", ErrInvalidRule)
		}
		if c.Value == "" {
			return fmt.Errorf("%w: device status condition requires value", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown condition type %q", ErrInvalidRule, c.Type)
	}

	if c.Logical != "" && c.Logical != LogicalAND && c.Logical != LogicalOR {
		return fmt.Errorf("%w: invalid logical operator %q", ErrInvalidRule, c.Logical)
	}
	return nil
}

func (a Action) validate() error {
	switch a.Type {
	case ActionTurnOnDevice, ActionTurnOffDevice:
		if a.DeviceID == "" {
			return fmt.Errorf("%w: device action requires device_id", ErrInvalidRule)
		}
	case ActionSendNotification, ActionSendEmail:
		if a.Message == "" {
			return fmt.Errorf("%w: notification action requires message", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidRule, a.Type)
	}
	return nil
}

func validOperator(op Operator) bool {
	switch op {
	case OpEQ, OpNEQ, OpGT, OpGTE, OpLT, OpLTE:
		return true
	}
	return false
}
