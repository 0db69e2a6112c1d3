package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/croftonlabs/crofton-core/internal/rules"
	"github.com/croftonlabs/crofton-core/internal/sensor"
)

// eqEpsilon is the tolerance for numeric equality comparisons.
const eqEpsilon = 0.01

// conditionRecord captures one condition's evaluation for the audit
// snapshot.
type conditionRecord struct {
	Type     rules.ConditionType `json:"type"`
	DeviceID string              `json:"device_id,omitempty"`
	Field    string              `json:"field,omitempty"`
	Operator rules.Operator      `json:"operator,omitempty"`
	Expected string              `json:"expected"`
	Actual   string              `json:"actual"`
	Result   bool                `json:"result"`
}

// evaluateConditions folds the rule's conditions left to right. The
// logical operator stored on condition i joins result i with result
// i+1; there is no precedence between AND and OR. A rule with no
// conditions never fires.
//
// Every per-condition failure (missing sensor, stale reading, bad
// value, weather outage) evaluates that condition to false rather than
// erroring the rule.
func (e *Engine) evaluateConditions(ctx context.Context, rule *rules.Rule, snapshots map[string]sensor.Snapshot) (bool, []conditionRecord) {
	if len(rule.Conditions) == 0 {
		return false, nil
	}

	records := make([]conditionRecord, 0, len(rule.Conditions))
	eval := func(c rules.Condition) bool {
		rec := e.evaluateCondition(ctx, rule.FarmID, c, snapshots)
		records = append(records, rec)
		return rec.Result
	}

	result := eval(rule.Conditions[0])
	for i := 1; i < len(rule.Conditions); i++ {
		next := eval(rule.Conditions[i])
		if rule.Conditions[i-1].Logical == rules.LogicalOR {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result, records
}

func (e *Engine) evaluateCondition(ctx context.Context, farmID string, c rules.Condition, snapshots map[string]sensor.Snapshot) conditionRecord {
	rec := conditionRecord{
		Type:     c.Type,
		DeviceID: c.DeviceID,
		Field:    c.Field,
		Operator: c.Operator,
		Expected: c.Value,
		Actual:   "n/a",
	}

	switch c.Type {
	case rules.ConditionSensorValue:
		rec.Result, rec.Actual = e.evaluateSensor(c, snapshots)
	case rules.ConditionTimeRange:
		now := e.now().In(e.cfg.Location)
		rec.Result = evaluateTimeRange(c.Value, now)
		rec.Actual = now.Format("15:04")
	case rules.ConditionDeviceStatus:
		rec.Result, rec.Actual = e.evaluateDeviceStatus(ctx, c)
	case rules.ConditionWeather:
		rec.Result, rec.Actual = e.evaluateWeather(ctx, farmID, c)
	}
	return rec
}

func (e *Engine) evaluateSensor(c rules.Condition, snapshots map[string]sensor.Snapshot) (bool, string) {
	snap, ok := snapshots[c.DeviceID]
	if !ok {
		return false, "no reading"
	}
	if snap.IsStale(e.now(), e.cfg.SensorStaleness) {
		return false, "stale reading"
	}
	actual, ok := snap.Value(c.Field)
	if !ok {
		return false, "field missing"
	}
	expected, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return false, formatValue(actual)
	}
	return compare(c.Operator, actual, expected), formatValue(actual)
}

func (e *Engine) evaluateDeviceStatus(ctx context.Context, c rules.Condition) (bool, string) {
	dev, err := e.devices.FindByDeviceID(ctx, c.DeviceID)
	if err != nil {
		return false, "device not found"
	}
	actual := string(dev.Status)
	match := strings.EqualFold(actual, c.Value)
	if c.Operator == rules.OpNEQ {
		return !match, actual
	}
	return match, actual
}

func (e *Engine) evaluateWeather(ctx context.Context, farmID string, c rules.Condition) (bool, string) {
	if e.weather == nil {
		return false, "weather disabled"
	}
	snap, err := e.weather.Current(ctx, farmID)
	if err != nil {
		e.log.Warn("weather lookup failed", "error", err)
		return false, "weather unavailable"
	}
	actual, ok := snap.Value(c.Field)
	if !ok {
		return false, "field unsupported"
	}
	expected, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return false, formatValue(actual)
	}
	return compare(c.Operator, actual, expected), formatValue(actual)
}

// evaluateTimeRange handles both "HH:MM-HH:MM" (strictly between start
// and end, no wrap across midnight) and a single "HH:MM" (at or after).
func evaluateTimeRange(value string, now time.Time) bool {
	minutes := now.Hour()*60 + now.Minute()

	if start, end, found := strings.Cut(value, "-"); found {
		startMin, okS := parseClock(start)
		endMin, okE := parseClock(end)
		if !okS || !okE {
			return false
		}
		return minutes > startMin && minutes < endMin
	}

	at, ok := parseClock(value)
	if !ok {
		return false
	}
	return minutes >= at
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

func compare(op rules.Operator, actual, expected float64) bool {
	switch op {
	case rules.OpEQ:
		return math.Abs(actual-expected) < eqEpsilon
	case rules.OpNEQ:
		return math.Abs(actual-expected) >= eqEpsilon
	case rules.OpGT:
		return actual > expected
	case rules.OpGTE:
		return actual >= expected
	case rules.OpLT:
		return actual < expected
	case rules.OpLTE:
		return actual <= expected
	default:
		return false
	}
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
