package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/croftonlabs/crofton-core/internal/device"
	"github.com/croftonlabs/crofton-core/internal/rules"
	"github.com/croftonlabs/crofton-core/internal/sensor"
	"github.com/croftonlabs/crofton-core/internal/weather"
)

func float(v float64) *float64 { return &v }

func TestCompare(t *testing.T) {
	tests := []struct {
		op       rules.Operator
		actual   float64
		expected float64
		want     bool
	}{
		{rules.OpEQ, 21.005, 21.0, true},
		{rules.OpEQ, 21.02, 21.0, false},
		{rules.OpNEQ, 21.02, 21.0, true},
		{rules.OpNEQ, 21.005, 21.0, false},
		{rules.OpGT, 21.0, 21.0, false},
		{rules.OpGTE, 21.0, 21.0, true},
		{rules.OpLT, 20.9, 21.0, true},
		{rules.OpLTE, 21.1, 21.0, false},
		{rules.Operator("BOGUS"), 1, 1, false},
	}
	for _, tt := range tests {
		if got := compare(tt.op, tt.actual, tt.expected); got != tt.want {
			t.Errorf("compare(%s, %v, %v) = %v, want %v", tt.op, tt.actual, tt.expected, got, tt.want)
		}
	}
}

func TestEvaluateTimeRange(t *testing.T) {
	noon := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"inside range", "06:00-18:00", true},
		{"at start is exclusive", "12:00-18:00", false},
		{"at end is exclusive", "06:00-12:00", false},
		{"outside range", "13:00-18:00", false},
		{"midnight wrap not supported", "22:00-06:00", false},
		{"single time at or after", "12:00", true},
		{"single time before", "12:01", false},
		{"single time earlier", "05:30", true},
		{"garbage", "whenever", false},
		{"garbage range", "06:00-late", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluateTimeRange(tt.value, noon); got != tt.want {
				t.Errorf("evaluateTimeRange(%q) at noon = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestLeftFoldCombination(t *testing.T) {
	// TIME_RANGE conditions double as fixed booleans at the harness
	// clock (12:00): "00:00" is true, "23:00" is false.
	yes := rules.Condition{Type: rules.ConditionTimeRange, Value: "00:00"}
	no := rules.Condition{Type: rules.ConditionTimeRange, Value: "23:00"}
	withLogical := func(c rules.Condition, op rules.LogicalOperator) rules.Condition {
		c.Logical = op
		return c
	}

	tests := []struct {
		name       string
		conditions []rules.Condition
		want       bool
	}{
		{"zero conditions never fire", nil, false},
		{"single true", []rules.Condition{yes}, true},
		{"single false", []rules.Condition{no}, false},
		{"true AND false", []rules.Condition{withLogical(yes, rules.LogicalAND), no}, false},
		{"false OR true", []rules.Condition{withLogical(no, rules.LogicalOR), yes}, true},
		// (true OR false) AND false: the fold is strictly left to
		// right, OR gets no lower precedence.
		{
			"no precedence between AND and OR",
			[]rules.Condition{withLogical(yes, rules.LogicalOR), withLogical(no, rules.LogicalAND), no},
			false,
		},
		{"missing operator defaults to AND", []rules.Condition{yes, no}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rule := rules.Rule{ID: "rule-1", FarmID: "farm-1", Conditions: tt.conditions}
			got, records := h.engine.evaluateConditions(context.Background(), &rule, nil)
			if got != tt.want {
				t.Errorf("evaluateConditions() = %v, want %v", got, tt.want)
			}
			if len(records) != len(tt.conditions) {
				t.Errorf("snapshot records = %d, want %d", len(records), len(tt.conditions))
			}
		})
	}
}

func TestEvaluateSensorCondition(t *testing.T) {
	h := newHarness(t)
	snapshots := map[string]sensor.Snapshot{
		"soil-1": {
			DeviceID:     "soil-1",
			SoilMoisture: float(22.5),
			Timestamp:    testNow.Add(-time.Minute),
		},
		"soil-stale": {
			DeviceID:     "soil-stale",
			SoilMoisture: float(10),
			Timestamp:    testNow.Add(-16 * time.Minute),
		},
	}

	tests := []struct {
		name string
		cond rules.Condition
		want bool
	}{
		{
			"fresh reading below threshold",
			rules.Condition{Type: rules.ConditionSensorValue, DeviceID: "soil-1", Field: "soil_moisture", Operator: rules.OpLT, Value: "30"},
			true,
		},
		{
			"field name normalised",
			rules.Condition{Type: rules.ConditionSensorValue, DeviceID: "soil-1", Field: "SoilMoisture", Operator: rules.OpLT, Value: "30"},
			true,
		},
		{
			"stale reading fails closed",
			rules.Condition{Type: rules.ConditionSensorValue, DeviceID: "soil-stale", Field: "soil_moisture", Operator: rules.OpLT, Value: "30"},
			false,
		},
		{
			"unknown device fails closed",
			rules.Condition{Type: rules.ConditionSensorValue, DeviceID: "soil-9", Field: "soil_moisture", Operator: rules.OpLT, Value: "30"},
			false,
		},
		{
			"missing field fails closed",
			rules.Condition{Type: rules.ConditionSensorValue, DeviceID: "soil-1", Field: "temperature", Operator: rules.OpGT, Value: "0"},
			false,
		},
		{
			"non-numeric threshold fails closed",
			rules.Condition{Type: rules.ConditionSensorValue, DeviceID: "soil-1", Field: "soil_moisture", Operator: rules.OpLT, Value: "damp"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := h.engine.evaluateSensor(tt.cond, snapshots)
			if got != tt.want {
				t.Errorf("evaluateSensor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateDeviceStatusCondition(t *testing.T) {
	h := newHarness(t)
	h.devices.devices["valve-1"] = &device.Device{
		DeviceID: "valve-1", Status: device.StatusOnline,
	}
	ctx := context.Background()

	eq := rules.Condition{Type: rules.ConditionDeviceStatus, DeviceID: "valve-1", Operator: rules.OpEQ, Value: "online"}
	if got, _ := h.engine.evaluateDeviceStatus(ctx, eq); !got {
		t.Error("case-insensitive status equality = false, want true")
	}

	neq := eq
	neq.Operator = rules.OpNEQ
	if got, _ := h.engine.evaluateDeviceStatus(ctx, neq); got {
		t.Error("NEQ against matching status = true, want false")
	}

	missing := rules.Condition{Type: rules.ConditionDeviceStatus, DeviceID: "valve-9", Operator: rules.OpEQ, Value: "ONLINE"}
	if got, actual := h.engine.evaluateDeviceStatus(ctx, missing); got || actual != "device not found" {
		t.Errorf("unknown device = (%v, %q), want (false, device not found)", got, actual)
	}
}

func TestEvaluateWeatherCondition(t *testing.T) {
	h := newHarness(t)
	h.weather.snap = &weather.Snapshot{
		Temperature: 28.5,
		WindSpeed:   3.2,
		RainAmount:  0.4,
		FetchedAt:   testNow,
	}
	ctx := context.Background()

	hot := rules.Condition{Type: rules.ConditionWeather, Field: "temperature", Operator: rules.OpGT, Value: "25"}
	if got, _ := h.engine.evaluateWeather(ctx, "farm-1", hot); !got {
		t.Error("temperature > 25 = false, want true")
	}

	rain := rules.Condition{Type: rules.ConditionWeather, Field: "rain", Operator: rules.OpGT, Value: "0.1"}
	if got, _ := h.engine.evaluateWeather(ctx, "farm-1", rain); !got {
		t.Error("rain alias = false, want true")
	}

	bogus := rules.Condition{Type: rules.ConditionWeather, Field: "pollen", Operator: rules.OpGT, Value: "1"}
	if got, _ := h.engine.evaluateWeather(ctx, "farm-1", bogus); got {
		t.Error("unsupported weather field = true, want false")
	}

	h.weather.snap = nil
	h.weather.err = errors.New("api quota exceeded")
	if got, actual := h.engine.evaluateWeather(ctx, "farm-1", hot); got || actual != "weather unavailable" {
		t.Errorf("weather outage = (%v, %q), want (false, weather unavailable)", got, actual)
	}

	h.engine.weather = nil
	if got, actual := h.engine.evaluateWeather(ctx, "farm-1", hot); got || actual != "weather disabled" {
		t.Errorf("disabled weather = (%v, %q), want (false, weather disabled)", got, actual)
	}
}
