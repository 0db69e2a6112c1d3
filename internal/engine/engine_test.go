package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/croftonlabs/crofton-core/internal/audit"
	"github.com/croftonlabs/crofton-core/internal/device"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
	"github.com/croftonlabs/crofton-core/internal/rules"
	"github.com/croftonlabs/crofton-core/internal/sensor"
	"github.com/croftonlabs/crofton-core/internal/weather"
)

// testNow is the fixed wall clock used by engine tests: 12:00 UTC.
var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

type fakeRuleStore struct {
	rules     []rules.Rule
	listErr   error
	listCalls int
	recorded  []string
}

func (f *fakeRuleStore) ListEnabled(_ context.Context, _ string) ([]rules.Rule, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]rules.Rule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

func (f *fakeRuleStore) RecordExecution(_ context.Context, ruleID string, _ time.Time) error {
	f.recorded = append(f.recorded, ruleID)
	return nil
}

type fakeSensorStore struct {
	snapshots map[string]sensor.Snapshot
	err       error
	queried   [][]string
}

func (f *fakeSensorStore) BatchLatest(_ context.Context, ids []string) (map[string]sensor.Snapshot, error) {
	f.queried = append(f.queried, ids)
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots, nil
}

type fakeDeviceStore struct {
	devices map[string]*device.Device
	panicOn string
}

func (f *fakeDeviceStore) FindByDeviceID(_ context.Context, deviceID string) (*device.Device, error) {
	if deviceID == f.panicOn {
		panic("device store exploded")
	}
	dev, ok := f.devices[deviceID]
	if !ok {
		return nil, device.ErrNotFound
	}
	return dev, nil
}

type fakeWeather struct {
	snap *weather.Snapshot
	err  error
}

func (f *fakeWeather) Current(_ context.Context, _ string) (*weather.Snapshot, error) {
	return f.snap, f.err
}

type sentCommand struct {
	deviceID string
	action   string
	params   map[string]any
}

type fakeTransport struct {
	sent  []sentCommand
	errOn string
}

func (f *fakeTransport) Send(_ context.Context, deviceID, action string, params map[string]any) error {
	if deviceID == f.errOn {
		return errors.New("broker unreachable")
	}
	f.sent = append(f.sent, sentCommand{deviceID, action, params})
	return nil
}

type sentNote struct {
	ownerID   string
	title     string
	message   string
	sendEmail bool
}

type fakeNotifier struct {
	notes []sentNote
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, ownerID, title, message string, sendEmail bool) error {
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, sentNote{ownerID, title, message, sendEmail})
	return nil
}

type fakeSuppressor struct {
	overridden  map[string]bool
	cooling     map[string]bool
	started     []string
	overrideErr error
	coolErr     error
}

func (f *fakeSuppressor) IsOverridden(_ context.Context, deviceID string) (bool, error) {
	if f.overrideErr != nil {
		return false, f.overrideErr
	}
	return f.overridden[deviceID], nil
}

func (f *fakeSuppressor) NotificationCoolingDown(_ context.Context, ruleID string) (bool, error) {
	if f.coolErr != nil {
		return false, f.coolErr
	}
	return f.cooling[ruleID], nil
}

func (f *fakeSuppressor) StartNotificationCooldown(_ context.Context, ruleID string) error {
	f.started = append(f.started, ruleID)
	return nil
}

type fakeAudit struct {
	entries []*audit.ExecutionLog
}

func (f *fakeAudit) Create(_ context.Context, log *audit.ExecutionLog) error {
	f.entries = append(f.entries, log)
	return nil
}

// harness bundles the engine with all its fakes.
type harness struct {
	engine     *Engine
	rules      *fakeRuleStore
	sensors    *fakeSensorStore
	devices    *fakeDeviceStore
	weather    *fakeWeather
	transport  *fakeTransport
	notifier   *fakeNotifier
	suppressor *fakeSuppressor
	audit      *fakeAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rules:      &fakeRuleStore{},
		sensors:    &fakeSensorStore{snapshots: map[string]sensor.Snapshot{}},
		devices:    &fakeDeviceStore{devices: map[string]*device.Device{}},
		weather:    &fakeWeather{},
		transport:  &fakeTransport{},
		notifier:   &fakeNotifier{},
		suppressor: &fakeSuppressor{overridden: map[string]bool{}, cooling: map[string]bool{}},
		audit:      &fakeAudit{},
	}
	cfg := Config{
		FarmID:          "farm-1",
		OwnerID:         "owner-1",
		RuleCooldown:    5 * time.Minute,
		SensorStaleness: 15 * time.Minute,
		Location:        time.UTC,
	}
	h.engine = New(cfg, h.rules, h.sensors, h.devices, h.weather,
		h.transport, h.notifier, h.suppressor, h.audit, logging.Default())
	h.engine.now = func() time.Time { return testNow }
	return h
}

func (h *harness) addDevice(deviceID string, state device.OperatingState) {
	h.devices.devices[deviceID] = &device.Device{
		DeviceID:       deviceID,
		FarmID:         "farm-1",
		Status:         device.StatusOnline,
		OperatingState: state,
	}
}

// alwaysTrue is a TIME_RANGE condition satisfied at any time of day.
func alwaysTrue() rules.Condition {
	return rules.Condition{Type: rules.ConditionTimeRange, Value: "00:00"}
}

func turnOnRule(id string, priority int, deviceID string) rules.Rule {
	return rules.Rule{
		ID:         id,
		FarmID:     "farm-1",
		Name:       id,
		Enabled:    true,
		Priority:   priority,
		Conditions: []rules.Condition{alwaysTrue()},
		Actions:    []rules.Action{{Type: rules.ActionTurnOnDevice, DeviceID: deviceID}},
	}
}

func (h *harness) entryFor(t *testing.T, ruleID string) *audit.ExecutionLog {
	t.Helper()
	for _, e := range h.audit.entries {
		if e.RuleID == ruleID {
			return e
		}
	}
	t.Fatalf("no audit entry for rule %s", ruleID)
	return nil
}

func TestPriorityArbitration(t *testing.T) {
	h := newHarness(t)
	h.addDevice("pump-1", device.StateOff)
	// Stored lowest-priority first to prove the engine re-sorts.
	h.rules.rules = []rules.Rule{
		turnOnRule("rule-low", 1, "pump-1"),
		turnOnRule("rule-high", 10, "pump-1"),
	}

	stats := h.engine.RunCycle(context.Background())

	if len(h.transport.sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(h.transport.sent))
	}
	if stats.Succeeded != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 succeeded and 1 skipped", stats)
	}
	if got := h.entryFor(t, "rule-high").Status; got != audit.StatusSuccess {
		t.Errorf("high-priority rule status = %s, want SUCCESS", got)
	}
	if got := h.entryFor(t, "rule-low").Status; got != audit.StatusSkipped {
		t.Errorf("low-priority rule status = %s, want SKIPPED", got)
	}
	if got := h.rules.recorded; len(got) != 1 || got[0] != "rule-high" {
		t.Errorf("recorded executions = %v, want only rule-high", got)
	}
}

func TestRuleCooldownSkipsWithoutEvaluation(t *testing.T) {
	h := newHarness(t)
	h.addDevice("pump-1", device.StateOff)
	r := turnOnRule("rule-1", 5, "pump-1")
	recent := testNow.Add(-2 * time.Minute)
	r.LastExecutedAt = &recent
	h.rules.rules = []rules.Rule{r}

	stats := h.engine.RunCycle(context.Background())

	if stats.Skipped != 1 || len(h.transport.sent) != 0 {
		t.Errorf("stats = %+v, sent = %d; want cooldown skip and no commands", stats, len(h.transport.sent))
	}
	entry := h.entryFor(t, "rule-1")
	if entry.Status != audit.StatusSkipped || entry.Details != "cooling down" {
		t.Errorf("entry = %+v, want SKIPPED / cooling down", entry)
	}
	if entry.ConditionSnapshot != "" {
		t.Error("cooldown skip evaluated conditions, want none")
	}
}

func TestIdempotentNoOpStillClaims(t *testing.T) {
	h := newHarness(t)
	h.addDevice("pump-1", device.StateOn)
	h.rules.rules = []rules.Rule{
		turnOnRule("rule-high", 10, "pump-1"),
		turnOnRule("rule-low", 1, "pump-1"),
	}

	stats := h.engine.RunCycle(context.Background())

	if len(h.transport.sent) != 0 {
		t.Fatalf("sent %d commands to a device already on, want 0", len(h.transport.sent))
	}
	if got := h.entryFor(t, "rule-high").Status; got != audit.StatusSuccess {
		t.Errorf("no-op rule status = %s, want SUCCESS", got)
	}
	if got := h.entryFor(t, "rule-low").Status; got != audit.StatusSkipped {
		t.Errorf("losing rule status = %s, want SKIPPED (device claimed by no-op)", got)
	}
	if stats.Succeeded != 1 {
		t.Errorf("stats = %+v, want 1 succeeded", stats)
	}
}

func TestManualOverrideSuppresses(t *testing.T) {
	h := newHarness(t)
	h.addDevice("pump-1", device.StateOff)
	h.suppressor.overridden["pump-1"] = true
	h.rules.rules = []rules.Rule{turnOnRule("rule-1", 5, "pump-1")}

	stats := h.engine.RunCycle(context.Background())

	if len(h.transport.sent) != 0 {
		t.Fatal("commanded an overridden device")
	}
	entry := h.entryFor(t, "rule-1")
	if entry.Status != audit.StatusSkipped || entry.Details != "all actions suppressed" {
		t.Errorf("entry = %+v, want SKIPPED with all actions suppressed", entry)
	}
	if len(h.rules.recorded) != 0 {
		t.Error("suppressed rule updated execution statistics")
	}
	if stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 skipped", stats)
	}
}

func TestTransportFailureDoesNotClaim(t *testing.T) {
	h := newHarness(t)
	h.addDevice("pump-1", device.StateOff)
	h.transport.errOn = "pump-1"
	h.rules.rules = []rules.Rule{
		turnOnRule("rule-high", 10, "pump-1"),
		turnOnRule("rule-low", 1, "pump-1"),
	}

	h.engine.RunCycle(context.Background())

	if got := h.entryFor(t, "rule-high").Status; got != audit.StatusFailed {
		t.Errorf("failing rule status = %s, want FAILED", got)
	}
	// The failed send must not claim the device, so the next attempt
	// (by rule-low, same transport) is still made.
	low := h.entryFor(t, "rule-low")
	if low.Status != audit.StatusFailed {
		t.Errorf("lower rule status = %s, want FAILED (retry also hit the broken transport)", low.Status)
	}
	if low.Details == "skipped pump-1: already commanded by a higher-priority rule" {
		t.Error("failed command claimed the device")
	}
}

func TestOneAuditEntryPerRule(t *testing.T) {
	h := newHarness(t)
	h.addDevice("pump-1", device.StateOff)
	for i := 0; i < 4; i++ {
		h.rules.rules = append(h.rules.rules, turnOnRule(fmt.Sprintf("rule-%d", i), i, "pump-1"))
	}

	h.engine.RunCycle(context.Background())

	if len(h.audit.entries) != 4 {
		t.Errorf("audit entries = %d, want 4 (one per rule)", len(h.audit.entries))
	}
}

func TestListRulesFailureAbortsCycle(t *testing.T) {
	h := newHarness(t)
	h.rules.listErr = errors.New("database locked")

	stats := h.engine.RunCycle(context.Background())

	if stats.Evaluated != 0 || len(h.audit.entries) != 0 {
		t.Errorf("stats = %+v, audits = %d; want aborted cycle", stats, len(h.audit.entries))
	}
}

func TestPanicIsolatedToOneRule(t *testing.T) {
	h := newHarness(t)
	h.addDevice("pump-2", device.StateOff)
	h.devices.panicOn = "pump-1"
	h.rules.rules = []rules.Rule{
		turnOnRule("rule-panics", 10, "pump-1"),
		turnOnRule("rule-fine", 1, "pump-2"),
	}

	stats := h.engine.RunCycle(context.Background())

	if stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("stats = %+v, want 1 failed and 1 succeeded", stats)
	}
	entry := h.entryFor(t, "rule-panics")
	if entry.Status != audit.StatusFailed || entry.Error == "" {
		t.Errorf("panicking rule entry = %+v, want FAILED with error text", entry)
	}
}

func TestSensorBatchFetchedOncePerCycle(t *testing.T) {
	h := newHarness(t)
	cond := rules.Condition{
		Type: rules.ConditionSensorValue, DeviceID: "soil-1",
		Field: "soil_moisture", Operator: rules.OpLT, Value: "30",
	}
	r1 := turnOnRule("rule-1", 2, "pump-1")
	r1.Conditions = []rules.Condition{cond}
	r2 := turnOnRule("rule-2", 1, "pump-1")
	r2.Conditions = []rules.Condition{cond}
	h.rules.rules = []rules.Rule{r1, r2}

	h.engine.RunCycle(context.Background())

	if len(h.sensors.queried) != 1 {
		t.Fatalf("BatchLatest called %d times, want 1", len(h.sensors.queried))
	}
	if got := h.sensors.queried[0]; len(got) != 1 || got[0] != "soil-1" {
		t.Errorf("queried devices = %v, want [soil-1] deduplicated", got)
	}
}

func TestSensorBatchFailureFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.sensors.err = errors.New("influx down")
	r := turnOnRule("rule-1", 5, "pump-1")
	r.Conditions = []rules.Condition{{
		Type: rules.ConditionSensorValue, DeviceID: "soil-1",
		Field: "temperature", Operator: rules.OpGT, Value: "0",
	}}
	h.rules.rules = []rules.Rule{r}

	stats := h.engine.RunCycle(context.Background())

	if stats.Skipped != 1 || len(h.transport.sent) != 0 {
		t.Errorf("stats = %+v; want the rule skipped with no commands", stats)
	}
	if entry := h.entryFor(t, "rule-1"); entry.ConditionsMet {
		t.Error("conditions met despite unavailable sensor data")
	}
}

func TestNotificationCooldown(t *testing.T) {
	h := newHarness(t)
	notifyRule := func(id string) rules.Rule {
		return rules.Rule{
			ID: id, FarmID: "farm-1", Name: id, Enabled: true, Priority: 1,
			Conditions: []rules.Condition{alwaysTrue()},
			Actions: []rules.Action{{
				Type: rules.ActionSendNotification, Message: "tank low",
			}},
		}
	}
	h.suppressor.cooling["rule-cooling"] = true
	h.rules.rules = []rules.Rule{notifyRule("rule-fresh"), notifyRule("rule-cooling")}

	h.engine.RunCycle(context.Background())

	if len(h.notifier.notes) != 1 {
		t.Fatalf("delivered %d notifications, want 1", len(h.notifier.notes))
	}
	note := h.notifier.notes[0]
	if note.ownerID != "owner-1" || note.message != "tank low" || note.sendEmail {
		t.Errorf("note = %+v, want inbox-only delivery to owner-1", note)
	}
	if got := h.suppressor.started; len(got) != 1 || got[0] != "rule-fresh" {
		t.Errorf("cooldowns started = %v, want only rule-fresh", got)
	}
	if got := h.entryFor(t, "rule-cooling").Status; got != audit.StatusSkipped {
		t.Errorf("cooling rule status = %s, want SKIPPED", got)
	}
}

func TestSendEmailActionSetsEmailFlag(t *testing.T) {
	h := newHarness(t)
	h.rules.rules = []rules.Rule{{
		ID: "rule-1", FarmID: "farm-1", Name: "frost warning", Enabled: true,
		Conditions: []rules.Condition{alwaysTrue()},
		Actions:    []rules.Action{{Type: rules.ActionSendEmail, Message: "frost expected"}},
	}}

	h.engine.RunCycle(context.Background())

	if len(h.notifier.notes) != 1 || !h.notifier.notes[0].sendEmail {
		t.Errorf("notes = %+v, want one note with email flag set", h.notifier.notes)
	}
}
