package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/croftonlabs/crofton-core/internal/audit"
	"github.com/croftonlabs/crofton-core/internal/device"
	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
	"github.com/croftonlabs/crofton-core/internal/rules"
	"github.com/croftonlabs/crofton-core/internal/sensor"
	"github.com/croftonlabs/crofton-core/internal/weather"
)

// RuleStore loads enabled rules and persists execution statistics.
type RuleStore interface {
	ListEnabled(ctx context.Context, farmID string) ([]rules.Rule, error)
	RecordExecution(ctx context.Context, ruleID string, executedAt time.Time) error
}

// SensorStore returns the latest snapshot per sensor device in one
// batched query. Satisfied by influxdb.Client.
type SensorStore interface {
	BatchLatest(ctx context.Context, deviceIDs []string) (map[string]sensor.Snapshot, error)
}

// DeviceStore resolves devices for DEVICE_STATUS conditions and
// idempotence checks. State is eventually consistent: the telemetry
// listener updates it from controller reports.
type DeviceStore interface {
	FindByDeviceID(ctx context.Context, deviceID string) (*device.Device, error)
}

// WeatherReader returns current conditions for the farm site.
type WeatherReader interface {
	Current(ctx context.Context, farmID string) (*weather.Snapshot, error)
}

// CommandTransport dispatches actuator commands.
type CommandTransport interface {
	Send(ctx context.Context, deviceID, action string, params map[string]any) error
}

// Notifier stores a notification for the farm owner.
type Notifier interface {
	Notify(ctx context.Context, ownerID, title, message string, sendEmail bool) error
}

// Suppressor answers override and notification-cooldown checks.
type Suppressor interface {
	IsOverridden(ctx context.Context, deviceID string) (bool, error)
	NotificationCoolingDown(ctx context.Context, ruleID string) (bool, error)
	StartNotificationCooldown(ctx context.Context, ruleID string) error
}

// AuditSink records one execution log entry per rule per cycle.
type AuditSink interface {
	Create(ctx context.Context, log *audit.ExecutionLog) error
}

// Config carries the engine's tunables, all sourced from config.yaml.
type Config struct {
	FarmID  string
	OwnerID string

	// RuleCooldown suppresses re-evaluation of a rule that executed
	// effectively within the window.
	RuleCooldown time.Duration

	// SensorStaleness is the maximum snapshot age SENSOR_VALUE
	// conditions accept.
	SensorStaleness time.Duration

	// Location resolves TIME_RANGE conditions in farm-local time.
	Location *time.Location
}

// Engine runs evaluation cycles: load rules, evaluate conditions,
// arbitrate conflicts by priority, execute actions, audit everything.
type Engine struct {
	cfg        Config
	rules      RuleStore
	sensors    SensorStore
	devices    DeviceStore
	weather    WeatherReader
	transport  CommandTransport
	notifier   Notifier
	suppressor Suppressor
	auditor    AuditSink
	log        *logging.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates an engine. weatherReader and sensors may be nil when the
// respective integrations are disabled; conditions that need them then
// evaluate to false.
func New(
	cfg Config,
	ruleStore RuleStore,
	sensors SensorStore,
	devices DeviceStore,
	weatherReader WeatherReader,
	transport CommandTransport,
	notifier Notifier,
	suppressor Suppressor,
	auditor AuditSink,
	log *logging.Logger,
) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		cfg:        cfg,
		rules:      ruleStore,
		sensors:    sensors,
		devices:    devices,
		weather:    weatherReader,
		transport:  transport,
		notifier:   notifier,
		suppressor: suppressor,
		auditor:    auditor,
		log:        log.With("component", "engine"),
		now:        time.Now,
	}
}

// CycleStats summarises one evaluation cycle.
type CycleStats struct {
	Evaluated int
	Succeeded int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

// RunCycle executes one evaluation pass over all enabled rules.
//
// No error escapes: rule loading failure aborts the cycle with a log
// line, and per-rule failures are isolated, logged and audited. Each
// loaded rule produces exactly one audit entry.
func (e *Engine) RunCycle(ctx context.Context) CycleStats {
	start := e.now()
	var stats CycleStats

	loaded, err := e.rules.ListEnabled(ctx, e.cfg.FarmID)
	if err != nil {
		e.log.Error("cycle aborted, loading rules failed", "error", err)
		return stats
	}
	if len(loaded) == 0 {
		return stats
	}

	// The store already orders by priority; re-sorting keeps the
	// arbitration contract independent of the store implementation.
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].Priority > loaded[j].Priority
	})

	snapshots := e.loadSensorCache(ctx, loaded)
	claims := newClaimSet()

	for i := range loaded {
		outcome := e.runRule(ctx, &loaded[i], snapshots, claims)
		stats.Evaluated++
		switch outcome {
		case audit.StatusSuccess:
			stats.Succeeded++
		case audit.StatusFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}

	stats.Duration = e.now().Sub(start)
	e.log.Info("cycle complete",
		"evaluated", stats.Evaluated,
		"succeeded", stats.Succeeded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats
}

// loadSensorCache batch-fetches the latest snapshot for every device
// referenced by a SENSOR_VALUE condition. A fetch failure degrades to
// an empty cache (sensor conditions then fail closed) rather than
// failing the cycle.
func (e *Engine) loadSensorCache(ctx context.Context, loaded []rules.Rule) map[string]sensor.Snapshot {
	seen := make(map[string]struct{})
	var ids []string
	for i := range loaded {
		for _, c := range loaded[i].Conditions {
			if c.Type != rules.ConditionSensorValue || c.DeviceID == "" {
				continue
			}
			if _, ok := seen[c.DeviceID]; ok {
				continue
			}
			seen[c.DeviceID] = struct{}{}
			ids = append(ids, c.DeviceID)
		}
	}
	if len(ids) == 0 || e.sensors == nil {
		return map[string]sensor.Snapshot{}
	}

	snapshots, err := e.sensors.BatchLatest(ctx, ids)
	if err != nil {
		e.log.Warn("sensor batch fetch failed, evaluating with empty cache",
			"devices", len(ids), "error", err)
		return map[string]sensor.Snapshot{}
	}
	return snapshots
}

// runRule evaluates and executes a single rule, returning the audited
// status. Panics are contained here so one misbehaving rule cannot
// take down the cycle.
func (e *Engine) runRule(ctx context.Context, rule *rules.Rule, snapshots map[string]sensor.Snapshot, claims claimSet) (status audit.Status) {
	started := e.now()
	entry := &audit.ExecutionLog{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		FarmID:     rule.FarmID,
		ExecutedAt: started.UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("rule evaluation panicked", "rule_id", rule.ID, "panic", r)
			entry.Status = audit.StatusFailed
			entry.Error = fmt.Sprintf("panic: %v", r)
			status = audit.StatusFailed
		}
		entry.DurationMs = e.now().Sub(started).Milliseconds()
		e.appendAudit(ctx, entry)
	}()

	if rule.InCooldown(started, e.cfg.RuleCooldown) {
		entry.Status = audit.StatusSkipped
		entry.Details = "cooling down"
		return audit.StatusSkipped
	}

	met, snapshot := e.evaluateConditions(ctx, rule, snapshots)
	entry.ConditionsMet = met
	entry.ConditionSnapshot = marshalOrEmpty(snapshot, e.log)
	if !met {
		entry.Status = audit.StatusSkipped
		entry.Details = "conditions not met"
		return audit.StatusSkipped
	}

	results := e.performActions(ctx, rule, claims)
	entry.ActionResults = marshalOrEmpty(results, e.log)
	entry.Details = summarize(results)
	entry.Error = joinErrors(results)

	performed := 0
	failed := 0
	for _, r := range results {
		if r.Performed {
			performed++
		}
		if r.Error != "" {
			failed++
		}
	}

	switch {
	case performed > 0:
		// Effective execution: stamp statistics for the cooldown window.
		if err := e.rules.RecordExecution(ctx, rule.ID, started); err != nil {
			e.log.Warn("recording rule execution failed", "rule_id", rule.ID, "error", err)
		}
		entry.Status = audit.StatusSuccess
		return audit.StatusSuccess
	case failed > 0:
		entry.Status = audit.StatusFailed
		return audit.StatusFailed
	default:
		entry.Status = audit.StatusSkipped
		entry.Details = "all actions suppressed"
		return audit.StatusSkipped
	}
}

// appendAudit writes the entry, logging and dropping on failure: audit
// problems never block or retry within a cycle.
func (e *Engine) appendAudit(ctx context.Context, entry *audit.ExecutionLog) {
	if err := e.auditor.Create(ctx, entry); err != nil {
		e.log.Error("writing execution log failed",
			"rule_id", entry.RuleID, "error", err)
	}
}

// marshalOrEmpty serialises audit documents; a marshalling failure is
// logged and the document dropped.
func marshalOrEmpty(v any, log *logging.Logger) string {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("marshalling audit document failed", "error", err)
		return ""
	}
	return string(b)
}
