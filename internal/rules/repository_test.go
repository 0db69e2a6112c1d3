package rules

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.Exec(`
		CREATE TABLE rules (
			id               TEXT PRIMARY KEY,
			farm_id          TEXT NOT NULL,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			enabled          INTEGER NOT NULL DEFAULT 1,
			priority         INTEGER NOT NULL DEFAULT 0,
			conditions       TEXT NOT NULL DEFAULT '[]',
			actions          TEXT NOT NULL DEFAULT '[]',
			last_executed_at TEXT,
			execution_count  INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("creating rules table: %v", err)
	}
	return db
}

func testRule(farmID, name string, priority int) *Rule {
	return &Rule{
		FarmID:   farmID,
		Name:     name,
		Enabled:  true,
		Priority: priority,
		Conditions: []Condition{
			{Type: ConditionSensorValue, DeviceID: "soil-probe-7", Field: "soil_moisture", Operator: OpLT, Value: "30"},
		},
		Actions: []Action{
			{Type: ActionTurnOnDevice, DeviceID: "pump-north-3"},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rule := testRule("farm-1", "irrigate north field", 5)
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rule.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "irrigate north field" || got.Priority != 5 || !got.Enabled {
		t.Errorf("GetByID() = %+v, fields do not match", got)
	}
	if len(got.Conditions) != 1 || got.Conditions[0].Type != ConditionSensorValue {
		t.Errorf("conditions did not round-trip: %+v", got.Conditions)
	}
	if len(got.Actions) != 1 || got.Actions[0].DeviceID != "pump-north-3" {
		t.Errorf("actions did not round-trip: %+v", got.Actions)
	}
	if got.LastExecutedAt != nil {
		t.Error("new rule has non-nil LastExecutedAt")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), "rule-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestCreateInvalidRule(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	rule := &Rule{FarmID: "farm-1", Name: "no actions"}
	err := repo.Create(context.Background(), rule)
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("Create() error = %v, want ErrInvalidRule", err)
	}
}

func TestListEnabledOrdering(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	low := testRule("farm-1", "low priority", 1)
	high := testRule("farm-1", "high priority", 10)
	disabled := testRule("farm-1", "disabled", 20)
	disabled.Enabled = false
	otherFarm := testRule("farm-2", "other farm", 30)

	for _, r := range []*Rule{low, high, disabled, otherFarm} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("Create(%s) error = %v", r.Name, err)
		}
	}

	got, err := repo.ListEnabled(ctx, "farm-1")
	if err != nil {
		t.Fatalf("ListEnabled() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListEnabled() returned %d rules, want 2", len(got))
	}
	if got[0].Name != "high priority" || got[1].Name != "low priority" {
		t.Errorf("ListEnabled() order = [%s, %s], want priority descending",
			got[0].Name, got[1].Name)
	}
}

func TestUpdate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rule := testRule("farm-1", "original", 1)
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rule.Name = "renamed"
	rule.Priority = 7
	rule.Enabled = false
	if err := repo.Update(ctx, rule); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "renamed" || got.Priority != 7 || got.Enabled {
		t.Errorf("Update() not persisted: %+v", got)
	}
}

func TestUpdateNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	rule := testRule("farm-1", "ghost", 1)
	rule.ID = "rule-missing"
	err := repo.Update(context.Background(), rule)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rule := testRule("farm-1", "short lived", 1)
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, rule.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, rule.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestRecordExecution(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	rule := testRule("farm-1", "tracked", 1)
	if err := repo.Create(ctx, rule); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	executedAt := time.Date(2026, 8, 1, 6, 30, 0, 0, time.UTC)
	if err := repo.RecordExecution(ctx, rule.ID, executedAt); err != nil {
		t.Fatalf("RecordExecution() error = %v", err)
	}

	got, err := repo.GetByID(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LastExecutedAt == nil || !got.LastExecutedAt.Equal(executedAt) {
		t.Errorf("LastExecutedAt = %v, want %v", got.LastExecutedAt, executedAt)
	}
	if got.ExecutionCount != 1 {
		t.Errorf("ExecutionCount = %d, want 1", got.ExecutionCount)
	}
}

func TestInCooldown(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 5 * time.Minute

	recent := now.Add(-2 * time.Minute)
	old := now.Add(-10 * time.Minute)

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{"never executed", nil, false},
		{"recently executed", &recent, true},
		{"cooldown elapsed", &old, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{LastExecutedAt: tt.last}
			if got := r.InCooldown(now, cooldown); got != tt.want {
				t.Errorf("InCooldown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr bool
	}{
		{"valid", func(r *Rule) {}, false},
		{"missing name", func(r *Rule) { r.Name = "" }, true},
		{"missing farm", func(r *Rule) { r.FarmID = "" }, true},
		{"no actions", func(r *Rule) { r.Actions = nil }, true},
		{"bad condition type", func(r *Rule) { r.Conditions[0].Type = "SOLAR_FLARE" }, true},
		{"bad operator", func(r *Rule) { r.Conditions[0].Operator = "NEAR" }, true},
		{"bad logical", func(r *Rule) { r.Conditions[0].Logical = "XOR" }, true},
		{"device action without device", func(r *Rule) { r.Actions[0].DeviceID = "" }, true},
		{"notification without message", func(r *Rule) {
			r.Actions = []Action{{Type: ActionSendNotification}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := testRule("farm-1", "validate me", 1)
			tt.mutate(rule)
			err := rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
