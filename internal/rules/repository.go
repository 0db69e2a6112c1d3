package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for rule persistence.
type Repository interface {
	ListEnabled(ctx context.Context, farmID string) ([]Rule, error)
	GetByID(ctx context.Context, id string) (*Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
	RecordExecution(ctx context.Context, id string, executedAt time.Time) error
}

// SQLiteRepository stores rules in SQLite with conditions and actions
// as JSON columns.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new rule repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const ruleColumns = `id, farm_id, name, description, enabled, priority,
	conditions, actions, last_executed_at, execution_count, created_at, updated_at`

// ListEnabled returns all enabled rules for a farm, ordered by priority
// descending. Ties break on creation time then ID so the ordering is
// stable across cycles.
func (r *SQLiteRepository) ListEnabled(ctx context.Context, farmID string) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules
		 WHERE farm_id = ? AND enabled = 1
		 ORDER BY priority DESC, created_at ASC, id ASC`,
		farmID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying enabled rules: %w", err)
	}
	defer rows.Close()

	var result []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return result, nil
}

// GetByID returns a single rule, or ErrNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Create inserts a new rule. The ID and timestamps are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = "rule-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	conditionsJSON, actionsJSON, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rules (id, farm_id, name, description, enabled, priority,
			conditions, actions, last_executed_at, execution_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.FarmID, rule.Name, rule.Description,
		boolToInt(rule.Enabled), rule.Priority,
		conditionsJSON, actionsJSON,
		nullableTime(rule.LastExecutedAt), rule.ExecutionCount,
		rule.CreatedAt.Format(time.RFC3339), rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update persists changes to an existing rule.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().UTC()

	conditionsJSON, actionsJSON, err := marshalRuleDocs(rule)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE rules SET name = ?, description = ?, enabled = ?, priority = ?,
			conditions = ?, actions = ?, updated_at = ?
		 WHERE id = ?`,
		rule.Name, rule.Description, boolToInt(rule.Enabled), rule.Priority,
		conditionsJSON, actionsJSON,
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	return requireRow(result)
}

// Delete removes a rule.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return requireRow(result)
}

// RecordExecution stamps a successful execution: sets last_executed_at
// and increments the execution counter.
func (r *SQLiteRepository) RecordExecution(ctx context.Context, id string, executedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rules SET last_executed_at = ?, execution_count = execution_count + 1, updated_at = ?
		 WHERE id = ?`,
		executedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("recording rule execution: %w", err)
	}
	return requireRow(result)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*Rule, error) {
	var rule Rule
	var enabled int
	var conditionsJSON, actionsJSON string
	var lastExecuted sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&rule.ID, &rule.FarmID, &rule.Name, &rule.Description,
		&enabled, &rule.Priority, &conditionsJSON, &actionsJSON,
		&lastExecuted, &rule.ExecutionCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning rule: %w", err)
	}

	rule.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(conditionsJSON), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshalling rule %s conditions: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(actionsJSON), &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshalling rule %s actions: %w", rule.ID, err)
	}

	if lastExecuted.Valid && lastExecuted.String != "" {
		t, err := time.Parse(time.RFC3339, lastExecuted.String)
		if err != nil {
			return nil, fmt.Errorf("parsing rule %s last_executed_at: %w", rule.ID, err)
		}
		rule.LastExecutedAt = &t
	}

	if rule.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing rule %s created_at: %w", rule.ID, err)
	}
	if rule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing rule %s updated_at: %w", rule.ID, err)
	}

	return &rule, nil
}

func marshalRuleDocs(rule *Rule) (conditionsJSON, actionsJSON string, err error) {
	conditions := rule.Conditions
	if conditions == nil {
		conditions = []Condition{}
	}
	actions := rule.Actions
	if actions == nil {
		actions = []Action{}
	}

	cb, err := json.Marshal(conditions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling conditions: %w", err)
	}
	ab, err := json.Marshal(actions)
	if err != nil {
		return "", "", fmt.Errorf("marshalling actions: %w", err)
	}
	return string(cb), string(ab), nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
