// Package audit persists the rule execution trail: one entry per rule
// per evaluation cycle, plus retention cleanup.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of one rule evaluation within a cycle.
type Status string

// Evaluation outcomes.
const (
	// StatusSuccess: conditions met and at least one action performed.
	StatusSuccess Status = "SUCCESS"

	// StatusSkipped: conditions not met, rule in cooldown, or every
	// action suppressed (conflict set, override, notification cooldown).
	StatusSkipped Status = "SKIPPED"

	// StatusFailed: conditions met but nothing performed and at least
	// one action errored.
	StatusFailed Status = "FAILED"
)

// ExecutionLog records what one rule did (or why it did nothing)
// during one evaluation cycle.
//
// ConditionSnapshot and ActionResults hold JSON documents produced by
// the engine: actual-vs-expected per condition, and per-action outcome
// descriptions. They are stored opaquely.
type ExecutionLog struct {
	ID                string    `json:"id"`
	RuleID            string    `json:"rule_id"`
	RuleName          string    `json:"rule_name"`
	FarmID            string    `json:"farm_id"`
	Status            Status    `json:"status"`
	ConditionsMet     bool      `json:"conditions_met"`
	ConditionSnapshot string    `json:"condition_snapshot,omitempty"`
	ActionResults     string    `json:"action_results,omitempty"`
	Details           string    `json:"details,omitempty"`
	Error             string    `json:"error,omitempty"`
	DurationMs        int64     `json:"duration_ms"`
	ExecutedAt        time.Time `json:"executed_at"`
}

// Repository defines the interface for execution log persistence.
type Repository interface {
	Create(ctx context.Context, log *ExecutionLog) error
	ListByRule(ctx context.Context, ruleID string, limit int) ([]ExecutionLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository stores execution logs in SQLite. The table is
// append-only apart from retention cleanup.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new execution log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an execution log entry. The ID and ExecutedAt are
// generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *ExecutionLog) error {
	if log.ID == "" {
		log.ID = "exe-" + uuid.NewString()[:8]
	}
	if log.ExecutedAt.IsZero() {
		log.ExecutedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rule_execution_logs (id, rule_id, rule_name, farm_id, status,
			conditions_met, condition_snapshot, action_results, details, error,
			duration_ms, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.RuleID, log.RuleName, log.FarmID, log.Status,
		boolToInt(log.ConditionsMet), log.ConditionSnapshot, log.ActionResults,
		log.Details, log.Error, log.DurationMs,
		log.ExecutedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting execution log: %w", err)
	}
	return nil
}

// ListByRule returns the most recent entries for a rule, newest first.
func (r *SQLiteRepository) ListByRule(ctx context.Context, ruleID string, limit int) ([]ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, rule_id, rule_name, farm_id, status, conditions_met,
			condition_snapshot, action_results, details, error, duration_ms, executed_at
		 FROM rule_execution_logs
		 WHERE rule_id = ?
		 ORDER BY executed_at DESC
		 LIMIT ?`,
		ruleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying execution logs: %w", err)
	}
	defer rows.Close()

	var logs []ExecutionLog
	for rows.Next() {
		var log ExecutionLog
		var conditionsMet int
		var executedAt string
		if err := rows.Scan(&log.ID, &log.RuleID, &log.RuleName, &log.FarmID,
			&log.Status, &conditionsMet, &log.ConditionSnapshot, &log.ActionResults,
			&log.Details, &log.Error, &log.DurationMs, &executedAt); err != nil {
			return nil, fmt.Errorf("scanning execution log: %w", err)
		}
		log.ConditionsMet = conditionsMet != 0
		if log.ExecutedAt, err = time.Parse(time.RFC3339, executedAt); err != nil {
			return nil, fmt.Errorf("parsing execution log timestamp %q: %w", executedAt, err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating execution logs: %w", err)
	}
	return logs, nil
}

// DeleteOlderThan removes entries executed before the cutoff and
// returns how many were deleted. Called by the nightly retention job.
func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM rule_execution_logs WHERE executed_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old execution logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
