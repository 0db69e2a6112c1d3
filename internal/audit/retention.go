package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
)

// cleanupTimeout bounds one retention sweep.
const cleanupTimeout = time.Minute

// RetentionJob deletes execution logs older than the retention window
// on a cron schedule (default: daily at 02:00).
type RetentionJob struct {
	repo      Repository
	retention time.Duration
	schedule  string
	log       *logging.Logger
	cron      *cron.Cron
}

// NewRetentionJob creates the cleanup job. It does not start it.
func NewRetentionJob(repo Repository, retention time.Duration, schedule string, log *logging.Logger) *RetentionJob {
	return &RetentionJob{
		repo:      repo,
		retention: retention,
		schedule:  schedule,
		log:       log.With("component", "audit-retention"),
	}
}

// Start schedules the job. Returns an error for an invalid schedule.
func (j *RetentionJob) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, j.runOnce); err != nil {
		return fmt.Errorf("scheduling audit cleanup %q: %w", j.schedule, err)
	}
	j.cron.Start()

	j.log.Info("audit retention job scheduled",
		"schedule", j.schedule,
		"retention", j.retention.String())
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (j *RetentionJob) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

func (j *RetentionJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.log.Error("audit cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		j.log.Info("audit cleanup complete",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339))
	}
}
