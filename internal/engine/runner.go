package engine

import (
	"context"
	"time"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
)

// Runner drives the engine on a fixed-delay schedule: an initial delay
// after startup, then a constant pause between the end of one cycle
// and the start of the next. Cycles never overlap.
type Runner struct {
	engine       *Engine
	initialDelay time.Duration
	interval     time.Duration
	log          *logging.Logger
}

// NewRunner creates a runner. interval is the gap between cycles, not
// a tick period: a slow cycle pushes the next one back.
func NewRunner(engine *Engine, initialDelay, interval time.Duration, log *logging.Logger) *Runner {
	return &Runner{
		engine:       engine,
		initialDelay: initialDelay,
		interval:     interval,
		log:          log.With("component", "runner"),
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("evaluation loop starting",
		"initial_delay", r.initialDelay.String(),
		"interval", r.interval.String())

	if !sleep(ctx, r.initialDelay) {
		return
	}
	for {
		r.engine.RunCycle(ctx)
		if !sleep(ctx, r.interval) {
			r.log.Info("evaluation loop stopped")
			return
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
