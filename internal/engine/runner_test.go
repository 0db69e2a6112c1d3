package engine

import (
	"context"
	"testing"
	"time"

	"github.com/croftonlabs/crofton-core/internal/infrastructure/logging"
)

func TestRunnerStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	runner := NewRunner(h.engine, time.Millisecond, time.Millisecond, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRunnerHonoursInitialDelay(t *testing.T) {
	h := newHarness(t)
	runner := NewRunner(h.engine, time.Hour, time.Millisecond, logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if h.rules.listCalls != 0 {
		t.Errorf("cycles ran %d times during initial delay, want 0", h.rules.listCalls)
	}
}
