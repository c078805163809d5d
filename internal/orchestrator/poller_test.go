package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/me/tessera/internal/logging"
	"github.com/me/tessera/pkg/model"
)

func TestPoller_Tick(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()

	p := NewPoller(orc, PollerConfig{Interval: time.Hour, Timeout: time.Second}, logging.Discard())
	p.Tick(ctx)

	if backend.statusCalls != 1 {
		t.Errorf("status calls = %d, want 1", backend.statusCalls)
	}
	if got := orc.Snapshot().Status.State; got != model.StateRunning {
		t.Errorf("state after tick = %s, want RUNNING", got)
	}
}

func TestPoller_TickSwallowsTransientFailure(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()
	p := NewPoller(orc, PollerConfig{Interval: time.Hour, Timeout: time.Second}, logging.Discard())
	p.Tick(ctx)

	backend.statusErr = errors.New("gateway timeout")
	p.Tick(ctx)

	// Last good tree survives the failed poll.
	if got := orc.Snapshot().Status.State; got != model.StateRunning {
		t.Errorf("state after failed tick = %s, want RUNNING", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	orc, backend, _ := newTestOrchestrator(t)
	ctx := context.Background()

	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()

	p := NewPoller(orc, PollerConfig{Interval: 5 * time.Millisecond, Timeout: time.Second}, logging.Discard())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		backend.mu.Lock()
		calls := backend.statusCalls
		backend.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poller never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	p.Stop()
	if err := <-errCh; err != nil {
		t.Errorf("Start returned %v, want nil on Stop", err)
	}
	// Stop is idempotent.
	p.Stop()
}

func TestPoller_StartContextCancel(t *testing.T) {
	orc, _, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())

	p := NewPoller(orc, PollerConfig{Interval: time.Hour, Timeout: time.Second}, logging.Discard())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(ctx) }()

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Start returned %v, want context.Canceled", err)
	}
}
