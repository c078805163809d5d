package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/me/tessera/internal/logging"
	"github.com/me/tessera/pkg/model"
)

func newTestManager(t *testing.T) (*Manager, *fakeBackend, *fakeStore) {
	t.Helper()
	backend := &fakeBackend{submitID: "bk-200"}
	st := newFakeStore()
	m := NewManager(backend, st, PollerConfig{Interval: 5 * time.Millisecond, Timeout: time.Second}, logging.Discard())
	return m, backend, st
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _, st := newTestManager(t)
	ctx := context.Background()

	orc, err := m.Create(ctx, testDescription())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if orc.ID() == "" {
		t.Error("workflow id is empty")
	}
	if st.descs[orc.ID()] == nil {
		t.Error("description not persisted on create")
	}

	got, ok := m.Get(orc.ID())
	if !ok || got != orc {
		t.Error("Get did not return the created orchestrator")
	}
	if _, ok := m.Get("ghost"); ok {
		t.Error("Get(ghost) = ok")
	}
	if len(m.List()) != 1 {
		t.Errorf("List = %d, want 1", len(m.List()))
	}

	// The built tree carries the reserved upload stage at index 0.
	wf := orc.Snapshot()
	if len(wf.Stages) != 4 || !wf.Stages[0].IsUpload() {
		t.Errorf("stages = %d, stage[0] = %s", len(wf.Stages), wf.Stages[0].Name)
	}
}

func TestManager_CreateValidates(t *testing.T) {
	m, _, st := newTestManager(t)

	bad := testDescription()
	bad.Stages[0].Name = model.UploadStageName
	if _, err := m.Create(context.Background(), bad); err == nil {
		t.Error("Create accepted a reserved stage name")
	}
	if st.saves != 0 {
		t.Error("invalid description must not be persisted")
	}
}

func TestManager_Delete(t *testing.T) {
	m, _, st := newTestManager(t)
	ctx := context.Background()

	orc, err := m.Create(ctx, testDescription())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Delete(ctx, orc.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Get(orc.ID()); ok {
		t.Error("orchestrator still registered after delete")
	}
	if st.descs[orc.ID()] != nil {
		t.Error("description still stored after delete")
	}

	err = m.Delete(ctx, "ghost")
	var aerr *model.APIError
	if !errors.As(err, &aerr) || aerr.Code != model.ErrNotFound {
		t.Errorf("Delete(ghost) = %v, want NOT_FOUND", err)
	}
}

func TestManager_Restore(t *testing.T) {
	m, backend, st := newTestManager(t)
	ctx := context.Background()

	orc, err := m.Create(ctx, testDescription())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	id := orc.ID()

	// Fresh manager over the same store, as after a process restart.
	m2 := NewManager(backend, st, DefaultPollerConfig(), logging.Discard())
	if err := m2.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	restored, ok := m2.Get(id)
	if !ok {
		t.Fatal("workflow not restored")
	}
	if restored.BackendID() != "bk-200" {
		t.Errorf("restored backend id = %q, want bk-200", restored.BackendID())
	}
	if got := restored.Snapshot().Status.State; got != model.StateSubmitted {
		t.Errorf("restored state = %s, want SUBMITTED", got)
	}
}

func TestManager_Polling(t *testing.T) {
	m, backend, _ := newTestManager(t)
	ctx := context.Background()

	orc, err := m.Create(ctx, testDescription())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := orc.Submit(ctx, 2); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	backend.snapshot = testSnapshot()

	if err := m.StartPolling(ctx, orc.ID()); err != nil {
		t.Fatalf("StartPolling: %v", err)
	}
	// Idempotent: a second start is a no-op, not a second goroutine.
	if err := m.StartPolling(ctx, orc.ID()); err != nil {
		t.Fatalf("StartPolling (second): %v", err)
	}
	if err := m.StartPolling(ctx, "ghost"); err == nil {
		t.Error("StartPolling(ghost) should fail")
	}

	deadline := time.After(2 * time.Second)
	for {
		backend.mu.Lock()
		calls := backend.statusCalls
		backend.mu.Unlock()
		if calls >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poller never reconciled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.StopPolling(orc.ID())
	m.StopPolling(orc.ID()) // no-op

	if got := orc.Snapshot().Status.State; got != model.StateRunning {
		t.Errorf("state = %s, want RUNNING from background poll", got)
	}

	if err := m.StartPolling(ctx, orc.ID()); err != nil {
		t.Fatalf("StartPolling (restart): %v", err)
	}
	m.Close()
}
