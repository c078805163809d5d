package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/me/tessera/internal/store"
	"github.com/me/tessera/internal/upload"
	"github.com/me/tessera/pkg/model"
)

// Manager owns the set of live orchestrators, one per workflow, and their
// pollers. It is the single entry point the server layer goes through.
type Manager struct {
	mu      sync.Mutex
	orcs    map[string]*Orchestrator
	pollers map[string]*Poller

	backend Backend
	store   store.Store
	pollCfg PollerConfig
	logger  *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(backend Backend, st store.Store, pollCfg PollerConfig, logger *slog.Logger) *Manager {
	return &Manager{
		orcs:    make(map[string]*Orchestrator),
		pollers: make(map[string]*Poller),
		backend: backend,
		store:   st,
		pollCfg: pollCfg,
		logger:  logger.With("component", "manager"),
	}
}

// Create validates the description, builds the workflow tree with its
// reserved upload stage, persists the description, and registers a new
// orchestrator for it.
func (m *Manager) Create(ctx context.Context, desc *model.WorkflowDescription) (*Orchestrator, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	id := "wf_" + uuid.New().String()
	wf := model.NewWorkflow(id, desc)
	orc := New(wf, m.backend, m.store, upload.NewTracker(), m.logger)

	if err := m.store.SaveDescription(ctx, id, desc); err != nil {
		return nil, fmt.Errorf("save description: %w", err)
	}

	m.mu.Lock()
	m.orcs[id] = orc
	m.mu.Unlock()

	m.logger.Info("workflow created", "workflow_id", id, "type", desc.Type)
	return orc, nil
}

// Get returns the orchestrator for a workflow id.
func (m *Manager) Get(id string) (*Orchestrator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orc, ok := m.orcs[id]
	return orc, ok
}

// List returns all registered orchestrators.
func (m *Manager) List() []*Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	orcs := make([]*Orchestrator, 0, len(m.orcs))
	for _, orc := range m.orcs {
		orcs = append(orcs, orc)
	}
	return orcs
}

// Delete stops the workflow's poller, removes the orchestrator, and deletes
// the stored description. The backend submission, if any, is left alone;
// use Kill first to cancel it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	orc, ok := m.orcs[id]
	poller := m.pollers[id]
	delete(m.orcs, id)
	delete(m.pollers, id)
	m.mu.Unlock()

	if !ok {
		return model.NewNotFoundError("workflow", id)
	}
	if poller != nil {
		poller.Stop()
	}
	if err := m.store.DeleteDescription(ctx, id); err != nil {
		return fmt.Errorf("delete description: %w", err)
	}
	m.logger.Info("workflow deleted", "workflow_id", orc.ID())
	return nil
}

// Restore rebuilds orchestrators for every persisted description. Called
// once at startup; workflows with a submission on record resume polling
// when StartPolling is invoked for them.
func (m *Manager) Restore(ctx context.Context) error {
	ids, err := m.store.ListDescriptionIDs(ctx)
	if err != nil {
		return fmt.Errorf("list descriptions: %w", err)
	}

	for _, id := range ids {
		desc, err := m.store.LoadDescription(ctx, id)
		if err != nil {
			return fmt.Errorf("load description %s: %w", id, err)
		}
		if desc == nil {
			continue
		}
		wf := model.NewWorkflow(id, desc)
		orc := New(wf, m.backend, m.store, upload.NewTracker(), m.logger)
		if err := orc.Load(ctx); err != nil {
			m.logger.Error("restore workflow", "workflow_id", id, "error", err)
			continue
		}
		m.mu.Lock()
		m.orcs[id] = orc
		m.mu.Unlock()
	}

	m.logger.Info("workflows restored", "count", len(ids))
	return nil
}

// StartPolling launches the background reconciliation loop for a workflow.
// Idempotent: a second call for the same workflow is a no-op.
func (m *Manager) StartPolling(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	orc, ok := m.orcs[id]
	if !ok {
		return model.NewNotFoundError("workflow", id)
	}
	if _, running := m.pollers[id]; running {
		return nil
	}

	poller := NewPoller(orc, m.pollCfg, m.logger)
	m.pollers[id] = poller
	go func() {
		if err := poller.Start(ctx); err != nil && err != context.Canceled {
			m.logger.Error("poller exited", "workflow_id", id, "error", err)
		}
	}()
	return nil
}

// StopPolling halts the reconciliation loop for a workflow, leaving the
// orchestrator and its last-known tree in place.
func (m *Manager) StopPolling(id string) {
	m.mu.Lock()
	poller := m.pollers[id]
	delete(m.pollers, id)
	m.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}

// Close stops every running poller. Orchestrator state stays in memory
// until the process exits; descriptions are already on disk.
func (m *Manager) Close() {
	m.mu.Lock()
	pollers := m.pollers
	m.pollers = make(map[string]*Poller)
	m.mu.Unlock()

	for id, poller := range pollers {
		poller.Stop()
		m.logger.Debug("poller stopped", "workflow_id", id)
	}
}
