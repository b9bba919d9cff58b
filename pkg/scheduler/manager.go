package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/graph"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// Manager owns the schedulers of all executions this process is driving.
// Every dispatched execution is tracked, so cancellation and shutdown reach
// all in-flight work deterministically.
type Manager struct {
	cfg         Config
	logger      *slog.Logger
	store       persistence.Persistence
	bus         eventbus.EventBus
	registry    *agent.Registry
	globalSlots chan struct{}

	mu       sync.Mutex
	running  map[string]*handle
	shutdown bool
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager validates the config and creates a manager.
func NewManager(
	logger *slog.Logger,
	store persistence.Persistence,
	bus eventbus.EventBus,
	registry *agent.Registry,
	cfg Config,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var globalSlots chan struct{}
	if cfg.GlobalSlots > 0 {
		globalSlots = make(chan struct{}, cfg.GlobalSlots)
	}

	return &Manager{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		bus:         bus,
		registry:    registry,
		globalSlots: globalSlots,
		running:     make(map[string]*handle),
	}, nil
}

// Start hands a pending execution to a scheduler and returns immediately.
// The execution runs detached from the caller's context; only Cancel and
// Shutdown stop it.
func (m *Manager) Start(workflow *models.Workflow, execution *models.Execution) error {
	g, err := graph.New(workflow)
	if err != nil {
		return fmt.Errorf("workflow %s is not executable: %w", workflow.ID, err)
	}

	if err := g.Validate(); err != nil {
		return fmt.Errorf("workflow %s is not executable: %w", workflow.ID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()

	if m.shutdown {
		m.mu.Unlock()
		cancel()

		return fmt.Errorf("manager is shut down, rejecting execution %s", execution.ID)
	}

	if _, exists := m.running[execution.ID]; exists {
		m.mu.Unlock()
		cancel()

		return fmt.Errorf("execution %s is already running", execution.ID)
	}

	m.running[execution.ID] = h
	m.mu.Unlock()

	s := NewScheduler(m.logger, m.store, m.bus, m.registry, m.cfg, m.globalSlots, workflow, g, execution)

	go func() {
		defer func() {
			cancel()
			close(h.done)

			m.mu.Lock()
			delete(m.running, execution.ID)
			m.mu.Unlock()
		}()

		if err := s.Run(runCtx); err != nil {
			m.logger.Error("execution finished with engine defect",
				"execution_id", execution.ID, "error", err)
		}
	}()

	return nil
}

// Cancel requests cancellation of a running execution. It returns
// ErrExecutionNotRunning when this manager is not driving the execution;
// callers treat that as a no-op for already-terminal executions.
func (m *Manager) Cancel(executionID string) error {
	m.mu.Lock()
	h, ok := m.running[executionID]
	m.mu.Unlock()

	if !ok {
		return ErrExecutionNotRunning
	}

	h.cancel()

	return nil
}

// IsRunning reports whether this manager is currently driving the execution.
func (m *Manager) IsRunning(executionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.running[executionID]

	return ok
}

// Shutdown cancels all running executions and waits for them to reach a
// terminal status, or for the context to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true

	handles := make([]*handle, 0, len(m.running))
	for _, h := range m.running {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return fmt.Errorf("shutdown interrupted: %w", ctx.Err())
		}
	}

	return nil
}
