// Package memory provides an in-memory persistence implementation. It is the
// reference for the store contract and is used by unit tests and local
// development; all methods hand out deep copies so callers never share state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	workflows  *workflowRepository
	executions *executionRepository
	logs       *logRepository
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  &workflowRepository{items: make(map[string]*models.Workflow)},
		executions: &executionRepository{items: make(map[string]*models.Execution)},
		logs:       &logRepository{items: make(map[string][]*models.LogEntry)},
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) Logs() persistence.LogRepository {
	return p.logs
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type workflowRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Workflow
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[workflow.ID] = workflow

	return nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.items[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (r *workflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.items))
	for _, workflow := range r.items {
		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *workflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(r.items, id)

	return nil
}

type executionRepository struct {
	mu    sync.Mutex
	items map[string]*models.Execution
}

func (r *executionRepository) Create(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[execution.ID] = execution.Clone()

	return nil
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.items[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return execution.Clone(), nil
}

func (r *executionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	executions := make([]*models.Execution, 0, len(r.items))

	for _, execution := range r.items {
		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		executions = append(executions, execution.Clone())
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return executions, nil
}

func (r *executionRepository) UpdateStatus(_ context.Context, id string, status models.ExecutionStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.items[id]
	if !ok {
		return persistence.NewExecutionError("UpdateStatus", id, "", persistence.ErrExecutionNotFound)
	}

	if execution.Status.Terminal() {
		return persistence.NewExecutionError("UpdateStatus", id, "", persistence.ErrExecutionTerminal)
	}

	now := time.Now().UTC()
	execution.Status = status
	execution.Error = errMsg

	if status == models.ExecutionStatusRunning && execution.StartedAt == nil {
		execution.StartedAt = &now
	}

	if status.Terminal() {
		execution.CompletedAt = &now
	}

	return nil
}

func (r *executionRepository) UpdateNodeStatus(_ context.Context, executionID, nodeID string, status *models.NodeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.items[executionID]
	if !ok {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, persistence.ErrExecutionNotFound)
	}

	if execution.Status.Terminal() {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, persistence.ErrExecutionTerminal)
	}

	if _, ok := execution.NodeStatuses[nodeID]; !ok {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, persistence.ErrNodeNotFound)
	}

	execution.NodeStatuses[nodeID] = status.Clone()

	return nil
}

type logRepository struct {
	mu    sync.Mutex
	items map[string][]*models.LogEntry
}

func (r *logRepository) Append(_ context.Context, entry *models.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[entry.ExecutionID] = append(r.items[entry.ExecutionID], entry)

	return nil
}

func (r *logRepository) List(_ context.Context, executionID string, opts persistence.ListLogsOptions) ([]*models.LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []*models.LogEntry

	for _, entry := range r.items[executionID] {
		if opts.NodeID != "" && entry.NodeID != opts.NodeID {
			continue
		}

		if opts.Level != "" && entry.Level != opts.Level {
			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
