package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations. A single
// mutex serializes read-modify-write cycles so node status updates for the
// same execution never interleave.
type ExecutionRepository struct {
	mu   sync.Mutex
	root string
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) dir() string {
	return path.Join(er.root, "executions")
}

func (er *ExecutionRepository) path(id string) string {
	return path.Join(er.dir(), id+".json")
}

// Create writes the execution as a JSON file named after its id.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if err := os.MkdirAll(er.dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	return er.write(execution)
}

func (er *ExecutionRepository) write(execution *models.Execution) error {
	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	if err := os.WriteFile(er.path(execution.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) load(id string) (*models.Execution, error) {
	data, err := os.ReadFile(er.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.Execution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &execution, nil
}

// GetByID loads a single execution by id.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.load(id)
}

// List loads every execution file matching the filters, newest first.
func (er *ExecutionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	jsonFiles, err := fs.Glob(os.DirFS(er.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.Execution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		execution, err := er.load(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if opts.WorkflowID != "" && execution.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != nil && execution.Status != *opts.Status {
			continue
		}

		executions = append(executions, execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	return executions, nil
}

// UpdateStatus moves the execution-level status, rejecting updates against a
// terminal execution.
func (er *ExecutionRepository) UpdateStatus(_ context.Context, id string, status models.ExecutionStatus, errMsg string) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.load(id)
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, "", err)
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

	return er.write(execution)
}

// UpdateNodeStatus replaces the status of a single node.
func (er *ExecutionRepository) UpdateNodeStatus(_ context.Context, executionID, nodeID string, status *models.NodeStatus) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.load(executionID)
	if err != nil {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, err)
	}

	if execution.Status.Terminal() {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, persistence.ErrExecutionTerminal)
	}

	if _, ok := execution.NodeStatuses[nodeID]; !ok {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, persistence.ErrNodeNotFound)
	}

	execution.NodeStatuses[nodeID] = status.Clone()

	return er.write(execution)
}
