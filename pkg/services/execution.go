package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/scheduler"
)

// Execution starts, inspects and cancels workflow executions.
type Execution struct {
	persistence persistence.Persistence
	manager     *scheduler.Manager
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, manager *scheduler.Manager) *Execution {
	return &Execution{
		persistence: persistence,
		manager:     manager,
	}
}

// Start creates a pending execution for the workflow and hands it to the
// scheduler. It returns the record immediately; the run is asynchronous.
func (e *Execution) Start(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error) {
	workflow, err := e.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution id: %w", err)
	}

	execution := models.NewExecution(id.String(), workflow, triggerData)

	if err := e.persistence.Executions().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	if err := e.manager.Start(workflow, execution); err != nil {
		// The record exists but will never run; mark it failed so it does
		// not linger as pending.
		_ = e.persistence.Executions().UpdateStatus(ctx, execution.ID, models.ExecutionStatusFailed, err.Error())

		return nil, err
	}

	return execution, nil
}

// Get returns the current execution snapshot.
func (e *Execution) Get(ctx context.Context, id string) (*models.Execution, error) {
	return e.persistence.Executions().GetByID(ctx, id)
}

// List returns executions matching the filters, newest first.
func (e *Execution) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	return e.persistence.Executions().List(ctx, opts)
}

// Cancel requests cancellation. It is idempotent: cancelling a terminal
// execution is a no-op, and the request is accepted immediately even though
// the stop may take up to the scheduler's hard deadline.
func (e *Execution) Cancel(ctx context.Context, id string) error {
	err := e.manager.Cancel(id)
	if err == nil {
		return nil
	}

	if !errors.Is(err, scheduler.ErrExecutionNotRunning) {
		return err
	}

	execution, err := e.persistence.Executions().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if execution.Status.Terminal() {
		return nil
	}

	// Pending but never picked up by a scheduler; cancel directly in the
	// store.
	return e.persistence.Executions().UpdateStatus(ctx, id, models.ExecutionStatusCancelled, "")
}

// Logs returns the execution's log entries with optional node and level
// filters.
func (e *Execution) Logs(ctx context.Context, id string, opts persistence.ListLogsOptions) ([]*models.LogEntry, error) {
	if _, err := e.persistence.Executions().GetByID(ctx, id); err != nil {
		return nil, err
	}

	return e.persistence.Logs().List(ctx, id, opts)
}
