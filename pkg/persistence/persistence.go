// Package persistence provides the storage abstraction for workflows,
// execution records and execution logs. The store is the single source of
// truth for persisted state; the event channel only notifies.
package persistence

import (
	"context"

	"github.com/flowmesh/flowmesh/pkg/models"
)

// Persistence bundles the repositories of one storage backend.
type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Logs() LogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// ListExecutionsOptions filters execution listings.
type ListExecutionsOptions struct {
	WorkflowID string
	Status     *models.ExecutionStatus
}

// ExecutionRepository stores execution records. Node status updates for the
// same execution are linearizable: concurrent updates to different nodes must
// not corrupt the node status map, and any update against a terminal
// execution is rejected with ErrExecutionTerminal.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	List(ctx context.Context, opts ListExecutionsOptions) ([]*models.Execution, error)

	// UpdateStatus moves the execution-level status. Setting a running
	// status records started_at; setting a terminal status records
	// completed_at and the optional error message.
	UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, errMsg string) error

	// UpdateNodeStatus atomically replaces the status of a single node.
	UpdateNodeStatus(ctx context.Context, executionID, nodeID string, status *models.NodeStatus) error
}

// ListLogsOptions filters log listings.
type ListLogsOptions struct {
	NodeID string
	Level  models.LogLevel
}

// LogRepository stores append-only execution log entries.
type LogRepository interface {
	Append(ctx context.Context, entry *models.LogEntry) error
	List(ctx context.Context, executionID string, opts ListLogsOptions) ([]*models.LogEntry, error)
}
