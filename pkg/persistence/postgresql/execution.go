package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations. Updates
// carry a terminal-status guard in the WHERE clause, so a stale writer loses
// the race instead of resurrecting a finished execution.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution record.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data for execution %s: %w", execution.ID, err)
	}

	nodeStatuses, err := json.Marshal(execution.NodeStatuses)
	if err != nil {
		return fmt.Errorf("failed to marshal node statuses for execution %s: %w", execution.ID, err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, trigger_data, node_statuses, error, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		triggerData,
		nodeStatuses,
		execution.Error,
		execution.StartedAt,
		execution.CompletedAt,
		execution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution %s: %w", execution.ID, err)
	}

	return nil
}

// GetByID returns an execution by its id.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , status
		  , trigger_data
		  , node_statuses
		  , error
		  , started_at
		  , completed_at
		  , created_at
		FROM executions
		WHERE id = $1
	`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}

	return execution, nil
}

// List returns executions matching the filters, newest first.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.Execution, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , status
		  , trigger_data
		  , node_statuses
		  , error
		  , started_at
		  , completed_at
		  , created_at
		FROM executions
		WHERE ($1 = '' OR workflow_id::text = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`

	var status string
	if opts.Status != nil {
		status = string(*opts.Status)
	}

	rows, err := r.db.QueryContext(ctx, query, opts.WorkflowID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// UpdateStatus moves the execution-level status. The terminal guard sits in
// the WHERE clause so the check and the write are a single statement.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, errMsg string) error {
	query := `
		UPDATE executions
		SET status = $2
		  , error = $3
		  , started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END
		  , completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE completed_at END
		WHERE id = $1
		  AND status NOT IN ('completed', 'failed', 'cancelled')
	`

	result, err := r.db.ExecContext(ctx, query, id, status, errMsg)
	if err != nil {
		return persistence.NewExecutionError("UpdateStatus", id, "", err)
	}

	return r.checkGuardedUpdate(ctx, result, "UpdateStatus", id, "")
}

// UpdateNodeStatus atomically replaces the status of a single node inside the
// node_statuses document.
func (r *ExecutionRepository) UpdateNodeStatus(ctx context.Context, executionID, nodeID string, status *models.NodeStatus) error {
	encoded, err := json.Marshal(status)
	if err != nil {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, err)
	}

	query := `
		UPDATE executions
		SET node_statuses = jsonb_set(node_statuses, ARRAY[$2], $3::jsonb)
		WHERE id = $1
		  AND node_statuses ? $2
		  AND status NOT IN ('completed', 'failed', 'cancelled')
	`

	result, err := r.db.ExecContext(ctx, query, executionID, nodeID, encoded)
	if err != nil {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, nodeID, err)
	}

	return r.checkGuardedUpdate(ctx, result, "UpdateNodeStatus", executionID, nodeID)
}

// checkGuardedUpdate distinguishes why a guarded UPDATE touched no rows.
func (r *ExecutionRepository) checkGuardedUpdate(ctx context.Context, result sql.Result, op, executionID, nodeID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError(op, executionID, nodeID, err)
	}

	if affected > 0 {
		return nil
	}

	var status string

	err = r.db.QueryRowContext(ctx, "SELECT status FROM executions WHERE id = $1", executionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewExecutionError(op, executionID, nodeID, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return persistence.NewExecutionError(op, executionID, nodeID, err)
	}

	if models.ExecutionStatus(status).Terminal() {
		return persistence.NewExecutionError(op, executionID, nodeID, persistence.ErrExecutionTerminal)
	}

	return persistence.NewExecutionError(op, executionID, nodeID, persistence.ErrNodeNotFound)
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution    models.Execution
		triggerData  []byte
		nodeStatuses []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&triggerData,
		&nodeStatuses,
		&execution.Error,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if triggerData != nil {
		if err := json.Unmarshal(triggerData, &execution.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
		}
	}

	if err := json.Unmarshal(nodeStatuses, &execution.NodeStatuses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node statuses: %w", err)
	}

	return &execution, nil
}
