// Package services implements the transport-agnostic operations behind the
// control surface: workflow management and execution lifecycle.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/graph"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

	// ErrExecutionNotFound is returned when an execution is not found.
	ErrExecutionNotFound = persistence.ErrExecutionNotFound
)

// Workflow validates and persists workflow definitions.
type Workflow struct {
	persistence persistence.Persistence
	registry    *agent.Registry
	validator   *validator.Validate
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, registry *agent.Registry) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
		validator:   validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates a workflow definition and persists it. Validation fails
// fast: structural checks, then graph checks, then per-node config schemas.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate workflow id: %w", err)
		}

		workflow.ID = id.String()
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := w.validator.Struct(workflow); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	if err := graph.Validate(workflow); err != nil {
		return nil, err
	}

	for _, node := range workflow.Nodes {
		if err := w.registry.ValidateConfig(node.AgentType, node.Config); err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}
	}

	if err := w.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Get returns a workflow by id.
func (w *Workflow) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.Workflows().GetByID(ctx, id)
}

// List returns all workflows, newest first.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	return w.persistence.Workflows().GetAll(ctx)
}

// Delete removes a workflow definition. Existing executions keep their
// recorded node statuses and are unaffected.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	return w.persistence.Workflows().Delete(ctx, id)
}
