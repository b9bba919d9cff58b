// Package web provides the HTTP control surface: REST handlers for workflow
// and execution management plus the SSE event stream.
package web

import (
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
)

// NodeRequest is one node in a workflow creation request.
type NodeRequest struct {
	ID        string         `json:"id"         validate:"required"`
	Name      string         `json:"name"`
	AgentType string         `json:"agent_type" validate:"required"`
	Config    map[string]any `json:"config"`
}

// EdgeRequest is one dependency edge in a workflow creation request.
type EdgeRequest struct {
	SourceID  string `json:"source_id" validate:"required"`
	TargetID  string `json:"target_id" validate:"required"`
	Condition string `json:"condition" validate:"omitempty,oneof=always on_success on_failure"`
}

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []NodeRequest  `json:"nodes"       validate:"required,min=1,dive"`
	Edges       []EdgeRequest  `json:"edges"       validate:"dive"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ToModel converts the request into a workflow definition.
func (r CreateWorkflowRequest) ToModel() *models.Workflow {
	nodes := make([]*models.NodeSpec, 0, len(r.Nodes))
	for _, node := range r.Nodes {
		nodes = append(nodes, &models.NodeSpec{
			ID:        node.ID,
			Name:      node.Name,
			AgentType: node.AgentType,
			Config:    node.Config,
		})
	}

	edges := make([]*models.EdgeSpec, 0, len(r.Edges))
	for _, edge := range r.Edges {
		edges = append(edges, &models.EdgeSpec{
			SourceID:  edge.SourceID,
			TargetID:  edge.TargetID,
			Condition: models.EdgeCondition(edge.Condition),
		})
	}

	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Nodes:       nodes,
		Edges:       edges,
		Metadata:    r.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
}

// ExecuteWorkflowRequest represents the request body for starting an execution.
type ExecuteWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ExecutionCreatedResponse acknowledges an asynchronous execution start.
type ExecutionCreatedResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}
