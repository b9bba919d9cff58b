// Package models defines the core domain models for DAG-based agent workflow orchestration.
package models

import "time"

// EdgeCondition governs when a dependency edge is considered satisfied.
type EdgeCondition string

const (
	EdgeConditionAlways    EdgeCondition = "always"     // Source reached any terminal outcome
	EdgeConditionOnSuccess EdgeCondition = "on_success" // Source completed successfully
	EdgeConditionOnFailure EdgeCondition = "on_failure" // Source failed
)

// Valid reports whether the condition is one of the known edge conditions.
func (c EdgeCondition) Valid() bool {
	switch c {
	case EdgeConditionAlways, EdgeConditionOnSuccess, EdgeConditionOnFailure:
		return true
	default:
		return false
	}
}

// NodeSpec describes a single agent invocation within a workflow.
type NodeSpec struct {
	ID        string         `json:"id"         validate:"required"`
	Name      string         `json:"name"`
	AgentType string         `json:"agent_type" validate:"required"`
	Config    map[string]any `json:"config"`
}

// EdgeSpec is a dependency relation between two nodes of the same workflow.
type EdgeSpec struct {
	SourceID  string        `json:"source_id" validate:"required"`
	TargetID  string        `json:"target_id" validate:"required"`
	Condition EdgeCondition `json:"condition"`
}

// Workflow is a DAG of agent invocations. It is immutable once referenced by
// an execution; the API creates a new workflow instead of mutating one in place.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*NodeSpec    `json:"nodes"       validate:"required,min=1"`
	Edges       []*EdgeSpec    `json:"edges"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(id string) *NodeSpec {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}
