package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transition can leave this status.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// NodeState is the per-node execution state within one execution.
type NodeState string

const (
	NodeStatePending   NodeState = "pending"
	NodeStateRunning   NodeState = "running"
	NodeStateCompleted NodeState = "completed"
	NodeStateFailed    NodeState = "failed"
	NodeStateSkipped   NodeState = "skipped"   // Logically excluded by dependency outcomes
	NodeStateCancelled NodeState = "cancelled" // Would have run, execution was cancelled
)

// Terminal reports whether the node state admits no further transition.
func (s NodeState) Terminal() bool {
	switch s {
	case NodeStateCompleted, NodeStateFailed, NodeStateSkipped, NodeStateCancelled:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the state counts as a successful outcome for
// on_success edges.
func (s NodeState) Succeeded() bool {
	return s == NodeStateCompleted
}

// NodeStatus records the progress of a single node within an execution.
type NodeStatus struct {
	State       NodeState      `json:"state"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts,omitempty"`
}

// Clone returns a deep copy so stores can hand out snapshots safely.
func (ns *NodeStatus) Clone() *NodeStatus {
	if ns == nil {
		return nil
	}

	clone := *ns
	if ns.Output != nil {
		clone.Output = make(map[string]any, len(ns.Output))
		for k, v := range ns.Output {
			clone.Output[k] = v
		}
	}

	return &clone
}

// Execution is one run of a workflow. Created pending, driven to a terminal
// status by the scheduler; never mutated after reaching a terminal status.
type Execution struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	Status       ExecutionStatus        `json:"status"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	TriggerData  map[string]any         `json:"trigger_data,omitempty"`
	NodeStatuses map[string]*NodeStatus `json:"node_statuses"`
	Error        string                 `json:"error,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewExecution creates a pending execution for the workflow with every node
// initialised to pending.
func NewExecution(id string, workflow *Workflow, triggerData map[string]any) *Execution {
	statuses := make(map[string]*NodeStatus, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		statuses[node.ID] = &NodeStatus{State: NodeStatePending}
	}

	return &Execution{
		ID:           id,
		WorkflowID:   workflow.ID,
		Status:       ExecutionStatusPending,
		TriggerData:  triggerData,
		NodeStatuses: statuses,
		CreatedAt:    time.Now().UTC(),
	}
}

// Clone returns a deep copy so stores can hand out snapshots safely.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}

	clone := *e

	if e.TriggerData != nil {
		clone.TriggerData = make(map[string]any, len(e.TriggerData))
		for k, v := range e.TriggerData {
			clone.TriggerData[k] = v
		}
	}

	clone.NodeStatuses = make(map[string]*NodeStatus, len(e.NodeStatuses))
	for id, status := range e.NodeStatuses {
		clone.NodeStatuses[id] = status.Clone()
	}

	return &clone
}
