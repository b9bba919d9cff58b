package graph

import (
	"fmt"
	"strings"
)

// DanglingEdgeError indicates an edge referencing a node id that does not
// exist in the workflow.
type DanglingEdgeError struct {
	EdgeIndex int
	MissingID string
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("edge %d references unknown node %q", e.EdgeIndex, e.MissingID)
}

// DuplicateNodeError indicates two nodes sharing the same id.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id %q", e.NodeID)
}

// CycleError indicates the edge set is not acyclic. Cycle holds one
// discovered cycle as node ids, first node repeated at the end.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return "workflow contains a cycle: " + strings.Join(e.Cycle, " -> ")
}

// UnreachableNodeError indicates a node that no root can reach, so it could
// never be scheduled.
type UnreachableNodeError struct {
	NodeID string
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("node %q is unreachable from any root node", e.NodeID)
}

// EmptyWorkflowError indicates a workflow without nodes.
type EmptyWorkflowError struct{}

func (e *EmptyWorkflowError) Error() string {
	return "workflow must contain at least one node"
}

// InvalidConditionError indicates an edge with an unknown condition value.
type InvalidConditionError struct {
	EdgeIndex int
	Condition string
}

func (e *InvalidConditionError) Error() string {
	return fmt.Sprintf("edge %d has invalid condition %q", e.EdgeIndex, e.Condition)
}
