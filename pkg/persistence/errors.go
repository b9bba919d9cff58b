// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionTerminal indicates an update against an execution that
	// already reached a terminal status. This defends against a stray node
	// dispatch racing a cancellation.
	ErrExecutionTerminal = errors.New("execution already terminal")

	// ErrNodeNotFound indicates a node id absent from the execution's
	// node status map.
	ErrNodeNotFound = errors.New("node not found in execution")
)

// ExecutionError wraps execution-related storage errors with context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g. "UpdateNodeStatus")
	ExecutionID string
	NodeID      string // Optional
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s failed for node %s of execution %s: %v", e.Op, e.NodeID, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates an execution error with context.
func NewExecutionError(op, executionID, nodeID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, NodeID: nodeID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsExecutionTerminal checks if an error indicates a rejected update against
// a terminal execution.
func IsExecutionTerminal(err error) bool {
	return errors.Is(err, ErrExecutionTerminal)
}
