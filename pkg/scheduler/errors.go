package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrExecutionNotRunning indicates a cancel request for an execution the
// manager is not driving.
var ErrExecutionNotRunning = errors.New("execution is not running")

// NodeTimeoutError indicates a node exceeded its per-node timeout. It is
// treated as a node failure.
type NodeTimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *NodeTimeoutError) Error() string {
	return fmt.Sprintf("node %s exceeded timeout of %s", e.NodeID, e.Timeout)
}

// ExecutorUnavailableError indicates the agent executor could not be reached
// after the configured retries.
type ExecutorUnavailableError struct {
	NodeID   string
	Attempts int
	Err      error
}

func (e *ExecutorUnavailableError) Error() string {
	return fmt.Sprintf("executor for node %s unavailable after %d attempts: %v", e.NodeID, e.Attempts, e.Err)
}

func (e *ExecutorUnavailableError) Unwrap() error {
	return e.Err
}

// GraphStuckError indicates the ready set is empty while nodes remain pending
// with no possibility of becoming ready. It must never occur for a validated
// graph; when detected the execution is force-failed.
type GraphStuckError struct {
	ExecutionID string
	Pending     []string
}

func (e *GraphStuckError) Error() string {
	return fmt.Sprintf("execution %s stuck with pending nodes [%s]", e.ExecutionID, strings.Join(e.Pending, ", "))
}
