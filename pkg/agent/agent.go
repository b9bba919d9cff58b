// Package agent defines the executor capability invoked once per workflow
// node, and the registry resolving executors by agent type.
package agent

import (
	"context"
	"errors"

	"github.com/flowmesh/flowmesh/pkg/models"
)

// ErrUnavailable marks transport-level failures: the agent behind the
// executor could not be reached at all. The scheduler retries these with
// backoff before declaring the node failed; any other error fails the node
// immediately.
var ErrUnavailable = errors.New("agent executor unavailable")

// RunInput carries everything an executor may need for one node invocation.
type RunInput struct {
	ExecutionID string
	WorkflowID  string
	Node        *models.NodeSpec
	TriggerData map[string]any
	// Outputs holds the recorded output of every upstream node that has
	// completed, keyed by node id.
	Outputs map[string]map[string]any
}

// Result is the successful outcome of one node invocation.
type Result struct {
	Output map[string]any
}

// Executor performs the actual work for one node. Implementations must honor
// context cancellation and the deadline attached by the scheduler; the engine
// places no other constraint on how the work is done.
type Executor interface {
	Run(ctx context.Context, input RunInput) (*Result, error)
}

// Factory builds an executor for one node from its config map.
type Factory func(config map[string]any) (Executor, error)

// Definition describes a registrable agent type: its factory plus a JSON
// schema validated against node configs at workflow creation time.
type Definition struct {
	Type   string
	Schema map[string]any
}
