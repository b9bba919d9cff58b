// Package triggers defines the protocol between trigger sources and the
// worker that starts executions on their behalf.
package triggers

import "context"

// Callback starts an execution of the given workflow. Trigger data is
// attached to the execution record as-is.
type Callback func(ctx context.Context, workflowID string, triggerData map[string]any) error

// Trigger is a source of execution requests. Start returns once the trigger
// is listening; delivery happens on background goroutines until Stop.
type Trigger interface {
	Start(ctx context.Context, callback Callback) error
	Stop(ctx context.Context) error
}
