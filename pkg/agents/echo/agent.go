// Package echo provides a trivial agent executor that returns its own config
// and input. Used for development and as the default test agent.
package echo

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/pkg/agent"
)

// Definition describes the echo agent type.
func Definition() agent.Definition {
	return agent.Definition{
		Type: "echo",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"delay_ms": map[string]any{
					"type":    "integer",
					"minimum": 0,
				},
			},
		},
	}
}

// Agent echoes its node config back as output, optionally after a delay.
type Agent struct {
	message string
	delay   time.Duration
}

// New creates an echo executor from a node config.
func New(config map[string]any) (agent.Executor, error) {
	a := &Agent{}

	if message, ok := config["message"].(string); ok {
		a.message = message
	}

	switch delay := config["delay_ms"].(type) {
	case float64:
		a.delay = time.Duration(delay) * time.Millisecond
	case int:
		a.delay = time.Duration(delay) * time.Millisecond
	}

	return a, nil
}

func (a *Agent) Run(ctx context.Context, input agent.RunInput) (*agent.Result, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	output := map[string]any{
		"node_id": input.Node.ID,
	}

	if a.message != "" {
		output["message"] = a.message
	}

	if input.TriggerData != nil {
		output["trigger_data"] = input.TriggerData
	}

	return &agent.Result{Output: output}, nil
}
