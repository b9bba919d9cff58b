// Package httpagent invokes a remote agent over HTTP: the node config and
// execution context are POSTed as JSON and the reply decides the outcome.
package httpagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flowmesh/flowmesh/pkg/agent"
)

const defaultRequestTimeout = 30 * time.Second

// Definition describes the http agent type.
func Definition() agent.Definition {
	return agent.Definition{
		Type: "http",
		Schema: map[string]any{
			"type":     "object",
			"required": []string{"url"},
			"properties": map[string]any{
				"url": map[string]any{"type": "string"},
				"headers": map[string]any{
					"type": "object",
					"additionalProperties": map[string]any{
						"type": "string",
					},
				},
				"timeout_seconds": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
			},
		},
	}
}

// request is the JSON body sent to the remote agent.
type request struct {
	ExecutionID string                    `json:"execution_id"`
	WorkflowID  string                    `json:"workflow_id"`
	NodeID      string                    `json:"node_id"`
	AgentType   string                    `json:"agent_type"`
	Config      map[string]any            `json:"config,omitempty"`
	TriggerData map[string]any            `json:"trigger_data,omitempty"`
	Outputs     map[string]map[string]any `json:"outputs,omitempty"`
}

// response is the JSON reply expected from the remote agent.
type response struct {
	Status string         `json:"status"` // "success" or "failure"
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Agent calls a remote agent endpoint once per node invocation.
type Agent struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates an http executor from a node config.
func New(config map[string]any) (agent.Executor, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, errors.New("http agent requires a url")
	}

	timeout := defaultRequestTimeout
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	headers := make(map[string]string)
	if raw, ok := config["headers"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	return &Agent{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (a *Agent) Run(ctx context.Context, input agent.RunInput) (*agent.Result, error) {
	body, err := json.Marshal(request{
		ExecutionID: input.ExecutionID,
		WorkflowID:  input.WorkflowID,
		NodeID:      input.Node.ID,
		AgentType:   input.Node.AgentType,
		Config:      input.Node.Config,
		TriggerData: input.TriggerData,
		Outputs:     input.Outputs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build agent request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Connection-level failures are retryable.
		return nil, fmt.Errorf("%w: %v", agent.ErrUnavailable, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: agent endpoint returned status %d", agent.ErrUnavailable, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("agent endpoint rejected the request with status %d", resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode agent response: %w", err)
	}

	if decoded.Status != "success" {
		if decoded.Error != "" {
			return nil, errors.New(decoded.Error)
		}

		return nil, fmt.Errorf("agent reported status %q", decoded.Status)
	}

	return &agent.Result{Output: decoded.Output}, nil
}
