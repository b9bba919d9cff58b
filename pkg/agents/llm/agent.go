// Package llm provides an agent executor backed by the Anthropic Messages
// API. The node config supplies the prompt; upstream outputs and trigger data
// are appended as context so chained agents can build on each other.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/flowmesh/flowmesh/pkg/agent"
)

const defaultMaxTokens = 1024

// Definition describes the llm agent type.
func Definition() agent.Definition {
	return agent.Definition{
		Type: "llm",
		Schema: map[string]any{
			"type":     "object",
			"required": []string{"prompt"},
			"properties": map[string]any{
				"prompt": map[string]any{"type": "string"},
				"system": map[string]any{"type": "string"},
				"model":  map[string]any{"type": "string"},
				"max_tokens": map[string]any{
					"type":    "integer",
					"minimum": 1,
				},
				"include_context": map[string]any{"type": "boolean"},
			},
		},
	}
}

// Agent invokes a model once per node and returns the generated text.
type Agent struct {
	client         *anthropic.Client
	model          anthropic.Model
	system         string
	prompt         string
	maxTokens      int64
	includeContext bool
}

// New creates an llm executor from a node config. The API key is resolved by
// the SDK from the environment.
func New(config map[string]any) (agent.Executor, error) {
	prompt, _ := config["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("llm agent requires a prompt")
	}

	a := &Agent{
		model:          anthropic.ModelClaude3_5Sonnet20241022,
		prompt:         prompt,
		maxTokens:      defaultMaxTokens,
		includeContext: true,
	}

	if model, ok := config["model"].(string); ok && model != "" {
		a.model = anthropic.Model(model)
	}

	if system, ok := config["system"].(string); ok {
		a.system = system
	}

	if maxTokens, ok := config["max_tokens"].(float64); ok && maxTokens > 0 {
		a.maxTokens = int64(maxTokens)
	}

	if include, ok := config["include_context"].(bool); ok {
		a.includeContext = include
	}

	client := anthropic.NewClient()
	a.client = &client

	return a, nil
}

// NewFromClient creates an llm executor with an explicit client, for tests.
func NewFromClient(client *anthropic.Client, config map[string]any) (agent.Executor, error) {
	executor, err := New(config)
	if err != nil {
		return nil, err
	}

	a := executor.(*Agent)
	a.client = client

	return a, nil
}

func (a *Agent) Run(ctx context.Context, input agent.RunInput) (*agent.Result, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(a.buildPrompt(input))),
		},
	}

	if a.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: %v", agent.ErrUnavailable, err)
	}

	var text strings.Builder

	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return &agent.Result{Output: map[string]any{
		"text":        text.String(),
		"stop_reason": string(resp.StopReason),
	}}, nil
}

// buildPrompt appends trigger data and upstream outputs to the configured
// prompt so downstream agents see what their predecessors produced.
func (a *Agent) buildPrompt(input agent.RunInput) string {
	if !a.includeContext {
		return a.prompt
	}

	var b strings.Builder

	b.WriteString(a.prompt)

	if len(input.TriggerData) > 0 {
		if data, err := json.Marshal(input.TriggerData); err == nil {
			b.WriteString("\n\nTrigger data:\n")
			b.Write(data)
		}
	}

	if len(input.Outputs) > 0 {
		if data, err := json.Marshal(input.Outputs); err == nil {
			b.WriteString("\n\nUpstream outputs:\n")
			b.Write(data)
		}
	}

	return b.String()
}
