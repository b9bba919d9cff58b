package agent

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticExecutor struct {
	output map[string]any
}

func (s *staticExecutor) Run(_ context.Context, _ RunInput) (*Result, error) {
	return &Result{Output: s.output}, nil
}

func testRegistry() *Registry {
	return NewRegistry(slog.Default())
}

func TestRegistryCreate(t *testing.T) {
	registry := testRegistry()
	registry.Register(
		Definition{Type: "static"},
		func(config map[string]any) (Executor, error) {
			return &staticExecutor{output: config}, nil
		},
	)

	executor, err := registry.Create("static", map[string]any{"value": 42})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), RunInput{})
	require.NoError(t, err)
	assert.Equal(t, 42, result.Output["value"])
}

func TestRegistryCreateUnknownType(t *testing.T) {
	_, err := testRegistry().Create("nope", nil)

	require.ErrorIs(t, err, ErrUnknownAgentType)
}

func TestRegistryValidateConfig(t *testing.T) {
	registry := testRegistry()
	registry.Register(
		Definition{
			Type: "strict",
			Schema: map[string]any{
				"type":     "object",
				"required": []string{"url"},
				"properties": map[string]any{
					"url": map[string]any{"type": "string"},
				},
			},
		},
		func(config map[string]any) (Executor, error) {
			return &staticExecutor{}, nil
		},
	)

	t.Run("valid config", func(t *testing.T) {
		err := registry.ValidateConfig("strict", map[string]any{"url": "http://agent.local"})
		require.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		err := registry.ValidateConfig("strict", map[string]any{})

		var configErr *ConfigError

		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "strict", configErr.AgentType)
		assert.NotEmpty(t, configErr.Details)
	})

	t.Run("wrong type", func(t *testing.T) {
		err := registry.ValidateConfig("strict", map[string]any{"url": 12})

		var configErr *ConfigError

		require.ErrorAs(t, err, &configErr)
	})

	t.Run("unknown agent type", func(t *testing.T) {
		err := registry.ValidateConfig("ghost", nil)
		require.ErrorIs(t, err, ErrUnknownAgentType)
	})
}

func TestRegistryValidateConfigNoSchema(t *testing.T) {
	registry := testRegistry()
	registry.Register(Definition{Type: "loose"}, func(config map[string]any) (Executor, error) {
		return &staticExecutor{}, nil
	})

	require.NoError(t, registry.ValidateConfig("loose", map[string]any{"anything": true}))
}

func TestRegistryHealthCheck(t *testing.T) {
	registry := testRegistry()

	_, ok := registry.HealthCheck()
	assert.False(t, ok)

	registry.Register(Definition{Type: "static"}, func(config map[string]any) (Executor, error) {
		return &staticExecutor{}, nil
	})

	msg, ok := registry.HealthCheck()
	assert.True(t, ok)
	assert.Contains(t, msg, "1 agent types")
	assert.Equal(t, []string{"static"}, registry.Types())
}
