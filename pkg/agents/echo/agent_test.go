package echo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/models"
)

func TestRun(t *testing.T) {
	executor, err := New(map[string]any{"message": "hello"})
	require.NoError(t, err)

	result, err := executor.Run(context.Background(), agent.RunInput{
		ExecutionID: "exec-1",
		Node:        &models.NodeSpec{ID: "n1", AgentType: "echo"},
		TriggerData: map[string]any{"key": "value"},
	})

	require.NoError(t, err)
	assert.Equal(t, "n1", result.Output["node_id"])
	assert.Equal(t, "hello", result.Output["message"])
	assert.Equal(t, map[string]any{"key": "value"}, result.Output["trigger_data"])
}

func TestRunHonorsCancellation(t *testing.T) {
	executor, err := New(map[string]any{"delay_ms": 5000})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = executor.Run(ctx, agent.RunInput{Node: &models.NodeSpec{ID: "n1"}})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
