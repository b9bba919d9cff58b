package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeConditionValid(t *testing.T) {
	tests := []struct {
		name      string
		condition EdgeCondition
		want      bool
	}{
		{"always", EdgeConditionAlways, true},
		{"on_success", EdgeConditionOnSuccess, true},
		{"on_failure", EdgeConditionOnFailure, true},
		{"empty", EdgeCondition(""), false},
		{"unknown", EdgeCondition("sometimes"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.condition.Valid())
		})
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusPending.Terminal())
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.True(t, ExecutionStatusCompleted.Terminal())
	assert.True(t, ExecutionStatusFailed.Terminal())
	assert.True(t, ExecutionStatusCancelled.Terminal())
}

func TestNodeStateTerminal(t *testing.T) {
	assert.False(t, NodeStatePending.Terminal())
	assert.False(t, NodeStateRunning.Terminal())
	assert.True(t, NodeStateCompleted.Terminal())
	assert.True(t, NodeStateFailed.Terminal())
	assert.True(t, NodeStateSkipped.Terminal())
	assert.True(t, NodeStateCancelled.Terminal())
}

func TestWorkflowNode(t *testing.T) {
	workflow := &Workflow{
		Nodes: []*NodeSpec{
			{ID: "a", AgentType: "echo"},
			{ID: "b", AgentType: "echo"},
		},
	}

	require.NotNil(t, workflow.Node("a"))
	assert.Equal(t, "a", workflow.Node("a").ID)
	assert.Nil(t, workflow.Node("missing"))
}

func TestNewExecution(t *testing.T) {
	workflow := &Workflow{
		ID: "wf-1",
		Nodes: []*NodeSpec{
			{ID: "a", AgentType: "echo"},
			{ID: "b", AgentType: "echo"},
		},
	}

	execution := NewExecution("exec-1", workflow, map[string]any{"source": "test"})

	assert.Equal(t, "exec-1", execution.ID)
	assert.Equal(t, "wf-1", execution.WorkflowID)
	assert.Equal(t, ExecutionStatusPending, execution.Status)
	require.Len(t, execution.NodeStatuses, 2)
	assert.Equal(t, NodeStatePending, execution.NodeStatuses["a"].State)
	assert.Equal(t, NodeStatePending, execution.NodeStatuses["b"].State)
	assert.False(t, execution.CreatedAt.IsZero())
}

func TestExecutionClone(t *testing.T) {
	now := time.Now().UTC()
	execution := &Execution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Status:     ExecutionStatusRunning,
		StartedAt:  &now,
		TriggerData: map[string]any{
			"source": "test",
		},
		NodeStatuses: map[string]*NodeStatus{
			"a": {State: NodeStateCompleted, Output: map[string]any{"value": 1}},
		},
	}

	clone := execution.Clone()

	require.NotSame(t, execution, clone)
	assert.Equal(t, execution.ID, clone.ID)

	// Mutating the clone must not leak into the original.
	clone.NodeStatuses["a"].State = NodeStateFailed
	clone.NodeStatuses["a"].Output["value"] = 2
	clone.TriggerData["source"] = "other"

	assert.Equal(t, NodeStateCompleted, execution.NodeStatuses["a"].State)
	assert.Equal(t, 1, execution.NodeStatuses["a"].Output["value"])
	assert.Equal(t, "test", execution.TriggerData["source"])
}
