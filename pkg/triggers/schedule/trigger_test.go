package schedule_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence/memory"
	"github.com/flowmesh/flowmesh/pkg/triggers/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name        string
		config      map[string]any
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid_config",
			config: map[string]any{
				"workflow_id": "wf-1",
				"cron":        "*/5 * * * *",
			},
			expectError: false,
		},
		{
			name: "missing_workflow_id",
			config: map[string]any{
				"cron": "*/5 * * * *",
			},
			expectError: true,
			errorMsg:    "workflow_id is required",
		},
		{
			name: "missing_cron",
			config: map[string]any{
				"workflow_id": "wf-1",
			},
			expectError: true,
			errorMsg:    "cron expression is required",
		},
		{
			name: "invalid_cron",
			config: map[string]any{
				"workflow_id": "wf-1",
				"cron":        "not a cron",
			},
			expectError: true,
			errorMsg:    "invalid cron expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := schedule.NewTrigger(tt.config, testLogger())

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, trigger)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "wf-1", trigger.WorkflowID)
		})
	}
}

func TestFromWorkflows(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPersistence()

	save := func(id string, metadata map[string]any) {
		require.NoError(t, store.Workflows().Save(ctx, &models.Workflow{
			ID:       id,
			Name:     "workflow " + id,
			Nodes:    []*models.NodeSpec{{ID: "a", AgentType: "echo"}},
			Metadata: metadata,
		}))
	}

	save("scheduled", map[string]any{"schedule": "0 * * * *"})
	save("unscheduled", nil)
	save("bad-cron", map[string]any{"schedule": "bogus"})

	scheduled, err := schedule.FromWorkflows(ctx, store, testLogger())
	require.NoError(t, err)

	require.Len(t, scheduled, 1)
	assert.Equal(t, "scheduled", scheduled[0].WorkflowID)
	assert.Equal(t, "0 * * * *", scheduled[0].CronExpr)
}

func TestTriggerFiresCallback(t *testing.T) {
	trigger, err := schedule.NewTrigger(map[string]any{
		"workflow_id": "wf-tick",
		"cron":        "@every 1s",
	}, testLogger())
	require.NoError(t, err)

	fired := make(chan string, 4)

	err = trigger.Start(context.Background(), func(_ context.Context, workflowID string, triggerData map[string]any) error {
		assert.Equal(t, "schedule", triggerData["trigger"])
		fired <- workflowID

		return nil
	})
	require.NoError(t, err)

	defer func() { _ = trigger.Stop(context.Background()) }()

	select {
	case workflowID := <-fired:
		assert.Equal(t, "wf-tick", workflowID)
	case <-time.After(3 * time.Second):
		t.Fatal("schedule trigger did not fire")
	}
}
