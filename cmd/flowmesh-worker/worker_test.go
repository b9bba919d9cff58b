package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/pkg/agent"
	"github.com/flowmesh/flowmesh/pkg/agents/echo"
	"github.com/flowmesh/flowmesh/pkg/channels/gochannel"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/persistence/memory"
	"github.com/flowmesh/flowmesh/pkg/scheduler"
	"github.com/flowmesh/flowmesh/pkg/services"
)

func setupWorker(t *testing.T) (*Worker, *services.Execution, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	registry := agent.NewRegistry(logger)
	registry.Register(echo.Definition(), echo.New)

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	manager, err := scheduler.NewManager(logger, store, bus, registry, scheduler.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = manager.Shutdown(ctx)
	})

	executions := services.NewExecution(store, manager)
	worker := NewWorker("worker-test", logger, store, manager, executions, nil)

	return worker, executions, store
}

func TestStartExecutionCallback(t *testing.T) {
	worker, executions, store := setupWorker(t)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:    "wf-1",
		Name:  "triggered workflow",
		Nodes: []*models.NodeSpec{{ID: "a", AgentType: "echo"}},
	}
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	require.NoError(t, worker.startExecution(ctx, "wf-1", map[string]any{"trigger": "test"}))

	list, err := executions.List(ctx, persistence.ListExecutionsOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.Eventually(t, func() bool {
		execution, err := executions.Get(ctx, list[0].ID)

		return err == nil && execution.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestStartExecutionUnknownWorkflow(t *testing.T) {
	worker, _, _ := setupWorker(t)

	err := worker.startExecution(context.Background(), "missing", nil)
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)
}

func TestStartTriggersBuildsScheduledWorkflows(t *testing.T) {
	worker, _, store := setupWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workflow := &models.Workflow{
		ID:       "wf-sched",
		Name:     "scheduled workflow",
		Nodes:    []*models.NodeSpec{{ID: "a", AgentType: "echo"}},
		Metadata: map[string]any{"schedule": "0 * * * *"},
	}
	require.NoError(t, store.Workflows().Save(ctx, workflow))

	require.NoError(t, worker.startTriggers(ctx))
	assert.Len(t, worker.triggers, 1)

	for _, trigger := range worker.triggers {
		require.NoError(t, trigger.Stop(ctx))
	}
}
