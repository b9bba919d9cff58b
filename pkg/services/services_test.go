package services_test

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
	"github.com/flowmesh/flowmesh/pkg/channels/gochannel"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/graph"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/persistence/memory"
	"github.com/flowmesh/flowmesh/pkg/scheduler"
	"github.com/flowmesh/flowmesh/pkg/services"
)

type nopExecutor struct{}

func (nopExecutor) Run(_ context.Context, input agent.RunInput) (*agent.Result, error) {
	return &agent.Result{Output: map[string]any{"node": input.Node.ID}}, nil
}

func setup(t *testing.T) (*services.Workflow, *services.Execution, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	registry := agent.NewRegistry(logger)
	registry.Register(agent.Definition{
		Type: "echo",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
		},
	}, func(_ map[string]any) (agent.Executor, error) { return nopExecutor{}, nil })

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

	return services.NewWorkflow(store, registry), services.NewExecution(store, manager), store
}

func validWorkflow() *models.Workflow {
	return &models.Workflow{
		Name: "pipeline",
		Nodes: []*models.NodeSpec{
			{ID: "a", Name: "first", AgentType: "echo", Config: map[string]any{"message": "hi"}},
			{ID: "b", Name: "second", AgentType: "echo"},
		},
		Edges: []*models.EdgeSpec{
			{SourceID: "a", TargetID: "b", Condition: models.EdgeConditionAlways},
		},
	}
}

func TestCreateWorkflowAssignsIDAndTimestamps(t *testing.T) {
	workflows, _, _ := setup(t)

	created, err := workflows.Create(context.Background(), validWorkflow())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())

	fetched, err := workflows.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "pipeline", fetched.Name)
}

func TestCreateWorkflowRejectsCycle(t *testing.T) {
	workflows, _, _ := setup(t)

	workflow := validWorkflow()
	workflow.Edges = append(workflow.Edges, &models.EdgeSpec{
		SourceID: "b", TargetID: "a", Condition: models.EdgeConditionAlways,
	})

	_, err := workflows.Create(context.Background(), workflow)

	var cycleErr *graph.CycleError

	require.ErrorAs(t, err, &cycleErr)
}

func TestCreateWorkflowRejectsDanglingEdge(t *testing.T) {
	workflows, _, _ := setup(t)

	workflow := validWorkflow()
	workflow.Edges = append(workflow.Edges, &models.EdgeSpec{
		SourceID: "a", TargetID: "ghost", Condition: models.EdgeConditionAlways,
	})

	_, err := workflows.Create(context.Background(), workflow)

	var danglingErr *graph.DanglingEdgeError

	require.ErrorAs(t, err, &danglingErr)
	assert.Equal(t, "ghost", danglingErr.MissingID)
}

func TestCreateWorkflowRejectsBadNodeConfig(t *testing.T) {
	workflows, _, _ := setup(t)

	workflow := validWorkflow()
	workflow.Nodes[0].Config = map[string]any{"message": 42}

	_, err := workflows.Create(context.Background(), workflow)

	var configErr *agent.ConfigError

	require.ErrorAs(t, err, &configErr)
}

func TestCreateWorkflowRejectsUnknownAgentType(t *testing.T) {
	workflows, _, _ := setup(t)

	workflow := validWorkflow()
	workflow.Nodes[1].AgentType = "nope"

	_, err := workflows.Create(context.Background(), workflow)
	require.ErrorIs(t, err, agent.ErrUnknownAgentType)
}

func TestStartExecutionRunsToCompletion(t *testing.T) {
	workflows, executions, _ := setup(t)
	ctx := context.Background()

	created, err := workflows.Create(ctx, validWorkflow())
	require.NoError(t, err)

	execution, err := executions.Start(ctx, created.ID, map[string]any{"source": "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, execution.ID)

	var final *models.Execution

	require.Eventually(t, func() bool {
		final, err = executions.Get(ctx, execution.ID)

		return err == nil && final.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
	assert.Equal(t, models.NodeStateCompleted, final.NodeStatuses["a"].State)

	logs, err := executions.Logs(ctx, execution.ID, persistence.ListLogsOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestStartExecutionUnknownWorkflow(t *testing.T) {
	_, executions, _ := setup(t)

	_, err := executions.Start(context.Background(), "missing", nil)
	require.ErrorIs(t, err, services.ErrWorkflowNotFound)
}

func TestCancelIsIdempotent(t *testing.T) {
	workflows, executions, _ := setup(t)
	ctx := context.Background()

	created, err := workflows.Create(ctx, validWorkflow())
	require.NoError(t, err)

	execution, err := executions.Start(ctx, created.ID, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		e, err := executions.Get(ctx, execution.ID)

		return err == nil && e.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	// Cancel after terminal is a no-op, repeatedly.
	require.NoError(t, executions.Cancel(ctx, execution.ID))
	require.NoError(t, executions.Cancel(ctx, execution.ID))

	final, err := executions.Get(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, final.Status)
}

func TestCancelUnknownExecution(t *testing.T) {
	_, executions, _ := setup(t)

	err := executions.Cancel(context.Background(), "missing")
	require.ErrorIs(t, err, services.ErrExecutionNotFound)
}

func TestCancelPendingExecutionNotDriven(t *testing.T) {
	_, executions, store := setup(t)
	ctx := context.Background()

	workflow := validWorkflow()
	workflow.ID = "wf-orphan"
	execution := models.NewExecution("exec-orphan", workflow, nil)
	require.NoError(t, store.Executions().Create(ctx, execution))

	require.NoError(t, executions.Cancel(ctx, "exec-orphan"))

	final, err := executions.Get(ctx, "exec-orphan")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, final.Status)
}
