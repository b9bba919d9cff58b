package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/pkg/channels/gochannel"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/events"
	"github.com/flowmesh/flowmesh/pkg/models"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func collect(t *testing.T, ch <-chan eventbus.Envelope, n int) []eventbus.Envelope {
	t.Helper()

	envelopes := make([]eventbus.Envelope, 0, n)

	for len(envelopes) < n {
		select {
		case envelope, ok := <-ch:
			require.True(t, ok, "channel closed early")

			envelopes = append(envelopes, envelope)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d envelopes", len(envelopes), n)
		}
	}

	return envelopes
}

func TestPublishSubscribeOrdering(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	ch, cancel, err := bus.Subscribe(ctx, "exec-1")
	require.NoError(t, err)

	defer cancel()

	require.NoError(t, bus.Publish(ctx, "exec-1", events.NewExecutionStarted("exec-1", "wf-1", nil)))
	require.NoError(t, bus.Publish(ctx, "exec-1", events.NewNodeStatusChanged("exec-1", "wf-1", "a", models.NodeStatePending, &models.NodeStatus{State: models.NodeStateRunning})))
	require.NoError(t, bus.Publish(ctx, "exec-1", events.NewExecutionCompleted("exec-1", "wf-1", time.Second)))

	envelopes := collect(t, ch, 3)

	assert.Equal(t, events.ExecutionStartedEvent, envelopes[0].Type)
	assert.Equal(t, events.NodeStatusChangedEvent, envelopes[1].Type)
	assert.Equal(t, events.ExecutionCompletedEvent, envelopes[2].Type)

	for i, envelope := range envelopes {
		assert.Equal(t, uint64(i+1), envelope.Sequence)
	}

	changed, ok := envelopes[1].Event.(*events.NodeStatusChanged)
	require.True(t, ok)
	assert.Equal(t, "a", changed.NodeID)
	assert.Equal(t, models.NodeStateRunning, changed.Status.State)
}

func TestSequencesAreIndependentPerExecution(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	first, cancelFirst, err := bus.Subscribe(ctx, "exec-1")
	require.NoError(t, err)

	defer cancelFirst()

	second, cancelSecond, err := bus.Subscribe(ctx, "exec-2")
	require.NoError(t, err)

	defer cancelSecond()

	require.NoError(t, bus.Publish(ctx, "exec-1", events.NewExecutionStarted("exec-1", "wf-1", nil)))
	require.NoError(t, bus.Publish(ctx, "exec-2", events.NewExecutionStarted("exec-2", "wf-1", nil)))

	assert.Equal(t, uint64(1), collect(t, first, 1)[0].Sequence)
	assert.Equal(t, uint64(1), collect(t, second, 1)[0].Sequence)
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	bus := newTestBus(t)

	ch, cancel, err := bus.Subscribe(context.Background(), "exec-1")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
