// Package eventbus provides the per-execution event channel. Each execution
// has its own topic; within a topic events carry a monotonically increasing
// sequence number assigned at publish time.
package eventbus

import (
	"context"

	"github.com/flowmesh/flowmesh/pkg/events"
)

// Envelope wraps a decoded event with its delivery sequence.
type Envelope struct {
	Sequence uint64
	Type     events.EventType
	Event    events.Event
}

// EventBus publishes and subscribes to per-execution event streams.
type EventBus interface {
	// Publish assigns the next sequence number for the execution and
	// delivers the event to its topic.
	Publish(ctx context.Context, executionID string, event events.Event) error

	// Subscribe returns an ordered channel of envelopes for one execution.
	// The returned cancel function releases the subscription; the channel
	// closes after cancel or when the bus shuts down.
	Subscribe(ctx context.Context, executionID string) (<-chan Envelope, func(), error)

	GenerateID() string
	Close() error
}
