package eventbus

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/flowmesh/flowmesh/pkg/events"
)

// WatermillEventBus implements EventBus on top of a watermill publisher and
// subscriber pair. Sequence numbers are assigned per execution under a mutex,
// so publishers racing on the same execution still get distinct, increasing
// sequences.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu        sync.Mutex
	sequences map[string]uint64
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		sequences:  make(map[string]uint64),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) nextSequence(executionID string) uint64 {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.sequences[executionID]++

	return eb.sequences[executionID]
}

func (eb *WatermillEventBus) Publish(_ context.Context, executionID string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.ExecutionMetadataKey, executionID)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.Metadata.Set(events.SequenceMetadataKey, strconv.FormatUint(eb.nextSequence(executionID), 10))

	return eb.publisher.Publish(events.Topic(executionID), msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, executionID string) (<-chan Envelope, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	messages, err := eb.subscriber.Subscribe(subCtx, events.Topic(executionID))
	if err != nil {
		cancel()

		return nil, nil, err
	}

	envelopes := make(chan Envelope, 64)

	go func() {
		defer close(envelopes)

		for msg := range messages {
			envelope, ok := decode(msg)
			if !ok {
				msg.Nack()

				continue
			}

			select {
			case envelopes <- envelope:
				msg.Ack()
			case <-subCtx.Done():
				msg.Nack()

				return
			}
		}
	}()

	return envelopes, cancel, nil
}

func decode(msg *message.Message) (Envelope, bool) {
	var event events.Event

	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	switch eventType {
	case events.ExecutionStartedEvent:
		event = &events.ExecutionStarted{}
	case events.ExecutionCompletedEvent:
		event = &events.ExecutionCompleted{}
	case events.ExecutionFailedEvent:
		event = &events.ExecutionFailed{}
	case events.ExecutionCancelledEvent:
		event = &events.ExecutionCancelled{}
	case events.NodeStatusChangedEvent:
		event = &events.NodeStatusChanged{}
	case events.ExecutionLogEvent:
		event = &events.ExecutionLog{}
	default:
		return Envelope{}, false
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return Envelope{}, false
	}

	sequence, err := strconv.ParseUint(msg.Metadata.Get(events.SequenceMetadataKey), 10, 64)
	if err != nil {
		return Envelope{}, false
	}

	return Envelope{Sequence: sequence, Type: eventType, Event: event}, true
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
