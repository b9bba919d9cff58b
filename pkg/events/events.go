// Package events defines event types and structures for execution lifecycle
// notifications. Events are advisory: the persistence layer remains the
// source of truth and consumers reconcile against it after any gap.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/flowmesh/pkg/models"
)

type EventType string

// TopicPrefix is the per-execution topic namespace. The full topic is
// TopicPrefix + execution id, so ordering holds within one execution.
const TopicPrefix = "flowmesh.execution."

// Topic returns the event topic for one execution.
func Topic(executionID string) string {
	return TopicPrefix + executionID
}

const ExecutionMetadataKey = "execution_id"
const EventTypeMetadataKey = "event_type"
const SequenceMetadataKey = "sequence"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	NodeStatusChangedEvent EventType = "node.status.changed"

	ExecutionLogEvent EventType = "execution.log"
)

// Event is implemented by every event payload.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
}

func newBaseEvent(eventType EventType, executionID, workflowID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		WorkflowID:  workflowID,
	}
}

type ExecutionStarted struct {
	BaseEvent

	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// NewExecutionStarted creates the event emitted when an execution leaves pending.
func NewExecutionStarted(executionID, workflowID string, triggerData map[string]any) *ExecutionStarted {
	return &ExecutionStarted{
		BaseEvent:   newBaseEvent(ExecutionStartedEvent, executionID, workflowID),
		TriggerData: triggerData,
	}
}

type ExecutionCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

func NewExecutionCompleted(executionID, workflowID string, duration time.Duration) *ExecutionCompleted {
	return &ExecutionCompleted{
		BaseEvent: newBaseEvent(ExecutionCompletedEvent, executionID, workflowID),
		Duration:  duration,
	}
}

type ExecutionFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

func NewExecutionFailed(executionID, workflowID, errMsg string, duration time.Duration) *ExecutionFailed {
	return &ExecutionFailed{
		BaseEvent: newBaseEvent(ExecutionFailedEvent, executionID, workflowID),
		Error:     errMsg,
		Duration:  duration,
	}
}

type ExecutionCancelled struct {
	BaseEvent

	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

func NewExecutionCancelled(executionID, workflowID, reason string, duration time.Duration) *ExecutionCancelled {
	return &ExecutionCancelled{
		BaseEvent: newBaseEvent(ExecutionCancelledEvent, executionID, workflowID),
		Reason:    reason,
		Duration:  duration,
	}
}

type NodeStatusChanged struct {
	BaseEvent

	NodeID   string            `json:"node_id"`
	Previous models.NodeState  `json:"previous"`
	Status   models.NodeStatus `json:"status"`
}

func (e NodeStatusChanged) GetType() EventType {
	return NodeStatusChangedEvent
}

func NewNodeStatusChanged(executionID, workflowID, nodeID string, previous models.NodeState, status *models.NodeStatus) *NodeStatusChanged {
	return &NodeStatusChanged{
		BaseEvent: newBaseEvent(NodeStatusChangedEvent, executionID, workflowID),
		NodeID:    nodeID,
		Previous:  previous,
		Status:    *status,
	}
}

type ExecutionLog struct {
	BaseEvent

	Entry models.LogEntry `json:"entry"`
}

func (e ExecutionLog) GetType() EventType {
	return ExecutionLogEvent
}

func NewExecutionLog(executionID, workflowID string, entry *models.LogEntry) *ExecutionLog {
	return &ExecutionLog{
		BaseEvent: newBaseEvent(ExecutionLogEvent, executionID, workflowID),
		Entry:     *entry,
	}
}
