package core

import "time"

// Operation event types
const (
	EventOperationStarted   EventType = "operation.started"
	EventOperationCancelled EventType = "operation.cancelled"
	EventOperationFinished  EventType = "operation.finished"
)

// OperationEventData contains the data common to all operation events
type OperationEventData struct {
	OperationID OperationID
	Kind        string
}

// OperationStartedEvent is emitted on the execution context right before the
// start hook runs
type OperationStartedEvent struct {
	*BaseEvent
	Operation OperationEventData
}

// NewOperationStartedEvent creates a new operation started event
func NewOperationStartedEvent(id OperationID, kind string) *OperationStartedEvent {
	data := OperationEventData{OperationID: id, Kind: kind}
	return &OperationStartedEvent{
		BaseEvent: NewBaseEvent(EventOperationStarted, data),
		Operation: data,
	}
}

// OperationCancelledEvent is emitted when cancellation is requested. The
// operation may still finish with its own result if the work completed first.
type OperationCancelledEvent struct {
	*BaseEvent
	Operation OperationEventData
	State     State
}

// NewOperationCancelledEvent creates a new operation cancelled event
func NewOperationCancelledEvent(id OperationID, kind string, state State) *OperationCancelledEvent {
	data := OperationEventData{OperationID: id, Kind: kind}
	return &OperationCancelledEvent{
		BaseEvent: NewBaseEvent(EventOperationCancelled, data),
		Operation: data,
		State:     state,
	}
}

// OperationFinishedEvent is emitted once the operation is observably finished
type OperationFinishedEvent struct {
	*BaseEvent
	Operation OperationEventData
	Error     error
	Duration  time.Duration
}

// NewOperationFinishedEvent creates a new operation finished event
func NewOperationFinishedEvent(id OperationID, kind string, err error, duration time.Duration) *OperationFinishedEvent {
	data := OperationEventData{OperationID: id, Kind: kind}
	return &OperationFinishedEvent{
		BaseEvent: NewBaseEvent(EventOperationFinished, data),
		Operation: data,
		Error:     err,
		Duration:  duration,
	}
}
