package core

// Queue event types
const (
	EventTaskSubmitted  EventType = "queue.task_submitted"
	EventTaskDispatched EventType = "queue.task_dispatched"
)

// TaskEventData identifies the task a queue event is about
type TaskEventData struct {
	TaskID       OperationID
	Dependencies []OperationID
}

// TaskSubmittedEvent is emitted when a queue accepts a task
type TaskSubmittedEvent struct {
	*BaseEvent
	Task TaskEventData
}

// NewTaskSubmittedEvent creates a new task submitted event
func NewTaskSubmittedEvent(id OperationID, deps []OperationID) *TaskSubmittedEvent {
	data := TaskEventData{TaskID: id, Dependencies: deps}
	return &TaskSubmittedEvent{
		BaseEvent: NewBaseEvent(EventTaskSubmitted, data),
		Task:      data,
	}
}

// TaskDispatchedEvent is emitted when a queue worker picks up a task, right
// before it is started
type TaskDispatchedEvent struct {
	*BaseEvent
	Task TaskEventData
}

// NewTaskDispatchedEvent creates a new task dispatched event
func NewTaskDispatchedEvent(id OperationID) *TaskDispatchedEvent {
	data := TaskEventData{TaskID: id}
	return &TaskDispatchedEvent{
		BaseEvent: NewBaseEvent(EventTaskDispatched, data),
		Task:      data,
	}
}
