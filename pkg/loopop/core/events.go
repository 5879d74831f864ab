package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventType identifies a kind of lifecycle event
type EventType string

// Event represents a lifecycle event published on an EventBus
type Event interface {
	Type() EventType
	Timestamp() time.Time
	Data() interface{}
}

// EventHandler handles events
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// EventHandlerFunc is a function adapter for EventHandler
type EventHandlerFunc func(ctx context.Context, event Event) error

// Handle implements EventHandler
func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// SubscriptionID identifies a subscription
type SubscriptionID string

// EventBus manages event publishing and subscription.
// Publishing never fails because of a handler; handler errors are logged.
type EventBus interface {
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID
	Unsubscribe(id SubscriptionID)
	Publish(ctx context.Context, event Event)
}

// BaseEvent provides a basic implementation of Event
type BaseEvent struct {
	EventType EventType
	Time      time.Time
	Payload   interface{}
}

// NewBaseEvent creates a new base event stamped with the current time
func NewBaseEvent(eventType EventType, data interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		Time:      time.Now(),
		Payload:   data,
	}
}

func (e *BaseEvent) Type() EventType      { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.Time }
func (e *BaseEvent) Data() interface{}    { return e.Payload }

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// MemoryEventBus is an in-memory EventBus. Handlers run synchronously on the
// publishing goroutine, which for operation events is the execution context
// loop, so they must not block.
type MemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	byID     map[SubscriptionID]EventType
	nextID   int
	logger   Logger
}

// NewMemoryEventBus creates a new in-memory event bus
func NewMemoryEventBus(logger Logger) *MemoryEventBus {
	if logger == nil {
		logger = NopLogger()
	}
	return &MemoryEventBus{
		handlers: make(map[EventType][]subscription),
		byID:     make(map[SubscriptionID]EventType),
		nextID:   1,
		logger:   logger,
	}
}

// Subscribe registers a handler for events of the given type
func (bus *MemoryEventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	id := SubscriptionID(fmt.Sprintf("sub_%d", bus.nextID))
	bus.nextID++

	bus.handlers[eventType] = append(bus.handlers[eventType], subscription{id: id, handler: handler})
	bus.byID[id] = eventType

	bus.logger.Trace().
		Str("event_type", string(eventType)).
		Str("subscription_id", string(id)).
		Msg("subscribed to event")

	return id
}

// Unsubscribe removes a handler using its subscription ID
func (bus *MemoryEventBus) Unsubscribe(id SubscriptionID) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	eventType, ok := bus.byID[id]
	if !ok {
		return
	}
	delete(bus.byID, id)

	subs := bus.handlers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			bus.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

// Publish delivers an event to all handlers registered for its type, in
// subscription order.
func (bus *MemoryEventBus) Publish(ctx context.Context, event Event) {
	bus.mu.RLock()
	subs := append([]subscription(nil), bus.handlers[event.Type()]...)
	bus.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler.Handle(ctx, event); err != nil {
			bus.logger.Warn().
				Str("event_type", string(event.Type())).
				Str("subscription_id", string(sub.id)).
				Err(err).
				Msg("event handler failed")
		}
	}
}
