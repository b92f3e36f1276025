package shared

import "context"

// EventHandler consumes domain events. EventTypes narrows what the handler
// receives; an empty slice subscribes it to the whole stream.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventPublisher is the write side of the bus. Services publish the events
// drained from an aggregate after its transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber is the read side of the bus. Explicit event types override
// the handler's own EventTypes.
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus combines both sides
type EventBus interface {
	EventPublisher
	EventSubscriber
}
