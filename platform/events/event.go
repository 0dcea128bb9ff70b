// Package events is the in-process bus the booking engine uses to hand work
// to side effects: conversation events (a reply ready for delivery, a
// processed turn) and review events (a draft held for a reviewer, a decision
// taken). The event types live in internal/events; this package only moves
// them between publishers and subscribers.
package events

import (
	"context"
	"time"
)

// Event is anything published on the bus.
type Event interface {
	// EventName is the subscription key, e.g. "conversation.reply.ready".
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the publish time. Embed it in every event type.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler reacts to one event. Publish logs a returned error; PublishSync
// hands it back.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus delivers events by name to their subscribers.
type Bus interface {
	// Publish runs the subscribers in the background.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the subscribers and returns their errors joined.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers handler for events whose EventName is eventName.
	Subscribe(eventName string, handler Handler)
}
