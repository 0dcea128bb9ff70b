package delivery

import (
	"context"

	"venue_booking_backend/internal/events"
	"venue_booking_backend/platform/logger"
)

// Enqueuer queues a reply for the worker.
type Enqueuer interface {
	EnqueueReply(ctx context.Context, payload DeliverReplyPayload) error
}

// Dispatcher turns ReplyReady events into deliveries: queued when an
// Enqueuer is set, sent in process otherwise.
type Dispatcher struct {
	queue  Enqueuer
	sender Sender
	log    *logger.Logger
}

// NewDispatcher returns a dispatcher. queue may be nil.
func NewDispatcher(queue Enqueuer, sender Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{queue: queue, sender: sender, log: log}
}

// Subscribe registers the dispatcher on bus.
func (d *Dispatcher) Subscribe(bus events.Bus) {
	bus.Subscribe(events.ReplyReady{}.EventName(), d)
}

// Handle implements events.Handler.
func (d *Dispatcher) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.ReplyReady)
	if !ok {
		return nil
	}
	if e.Recipient == "" {
		d.log.Info("reply kept on record: no client address yet", "bookingId", e.BookingID.String(), "kind", e.Kind)
		return nil
	}

	payload := DeliverReplyPayload{
		BookingID: e.BookingID.String(),
		Recipient: e.Recipient,
		Kind:      e.Kind,
		Source:    e.Source,
		Text:      e.Text,
	}
	if e.TaskID != nil {
		id := e.TaskID.String()
		payload.TaskID = &id
	}

	if d.queue != nil {
		return d.queue.EnqueueReply(ctx, payload)
	}
	return d.sender.SendReply(ctx, payload)
}
