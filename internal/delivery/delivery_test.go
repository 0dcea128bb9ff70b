package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"venue_booking_backend/internal/events"
	"venue_booking_backend/platform/logger"
)

type recordingSender struct {
	sent []DeliverReplyPayload
	err  error
}

func (s *recordingSender) SendReply(_ context.Context, reply DeliverReplyPayload) error {
	s.sent = append(s.sent, reply)
	return s.err
}

type recordingQueue struct {
	queued []DeliverReplyPayload
}

func (q *recordingQueue) EnqueueReply(_ context.Context, payload DeliverReplyPayload) error {
	q.queued = append(q.queued, payload)
	return nil
}

func readyEvent(recipient string) events.ReplyReady {
	task := uuid.New()
	return events.ReplyReady{
		BaseEvent: events.NewBaseEvent(),
		BookingID: uuid.New(),
		Step:      4,
		Kind:      "offer",
		Text:      "Here is your offer",
		Source:    events.ReplySourceApproval,
		TaskID:    &task,
		Recipient: recipient,
	}
}

func TestDispatcher_QueuesWhenRedisIsConfigured(t *testing.T) {
	q := &recordingQueue{}
	s := &recordingSender{}
	d := NewDispatcher(q, s, logger.Discard())

	e := readyEvent("jane@example.com")
	if err := d.Handle(context.Background(), e); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(q.queued) != 1 || len(s.sent) != 0 {
		t.Fatalf("expected one queued reply and no direct send, got %d/%d", len(q.queued), len(s.sent))
	}
	got := q.queued[0]
	if got.Recipient != "jane@example.com" || got.Kind != "offer" || got.TaskID == nil || *got.TaskID != e.TaskID.String() {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestDispatcher_SendsDirectlyWithoutQueue(t *testing.T) {
	s := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(nil, s, logger.Discard())

	err := d.Handle(context.Background(), readyEvent("jane@example.com"))
	if err == nil || len(s.sent) != 1 {
		t.Fatalf("expected the sender error to surface, got %v after %d sends", err, len(s.sent))
	}
}

func TestDispatcher_SkipsUnknownRecipient(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(nil, s, logger.Discard())

	if err := d.Handle(context.Background(), readyEvent("")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatal("a reply without a recipient must not be sent")
	}
}

func TestWorker_HandlesDeliverTask(t *testing.T) {
	s := &recordingSender{}
	w := &Worker{sender: s, log: logger.Discard()}

	task, err := NewDeliverReplyTask(DeliverReplyPayload{BookingID: "b-1", Recipient: "jane@example.com", Kind: "confirmation", Text: "Confirmed"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := w.handleDeliverReply(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].Text != "Confirmed" {
		t.Fatalf("unexpected sends %+v", s.sent)
	}

	bad := asynq.NewTask(TaskDeliverReply, []byte("{"))
	if err := w.handleDeliverReply(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("a malformed payload must skip retries, got %v", err)
	}
}

func TestSubjectFor(t *testing.T) {
	if got := subjectFor("confirmation"); got != "Booking confirmed" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := subjectFor("something_new"); got != subjectDefault {
		t.Fatalf("unknown kinds use the default subject, got %q", got)
	}
}
