package hil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/platform/logger"
)

// Store persists tasks.
type Store interface {
	// InsertPending stores task unless a pending task with the same signature
	// exists, in which case that task is returned with created=false.
	InsertPending(ctx context.Context, task Task) (stored Task, created bool, err error)
	Get(ctx context.Context, id uuid.UUID) (Task, error)
	// ListPending returns pending tasks oldest first, for one booking when
	// bookingID is set.
	ListPending(ctx context.Context, bookingID *uuid.UUID) ([]Task, error)
	// Decide moves a pending task to the decision's status. A task that is no
	// longer pending yields a *DecisionConflict.
	Decide(ctx context.Context, id uuid.UUID, d Decision) (Task, error)
	// Reopen returns a decided task to pending and clears its decision.
	Reopen(ctx context.Context, id uuid.UUID) (Task, error)
}

// EnqueueRequest is a draft to hold for review.
type EnqueueRequest struct {
	BookingID uuid.UUID
	Draft     domain.Draft
	Blocking  bool
}

// Queue is the review queue API used by the conversation service.
type Queue struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
	now   func() time.Time
}

// NewQueue returns a queue over store. bus may be nil.
func NewQueue(store Store, bus events.Bus, log *logger.Logger) *Queue {
	return &Queue{store: store, bus: bus, log: log, now: time.Now}
}

// Enqueue records a review task for the draft. Repeating the same draft for
// the same booking and step while a task is pending returns that task.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (Task, bool, error) {
	if req.BookingID == uuid.Nil {
		return Task{}, false, errors.New("enqueue review: booking id is required")
	}
	task := Task{
		ID:        uuid.New(),
		BookingID: req.BookingID,
		Step:      req.Draft.Step,
		Type:      req.Draft.Kind,
		Text:      req.Draft.Text,
		Summary:   req.Draft.Summary,
		Signature: domain.ReviewSignature(req.BookingID, req.Draft.Step, domain.ContentHash(req.Draft.Text)),
		Status:    StatusPending,
		Blocking:  req.Blocking,
		CreatedAt: q.now().UTC(),
	}

	stored, created, err := q.store.InsertPending(ctx, task)
	if err != nil {
		return Task{}, false, fmt.Errorf("enqueue review: %w", err)
	}
	if !created {
		q.log.Info("review task already pending", "taskId", stored.ID.String(), "bookingId", stored.BookingID.String())
		return stored, false, nil
	}

	q.log.Info("review task enqueued",
		"taskId", stored.ID.String(), "bookingId", stored.BookingID.String(),
		"step", int(stored.Step), "type", stored.Type, "blocking", stored.Blocking)
	if q.bus != nil {
		q.bus.Publish(ctx, events.ReviewRequested{
			BaseEvent: events.NewBaseEvent(),
			TaskID:    stored.ID,
			BookingID: stored.BookingID,
			Step:      int(stored.Step),
			Type:      stored.Type,
			Blocking:  stored.Blocking,
		})
	}
	return stored, true, nil
}

// Approve decides a pending task as approved. editedText replaces the draft
// text when non-empty.
func (q *Queue) Approve(ctx context.Context, id uuid.UUID, editedText *string, reviewer string) (Task, error) {
	if editedText != nil && strings.TrimSpace(*editedText) == "" {
		editedText = nil
	}
	return q.decide(ctx, id, Decision{Status: StatusApproved, EditedText: editedText, Reviewer: reviewer})
}

// Reject decides a pending task as rejected.
func (q *Queue) Reject(ctx context.Context, id uuid.UUID, notes, reviewer string) (Task, error) {
	return q.decide(ctx, id, Decision{Status: StatusRejected, Notes: notes, Reviewer: reviewer})
}

// Supersede closes a pending task whose draft the booking no longer backs.
func (q *Queue) Supersede(ctx context.Context, id uuid.UUID) (Task, error) {
	return q.decide(ctx, id, Decision{Status: StatusSuperseded, Notes: "replaced by a newer draft"})
}

// Reopen undoes a decision whose effects on the booking could not be saved.
func (q *Queue) Reopen(ctx context.Context, id uuid.UUID) (Task, error) {
	task, err := q.store.Reopen(ctx, id)
	if err != nil {
		return Task{}, fmt.Errorf("reopen review task %s: %w", id, err)
	}
	q.log.Warn("review decision undone", "taskId", id.String(), "bookingId", task.BookingID.String())
	return task, nil
}

func (q *Queue) decide(ctx context.Context, id uuid.UUID, d Decision) (Task, error) {
	d.At = q.now().UTC()
	task, err := q.store.Decide(ctx, id, d)
	if err != nil {
		var conflict *DecisionConflict
		if errors.As(err, &conflict) {
			q.log.ReviewDecision(id.String(), "", string(d.Status), false, "already "+string(conflict.Status))
		}
		return Task{}, err
	}

	q.log.ReviewDecision(task.ID.String(), task.BookingID.String(), string(task.Status), true, "")
	if q.bus != nil {
		q.bus.Publish(ctx, events.ReviewDecided{
			BaseEvent: events.NewBaseEvent(),
			TaskID:    task.ID,
			BookingID: task.BookingID,
			Status:    string(task.Status),
			Edited:    task.EditedText != nil,
		})
	}
	return task, nil
}

// Get returns one task.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (Task, error) {
	return q.store.Get(ctx, id)
}

// ListPending returns pending tasks, optionally for one booking.
func (q *Queue) ListPending(ctx context.Context, bookingID *uuid.UUID) ([]Task, error) {
	return q.store.ListPending(ctx, bookingID)
}
