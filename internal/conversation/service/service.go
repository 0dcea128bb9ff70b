// Package service is the turn API of the conversation engine. It owns the
// per-turn lifecycle: lock the booking, load it, detect signals once, run the
// pre-route pipeline and the router, turn drafts into replies or review
// tasks, and save the record exactly once.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/lock"
	"venue_booking_backend/internal/conversation/pipeline"
	"venue_booking_backend/internal/conversation/policy"
	"venue_booking_backend/internal/conversation/repository"
	"venue_booking_backend/internal/conversation/router"
	"venue_booking_backend/internal/conversation/shortcut"
	"venue_booking_backend/internal/conversation/steps"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/internal/hil"
	"venue_booking_backend/internal/nlu"
	"venue_booking_backend/platform/apperr"
	"venue_booking_backend/platform/logger"
)

var tracer = otel.Tracer("venue_booking_backend/internal/conversation/service")

// ErrBusy is returned when another turn holds the booking past the caller's
// deadline.
var ErrBusy = apperr.New(apperr.KindLocked, "booking is being processed")

// Detector produces the signals of a message. It never fails: a provider
// error degrades the signals instead.
type Detector interface {
	Detect(ctx context.Context, message string, hints nlu.Hints) domain.Signals
}

// Deps wires the service.
type Deps struct {
	Store    repository.Store
	Locker   lock.Locker
	Detector Detector
	Queue    *hil.Queue
	Policy   *policy.Policy
	Bus      events.Bus
	Log      *logger.Logger
	// ChoiceTTL bounds how long a presented list can be answered by position.
	ChoiceTTL time.Duration
	// LateStepReview also records non-blocking review tasks for drafts from
	// steps 6 and 7 that ask for approval. They are delivered either way.
	LateStepReview bool
	// Handlers replaces the reference step handlers when set.
	Handlers *router.Handlers
	Now      func() time.Time
}

// Service runs turns.
type Service struct {
	store          repository.Store
	locker         lock.Locker
	detector       Detector
	queue          *hil.Queue
	policy         *policy.Policy
	bus            events.Bus
	log            *logger.Logger
	pipeline       *pipeline.Pipeline
	router         *router.Router
	lateStepReview bool
	now            func() time.Time
}

// New builds the service and its engine.
func New(d Deps) (*Service, error) {
	if d.Store == nil || d.Locker == nil || d.Detector == nil || d.Queue == nil {
		return nil, errors.New("conversation service: store, locker, detector and queue are required")
	}
	if d.Policy == nil {
		d.Policy = policy.Default()
	}
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	rooms := steps.NewRoomEvaluator(d.Policy, d.Now)
	stepDeps := steps.Deps{
		Policy:  d.Policy,
		Planner: shortcut.NewPlanner(d.Policy, rooms, d.ChoiceTTL),
		Rooms:   rooms,
	}

	var handlers router.Handlers
	if d.Handlers != nil {
		handlers = *d.Handlers
	} else {
		h, err := steps.New(stepDeps)
		if err != nil {
			return nil, fmt.Errorf("conversation service: %w", err)
		}
		handlers = h
	}

	return &Service{
		store:          d.Store,
		locker:         d.Locker,
		detector:       d.Detector,
		queue:          d.Queue,
		policy:         d.Policy,
		bus:            d.Bus,
		log:            d.Log,
		pipeline:       pipeline.New(stepDeps, d.Log),
		router:         router.New(handlers, d.Log),
		lateStepReview: d.LateStepReview,
		now:            d.Now,
	}, nil
}

// TurnResult is what the transport tells the client side about a turn.
type TurnResult struct {
	BookingID uuid.UUID `json:"bookingId"`
	// Reply is the text sent to the client now. It is empty when the message
	// was ignored or every draft waits for review.
	Reply           string             `json:"reply,omitempty"`
	PendingApproval bool               `json:"pendingApproval"`
	Step            domain.Step        `json:"step"`
	ThreadState     domain.ThreadState `json:"threadState"`
	TaskID          *uuid.UUID         `json:"taskId,omitempty"`
	SafetyNet       bool               `json:"safetyNet"`
	// Stage names the pre-route stage that ended the turn, if any.
	Stage string `json:"stage,omitempty"`
}

// acquire locks the booking for one turn or decision.
func (s *Service) acquire(ctx context.Context, bookingID uuid.UUID) (lock.Release, error) {
	release, err := s.locker.Acquire(ctx, bookingID)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", bookingID, err)
	}
	return release, nil
}

// GetBooking returns the stored record including its audit log.
func (s *Service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Record, error) {
	return s.store.Get(ctx, bookingID)
}

// ListBookings returns bookings in the given thread state, most recently
// updated first.
func (s *Service) ListBookings(ctx context.Context, state domain.ThreadState, limit int) ([]repository.Summary, error) {
	switch state {
	case domain.ThreadAwaitingClient, domain.ThreadWaitingOnReview, domain.ThreadIdle:
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown thread state %q", state))
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByThreadState(ctx, state, limit)
}

// ListPendingTasks returns review tasks waiting for a decision.
func (s *Service) ListPendingTasks(ctx context.Context, bookingID *uuid.UUID) ([]hil.Task, error) {
	return s.queue.ListPending(ctx, bookingID)
}

func joinTexts(drafts []domain.Draft) string {
	parts := make([]string, 0, len(drafts))
	for _, d := range drafts {
		if t := strings.TrimSpace(d.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
