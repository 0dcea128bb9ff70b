// Package router dispatches a turn to the step handler named by the booking's
// current step, re-dispatching while handlers advance the step, up to a fixed
// iteration budget.
package router

import (
	"context"
	"errors"
	"fmt"

	"venue_booking_backend/internal/conversation/domain"
)

// ErrNoHandler is returned when the current step has no handler.
var ErrNoHandler = errors.New("router: no handler for step")

// Outcome is what a handler decided for this iteration.
//
//   - Halt: the turn ends with Drafts.
//   - Next set to another step: the router moves the booking and loops.
//   - Neither: the handler keeps the step (typically waiting on review); the
//     loop ends without halting.
type Outcome struct {
	Drafts []domain.Draft
	Next   *domain.Step
	Halt   bool
	// Reason and Source are recorded in the audit log when Next moves the
	// booking. Source defaults to domain.SourceHandler.
	Reason string
	Source string
}

// Reply halts with one draft.
func Reply(draft domain.Draft) Outcome {
	return Outcome{Drafts: []domain.Draft{draft}, Halt: true}
}

// Advance continues at step.
func Advance(step domain.Step, reason string) Outcome {
	return Outcome{Next: domain.StepPtr(step), Reason: reason}
}

// Handler owns one booking step.
type Handler interface {
	Handle(ctx context.Context, rec *domain.Record, turn *domain.TurnContext) (Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rec *domain.Record, turn *domain.TurnContext) (Outcome, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rec *domain.Record, turn *domain.TurnContext) (Outcome, error) {
	return f(ctx, rec, turn)
}

// SiteVisitHandler runs the site-visit sub-flow. It is consulted before normal
// dispatch on every iteration.
type SiteVisitHandler interface {
	Handler
	Intercepts(rec *domain.Record, turn *domain.TurnContext) bool
}

// Handlers is the closed set of step handlers, one field per routable step.
// Build it with NewHandlers so every step is supplied.
type Handlers struct {
	date         Handler
	room         Handler
	offer        Handler
	negotiation  Handler
	transition   Handler
	confirmation Handler
	siteVisit    SiteVisitHandler
}

// NewHandlers assembles the handler set. Every argument is required.
func NewHandlers(date, room, offer, negotiation, transition, confirmation Handler, siteVisit SiteVisitHandler) (Handlers, error) {
	h := Handlers{
		date:         date,
		room:         room,
		offer:        offer,
		negotiation:  negotiation,
		transition:   transition,
		confirmation: confirmation,
		siteVisit:    siteVisit,
	}
	for step := domain.FirstRoutable; step <= domain.LastRoutable; step++ {
		if handler, _ := h.For(step); handler == nil {
			return Handlers{}, fmt.Errorf("router: missing handler for step %d", step)
		}
	}
	if siteVisit == nil {
		return Handlers{}, errors.New("router: missing site visit handler")
	}
	return h, nil
}

// For returns the handler that owns step.
func (h Handlers) For(step domain.Step) (Handler, error) {
	var handler Handler
	switch step {
	case domain.StepDate:
		handler = h.date
	case domain.StepRoom:
		handler = h.room
	case domain.StepOffer:
		handler = h.offer
	case domain.StepNegotiation:
		handler = h.negotiation
	case domain.StepTransition:
		handler = h.transition
	case domain.StepConfirmation:
		handler = h.confirmation
	}
	if handler == nil {
		return nil, fmt.Errorf("%w %d", ErrNoHandler, step)
	}
	return handler, nil
}
