package router

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/platform/logger"
)

// MaxIterations bounds the dispatch loop of one turn.
const MaxIterations = 6

// ErrBudgetExhausted is returned when handlers keep moving the booking without
// halting for MaxIterations iterations.
var ErrBudgetExhausted = errors.New("router: iteration budget exhausted")

var tracer = otel.Tracer("venue_booking_backend/internal/conversation/router")

// Result is the outcome of one routed turn.
type Result struct {
	Drafts     []domain.Draft
	Halted     bool
	Iterations int
}

// Router runs the bounded dispatch loop.
type Router struct {
	handlers Handlers
	log      *logger.Logger
}

// New returns a router over handlers.
func New(handlers Handlers, log *logger.Logger) *Router {
	return &Router{handlers: handlers, log: log}
}

// Run dispatches until a handler halts, keeps its step, or the budget runs
// out. On ErrNoHandler and ErrBudgetExhausted the result carries no drafts;
// the caller substitutes a placeholder reply.
func (r *Router) Run(ctx context.Context, rec *domain.Record, turn *domain.TurnContext) (Result, error) {
	ctx, span := tracer.Start(ctx, "route")
	defer span.End()

	var res Result
	for {
		if res.Iterations == MaxIterations {
			return r.fail(span, res, ErrBudgetExhausted)
		}
		res.Iterations++
		step := rec.CurrentStep

		handler, name, err := r.dispatch(rec, turn)
		if err != nil {
			return r.fail(span, res, err)
		}

		out, err := handler.Handle(ctx, rec, turn)
		if err != nil {
			return r.fail(span, res, fmt.Errorf("router: %s handler at step %d: %w", name, step, err))
		}
		res.Drafts = append(res.Drafts, out.Drafts...)

		moved := false
		if out.Next != nil && *out.Next != rec.CurrentStep {
			source := out.Source
			if source == "" {
				source = domain.SourceHandler
			}
			rec.MoveTo(*out.Next, source, out.Reason, turn.ReceivedAt)
			r.log.RoutingDecision(rec.ID.String(), int(step), int(*out.Next), source, out.Reason)
			moved = true
		}
		if rec.CallerStep != nil && rec.CurrentStep >= *rec.CallerStep {
			rec.EndDetour()
		}

		if out.Halt {
			res.Halted = true
			break
		}
		if !moved {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("router.iterations", res.Iterations),
		attribute.Bool("router.halted", res.Halted),
		attribute.Int("booking.step", int(rec.CurrentStep)),
	)
	return res, nil
}

// dispatch picks the site-visit sub-flow when it intercepts, else the owner of
// the current step.
func (r *Router) dispatch(rec *domain.Record, turn *domain.TurnContext) (Handler, string, error) {
	if r.handlers.siteVisit != nil && r.handlers.siteVisit.Intercepts(rec, turn) {
		return r.handlers.siteVisit, "site_visit", nil
	}
	handler, err := r.handlers.For(rec.CurrentStep)
	if err != nil {
		return nil, "", err
	}
	return handler, rec.CurrentStep.String(), nil
}

func (r *Router) fail(span trace.Span, res Result, err error) (Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	res.Drafts = nil
	res.Halted = false
	return res, err
}
