package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/platform/logger"
)

var now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type stubSiteVisit struct {
	HandlerFunc
	intercept bool
}

func (s stubSiteVisit) Intercepts(*domain.Record, *domain.TurnContext) bool { return s.intercept }

func uniform(h Handler, visit SiteVisitHandler) Handlers {
	handlers, err := NewHandlers(h, h, h, h, h, h, visit)
	if err != nil {
		panic(err)
	}
	return handlers
}

func noVisit() SiteVisitHandler {
	return stubSiteVisit{HandlerFunc: func(context.Context, *domain.Record, *domain.TurnContext) (Outcome, error) {
		return Outcome{}, errors.New("unexpected site visit dispatch")
	}}
}

func newRecord(step domain.Step) *domain.Record {
	rec := domain.NewRecord(uuid.New(), now)
	rec.CurrentStep = step
	return rec
}

func TestRun_CyclingHandlerIsBounded(t *testing.T) {
	calls := 0
	cycle := HandlerFunc(func(_ context.Context, rec *domain.Record, _ *domain.TurnContext) (Outcome, error) {
		calls++
		next := domain.FirstRoutable + (rec.CurrentStep-domain.FirstRoutable+1)%6
		return Outcome{
			Drafts: []domain.Draft{{Step: rec.CurrentStep, Text: "partial"}},
			Next:   domain.StepPtr(next),
		}, nil
	})
	r := New(uniform(cycle, noVisit()), logger.Discard())

	res, err := r.Run(context.Background(), newRecord(domain.StepDate), domain.NewTurn(uuid.New(), "hi", now))
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected budget exhaustion, got %v", err)
	}
	if calls != MaxIterations {
		t.Fatalf("expected %d handler calls, got %d", MaxIterations, calls)
	}
	if len(res.Drafts) != 0 {
		t.Fatalf("exhausted turn must carry no drafts, got %d", len(res.Drafts))
	}
}

func TestRun_ModuloSevenWalksOffTheRoutableSteps(t *testing.T) {
	mod7 := HandlerFunc(func(_ context.Context, rec *domain.Record, _ *domain.TurnContext) (Outcome, error) {
		return Advance((rec.CurrentStep+1)%7, "next"), nil
	})
	r := New(uniform(mod7, noVisit()), logger.Discard())

	rec := newRecord(domain.StepNegotiation)
	_, err := r.Run(context.Background(), rec, domain.NewTurn(rec.ID, "hi", now))
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected no-handler error, got %v", err)
	}
}

func TestRun_CascadeThenHalt(t *testing.T) {
	var visited []domain.Step
	h := HandlerFunc(func(_ context.Context, rec *domain.Record, _ *domain.TurnContext) (Outcome, error) {
		visited = append(visited, rec.CurrentStep)
		if rec.CurrentStep == domain.StepOffer {
			return Reply(domain.Draft{Step: domain.StepOffer, Text: "offer"}), nil
		}
		return Advance(rec.CurrentStep+1, "done"), nil
	})
	r := New(uniform(h, noVisit()), logger.Discard())

	rec := newRecord(domain.StepDate)
	res, err := r.Run(context.Background(), rec, domain.NewTurn(rec.ID, "hi", now))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Halted || res.Iterations != 3 || len(res.Drafts) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(visited) != 3 || visited[2] != domain.StepOffer {
		t.Fatalf("unexpected dispatch order %v", visited)
	}
	if len(rec.Audit) != 2 {
		t.Fatalf("expected two audited transitions, got %d", len(rec.Audit))
	}
}

func TestRun_SameStepEndsLoopWithoutHalt(t *testing.T) {
	calls := 0
	h := HandlerFunc(func(_ context.Context, rec *domain.Record, _ *domain.TurnContext) (Outcome, error) {
		calls++
		return Outcome{Drafts: []domain.Draft{{Step: rec.CurrentStep, Text: "queued", RequiresApproval: true}}}, nil
	})
	r := New(uniform(h, noVisit()), logger.Discard())

	rec := newRecord(domain.StepOffer)
	res, err := r.Run(context.Background(), rec, domain.NewTurn(rec.ID, "hi", now))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 1 || res.Halted || len(res.Drafts) != 1 {
		t.Fatalf("unexpected result %+v after %d calls", res, calls)
	}
}

func TestRun_SiteVisitInterceptsBeforeDispatch(t *testing.T) {
	stepCalls := 0
	step := HandlerFunc(func(context.Context, *domain.Record, *domain.TurnContext) (Outcome, error) {
		stepCalls++
		return Outcome{Halt: true}, nil
	})
	visit := stubSiteVisit{
		intercept: true,
		HandlerFunc: func(_ context.Context, rec *domain.Record, _ *domain.TurnContext) (Outcome, error) {
			return Reply(domain.Draft{Step: rec.CurrentStep, Kind: "site_visit", Text: "visit"}), nil
		},
	}
	r := New(uniform(step, visit), logger.Discard())

	rec := newRecord(domain.StepConfirmation)
	res, err := r.Run(context.Background(), rec, domain.NewTurn(rec.ID, "visit", now))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stepCalls != 0 || res.Drafts[0].Kind != "site_visit" {
		t.Fatalf("expected the site visit handler only, got %d step calls and %+v", stepCalls, res.Drafts)
	}
}

func TestRun_ReachingCallerEndsDetour(t *testing.T) {
	h := HandlerFunc(func(_ context.Context, rec *domain.Record, _ *domain.TurnContext) (Outcome, error) {
		if rec.CurrentStep == domain.StepDate {
			return Advance(domain.StepRoom, "date confirmed"), nil
		}
		return Reply(domain.Draft{Step: rec.CurrentStep, Text: "room"}), nil
	})
	r := New(uniform(h, noVisit()), logger.Discard())

	rec := newRecord(domain.StepRoom)
	rec.BeginDetour(domain.StepDate, "DATE", now)
	if !rec.DetourActive() {
		t.Fatal("expected detour to be active")
	}
	if _, err := r.Run(context.Background(), rec, domain.NewTurn(rec.ID, "x", now)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.DetourActive() {
		t.Fatal("expected detour to end once the caller step is reached")
	}
}

func TestNewHandlers_RejectsMissingStep(t *testing.T) {
	h := HandlerFunc(func(context.Context, *domain.Record, *domain.TurnContext) (Outcome, error) { return Outcome{}, nil })
	if _, err := NewHandlers(h, h, nil, h, h, h, noVisit()); err == nil {
		t.Fatal("expected an error for a missing offer handler")
	}
	handlers := uniform(h, noVisit())
	for step := domain.FirstRoutable; step <= domain.LastRoutable; step++ {
		if _, err := handlers.For(step); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
	}
	if _, err := handlers.For(domain.StepIntake); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("intake must have no handler, got %v", err)
	}
}
