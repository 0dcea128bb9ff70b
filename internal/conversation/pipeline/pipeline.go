// Package pipeline runs the pre-route stages of a turn in fixed order:
// escalation, out-of-context filtering, duplicate suppression, guard forcing,
// the shortcut planner and flow-state correction. The first stage that halts
// ends the turn; otherwise a detected change is applied and the booking is
// handed to the router.
package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"venue_booking_backend/internal/conversation/detour"
	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/guard"
	"venue_booking_backend/internal/conversation/policy"
	"venue_booking_backend/internal/conversation/shortcut"
	"venue_booking_backend/internal/conversation/steps"
	"venue_booking_backend/platform/logger"
)

var tracer = otel.Tracer("venue_booking_backend/internal/conversation/pipeline")

// Stage names, reported in Outcome.Stage.
const (
	StageEscalation   = "escalation"
	StageOutOfContext = "out_of_context"
	StageDuplicate    = "duplicate"
	StageGuard        = "guard"
	StageShortcut     = "shortcut"
	StageCorrection   = "flow_correction"
)

// KindEscalation is the draft kind of the reply sent when a client asks for a
// person.
const KindEscalation = "escalation"

// Outcome is what the pipeline decided.
type Outcome struct {
	// Halt ends the turn before routing. Reply may be nil: an out-of-context
	// message is dropped without an answer.
	Halt  bool
	Reply *domain.Draft
	Stage string
	// Shortcut is set when the planner applied a combined transition.
	Shortcut *shortcut.Result
	// Detour is set when a change moved the booking back to its owner step.
	Detour *detour.Plan
}

// Pipeline holds the stage dependencies. It keeps no per-booking state.
type Pipeline struct {
	policy  *policy.Policy
	planner *shortcut.Planner
	deps    steps.Deps
	log     *logger.Logger
	stages  []stage
}

type stage struct {
	name string
	run  func(rec *domain.Record, turn *domain.TurnContext) (Outcome, bool)
}

// New builds the pipeline.
func New(deps steps.Deps, log *logger.Logger) *Pipeline {
	p := &Pipeline{
		policy:  deps.Policy,
		planner: deps.Planner,
		deps:    deps,
		log:     log,
	}
	p.stages = []stage{
		{StageEscalation, p.escalation},
		{StageOutOfContext, p.outOfContext},
		{StageDuplicate, p.duplicate},
		{StageGuard, p.guard},
		{StageShortcut, p.shortcut},
		{StageCorrection, p.correction},
	}
	return p
}

// Run executes the stages against rec. The change detector runs once, before
// the stages, so the validity filter and the flow correction see it; the
// detour itself is applied after the last stage.
func (p *Pipeline) Run(ctx context.Context, rec *domain.Record, turn *domain.TurnContext) Outcome {
	_, span := tracer.Start(ctx, "pre-route")
	defer span.End()

	turn.Change = detour.Detect(turn.Message, turn.Signals, rec)

	var out Outcome
	for _, s := range p.stages {
		res, halt := s.run(rec, turn)
		if res.Shortcut != nil {
			out.Shortcut = res.Shortcut
		}
		if halt {
			res.Halt = true
			res.Stage = s.name
			res.Shortcut = out.Shortcut
			span.SetAttributes(attribute.String("pipeline.halted_at", s.name))
			p.log.Info("pre-route halted", "bookingId", rec.ID.String(), "stage", s.name, "step", int(rec.CurrentStep))
			return res
		}
	}

	if turn.Change != nil {
		plan := detour.PlanFor(turn.Change, rec)
		from := rec.CurrentStep
		if detour.Apply(plan, rec, turn) {
			out.Detour = &plan
			p.log.RoutingDecision(rec.ID.String(), int(from), int(plan.Target), domain.SourceDetour, string(plan.Change.Type))
		}
		if turn.Change.Type == domain.ChangeClientInfo && steps.ApplyContact(rec, turn.Signals.Entities) {
			turn.AddNote("I have updated your contact details.")
		}
	} else if turn.Signals.Intent == domain.IntentUpdateContact {
		steps.ApplyContact(rec, turn.Signals.Entities)
	}

	if rec.CurrentStep == domain.StepIntake {
		steps.Intake(p.deps, rec, turn)
		p.log.RoutingDecision(rec.ID.String(), int(domain.StepIntake), int(rec.CurrentStep), domain.SourceIntake, "enquiry captured")
	} else if out.Shortcut != nil {
		steps.ApplyContact(rec, turn.Signals.Entities)
	}

	span.SetAttributes(attribute.Int("booking.step", int(rec.CurrentStep)))
	return out
}

// escalation hands the conversation to a person on request.
func (p *Pipeline) escalation(rec *domain.Record, turn *domain.TurnContext) (Outcome, bool) {
	if !turn.Signals.IsManagerRequest {
		return Outcome{}, false
	}
	turn.Flags.Escalated = true
	return Outcome{Reply: &domain.Draft{Step: rec.CurrentStep, Kind: KindEscalation, Text: p.policy.EscalationReply}}, true
}

// outOfContext drops a message whose intent no step at this point could act
// on. Change requests are always valid, and so is an answer to an open visit
// negotiation: the visit flow answers at any step.
func (p *Pipeline) outOfContext(rec *domain.Record, turn *domain.TurnContext) (Outcome, bool) {
	if turn.Change != nil || (rec.SiteVisit.Active() && steps.VisitSignal(rec, turn)) {
		return Outcome{}, false
	}
	if p.policy.IntentValidAt(turn.Signals.Intent, rec.CurrentStep) {
		return Outcome{}, false
	}
	turn.Flags.OutOfContext = true
	p.log.Info("message dropped as out of context",
		"bookingId", rec.ID.String(), "intent", string(turn.Signals.Intent), "step", int(rec.CurrentStep))
	return Outcome{}, true
}

// duplicate answers a repeated message with a clarification instead of
// processing it twice. The first turn and detours are exempt.
func (p *Pipeline) duplicate(rec *domain.Record, turn *domain.TurnContext) (Outcome, bool) {
	if rec.TurnCount == 0 || rec.DetourActive() || rec.LastClientMessage == "" {
		return Outcome{}, false
	}
	if turn.Message != rec.LastClientMessage {
		return Outcome{}, false
	}
	turn.Flags.Duplicate = true
	return Outcome{Reply: &domain.Draft{Step: rec.CurrentStep, Kind: "duplicate", Text: p.policy.DuplicateReply}}, true
}

// guard applies the guard snapshot unless a hard override owns the flow.
func (p *Pipeline) guard(rec *domain.Record, turn *domain.TurnContext) (Outcome, bool) {
	if override, name := rec.HardOverride(); override {
		turn.Flags.GuardSkipped = name
		return Outcome{}, false
	}
	snap := guard.Evaluate(rec)
	if snap.ForcedStep == nil || *snap.ForcedStep == rec.CurrentStep {
		return Outcome{}, false
	}
	from := rec.CurrentStep
	rec.MoveTo(*snap.ForcedStep, domain.SourceGuard, snap.Reason, turn.ReceivedAt)
	turn.Flags.GuardForced = domain.StepPtr(*snap.ForcedStep)
	p.log.RoutingDecision(rec.ID.String(), int(from), int(*snap.ForcedStep), domain.SourceGuard, snap.Reason)
	return Outcome{}, false
}

func (p *Pipeline) shortcut(rec *domain.Record, turn *domain.TurnContext) (Outcome, bool) {
	res := p.planner.Plan(rec, turn)
	if res == nil {
		return Outcome{}, false
	}
	if res.Resolved() {
		return Outcome{Reply: res.Reply, Shortcut: res}, true
	}
	p.log.RoutingDecision(rec.ID.String(), int(res.From), int(res.Landing), domain.SourceShortcut, "applied")
	return Outcome{Shortcut: res}, false
}

// correction keeps an accepted offer in billing capture at the step that owns
// billing. A change request is left to detour instead.
func (p *Pipeline) correction(rec *domain.Record, turn *domain.TurnContext) (Outcome, bool) {
	if !rec.BillingCaptureActive() || turn.Change != nil || rec.CurrentStep == domain.StepNegotiation {
		return Outcome{}, false
	}
	from := rec.CurrentStep
	rec.MoveTo(domain.StepNegotiation, domain.SourceCorrection, "billing capture in progress", turn.ReceivedAt)
	turn.Flags.CorrectionApplied = true
	p.log.RoutingDecision(rec.ID.String(), int(from), int(domain.StepNegotiation), domain.SourceCorrection, "billing capture in progress")
	return Outcome{}, false
}
