// Package shortcut collapses several booking steps into one turn when a
// message carries enough independent signals at once, and owns the short-lived
// choice list and deferred questions kept on the booking record.
package shortcut

import (
	"fmt"
	"slices"
	"time"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/policy"
)

// RoomChecker evaluates a room for the booking on a date. ok is false when the
// room is unknown.
type RoomChecker interface {
	Evaluate(rec *domain.Record, roomID string, date time.Time) (eval domain.RoomEvaluation, ok bool)
}

// Atomic intents the planner can combine.
const (
	IntentDate         = "date"
	IntentRoom         = "room"
	IntentParticipants = "participants"
	IntentBilling      = "billing"
	IntentProducts     = "products"
)

// Planner is stateless across bookings: everything it remembers lives on the
// record it is given.
type Planner struct {
	policy    *policy.Policy
	rooms     RoomChecker
	choiceTTL time.Duration
}

// NewPlanner returns a planner. choiceTTL bounds how long a presented list can
// be referenced; it defaults to 30 minutes.
func NewPlanner(pol *policy.Policy, rooms RoomChecker, choiceTTL time.Duration) *Planner {
	if choiceTTL <= 0 {
		choiceTTL = 30 * time.Minute
	}
	return &Planner{policy: pol, rooms: rooms, choiceTTL: choiceTTL}
}

// Result is the outcome of a plan.
type Result struct {
	// Applied lists the atomic intents written to the record.
	Applied []string
	// Deferred are intents queued as open questions this turn.
	Deferred []domain.DeferredIntent
	From     domain.Step
	Landing  domain.Step
	// Reply is set when the planner resolves the turn itself.
	Reply *domain.Draft
}

// Resolved reports whether the turn ends with the planner's reply.
func (r *Result) Resolved() bool {
	return r != nil && r.Reply != nil
}

// Eligible reports whether the planner may act on rec this turn. It runs at
// intake and from the room step on, never at the date step, never on a change
// request and never while a hard override is active.
func Eligible(rec *domain.Record, turn *domain.TurnContext) bool {
	if turn.IsChangeRequest() {
		return false
	}
	if override, _ := rec.HardOverride(); override {
		return false
	}
	return rec.CurrentStep == domain.StepIntake || rec.CurrentStep >= domain.StepRoom
}

type candidate struct {
	date         *time.Time
	roomID       string
	requirements *domain.Requirements
	billing      *domain.BillingDetails
	products     []domain.ProductLine
}

func (c candidate) intents() []string {
	var out []string
	if c.date != nil {
		out = append(out, IntentDate)
	}
	if c.roomID != "" {
		out = append(out, IntentRoom)
	}
	if c.requirements != nil {
		out = append(out, IntentParticipants)
	}
	if c.billing != nil {
		out = append(out, IntentBilling)
	}
	if len(c.products) > 0 {
		out = append(out, IntentProducts)
	}
	return out
}

// Plan inspects the turn and, when two or more atomic intents resolve
// together, applies them to rec as one transition. It returns nil when it did
// nothing. Numeric replies are normalised into the turn entities first so
// later handlers see the list selection as a plain value.
func (p *Planner) Plan(rec *domain.Record, turn *domain.TurnContext) *Result {
	if !Eligible(rec, turn) {
		return nil
	}
	now := turn.ReceivedAt
	ent := &turn.Signals.Entities

	reading := p.ReadNumeric(rec, *ent, now)
	if reading.Clarify != "" {
		return &Result{
			From:    rec.CurrentStep,
			Landing: rec.CurrentStep,
			Reply: &domain.Draft{
				Step: rec.CurrentStep,
				Kind: "numeric_clarification",
				Text: reading.Clarify,
			},
		}
	}
	applyReading(ent, reading)

	c := p.collect(rec, *ent, now)
	if len(c.intents()) < 2 {
		return nil
	}

	res := &Result{From: rec.CurrentStep}
	p.apply(rec, turn, c, res)
	if len(res.Applied) == 0 {
		return nil
	}

	res.Landing = landing(rec)
	rec.MoveTo(res.Landing, domain.SourceShortcut, fmt.Sprintf("shortcut:%v", res.Applied), now)
	p.recordTelemetry(rec, res.Applied, now)
	turn.Flags.ShortcutApplied = true

	if q := p.NextQuestion(rec); q != "" {
		turn.AddNote(q)
	}
	return res
}

func applyReading(ent *domain.Entities, reading NumericReading) {
	if reading.Date != nil && ent.Date == nil {
		ent.Date = reading.Date
	}
	if reading.Option == nil {
		return
	}
	switch reading.Option.Kind {
	case ChoiceRoom:
		if ent.RoomID == "" {
			ent.RoomID = reading.Option.Value
		}
	case ChoiceDate:
		if ent.Date == nil {
			if t, err := time.Parse("2006-01-02", reading.Option.Value); err == nil {
				ent.Date = &t
			}
		}
	}
}

func (p *Planner) collect(rec *domain.Record, ent domain.Entities, now time.Time) candidate {
	var c candidate
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if ent.Date != nil && !ent.Date.Before(today) {
		if rec.Event.ChosenDate == nil || !rec.Event.ChosenDate.Equal(*ent.Date) || !rec.DateConfirmed() {
			c.date = ent.Date
		}
	}
	if ent.RoomID != "" && ent.RoomID != rec.LockedRoomID {
		c.roomID = ent.RoomID
	}
	if ent.Participants > 0 || ent.Layout != "" || len(ent.Features) > 0 {
		req := rec.Requirements
		if ent.Participants > 0 {
			req.Participants = ent.Participants
		}
		if ent.Layout != "" {
			req.Layout = ent.Layout
		}
		if len(ent.Features) > 0 {
			req.Features = slices.Clone(ent.Features)
		}
		if domain.RequirementsHash(req) != rec.RequirementsHash {
			c.requirements = &req
		}
	}
	if ent.Billing != nil && rec.CurrentStep >= domain.StepOffer {
		c.billing = ent.Billing
	}
	for _, line := range ent.Products {
		if _, ok := p.policy.Product(line.Code); ok {
			c.products = append(c.products, line)
		}
	}
	return c
}

func (p *Planner) apply(rec *domain.Record, turn *domain.TurnContext, c candidate, res *Result) {
	now := turn.ReceivedAt

	if c.date != nil {
		d := *c.date
		rec.Event.RequestedDate = &d
		rec.Event.ChosenDate = &d
		rec.Event.DateConfirmed = true
		rec.Event.DateConfirmedAt = &now
		res.Applied = append(res.Applied, IntentDate)
	}
	if c.requirements != nil {
		rec.SetRequirements(*c.requirements)
		res.Applied = append(res.Applied, IntentParticipants)
	}
	if len(c.products) > 0 {
		rec.Products = MergeProducts(rec.Products, c.products)
		res.Applied = append(res.Applied, IntentProducts)
	}
	if c.billing != nil {
		rec.Billing.Details.Merge(*c.billing)
		res.Applied = append(res.Applied, IntentBilling)
	}

	if c.roomID != "" {
		rec.RoomPreference = c.roomID
		p.applyRoom(rec, c.roomID, now, res)
	} else if rec.RoomLocked() && (c.date != nil || c.requirements != nil) {
		// The committed room must still hold for the new date or requirements.
		p.applyRoom(rec, rec.LockedRoomID, now, res)
	}
}

func (p *Planner) applyRoom(rec *domain.Record, roomID string, now time.Time, res *Result) {
	if !rec.DateConfirmed() {
		p.queue(rec, res, domain.DeferredIntent{
			Kind:     IntentRoom,
			Value:    roomID,
			Question: "Which date should we check the room for?",
			QueuedAt: now,
		})
		return
	}
	eval, ok := p.rooms.Evaluate(rec, roomID, *rec.Event.ChosenDate)
	if !ok || !eval.Available {
		if rec.LockedRoomID == roomID {
			rec.ReleaseRoom()
		}
		p.queue(rec, res, domain.DeferredIntent{
			Kind:     IntentRoom,
			Value:    roomID,
			Question: fmt.Sprintf("%s is not available for your event on %s. Shall I suggest alternatives?", roomLabel(p.policy, roomID), domain.FormatDate(*rec.Event.ChosenDate)),
			QueuedAt: now,
		})
		return
	}
	rec.LockedRoomID = eval.RoomID
	rec.RoomEval = &eval
	p.ClearDeferred(rec, IntentRoom)
	p.ClearChoice(rec)
	if !slices.Contains(res.Applied, IntentRoom) {
		res.Applied = append(res.Applied, IntentRoom)
	}
}

// landing is the first step whose prerequisite is still open once the
// shortcut has been applied.
func landing(rec *domain.Record) domain.Step {
	switch {
	case !rec.DateConfirmed():
		return domain.StepDate
	case !rec.RoomLocked():
		return domain.StepRoom
	case rec.Offer == nil || rec.OfferStale():
		return domain.StepOffer
	}
	return max(rec.CurrentStep, domain.StepOffer)
}

func (p *Planner) recordTelemetry(rec *domain.Record, applied []string, now time.Time) {
	rec.Shortcuts.Applied++
	rec.Shortcuts.LastIntents = slices.Clone(applied)
	rec.Shortcuts.LastAppliedAt = &now
}

// MergeProducts adds product lines, keeping one line per code.
func MergeProducts(existing, added []domain.ProductLine) []domain.ProductLine {
	out := slices.Clone(existing)
	for _, line := range added {
		idx := slices.IndexFunc(out, func(l domain.ProductLine) bool { return l.Code == line.Code })
		if idx >= 0 {
			out[idx].Quantity = max(out[idx].Quantity, line.Quantity)
			continue
		}
		out = append(out, line)
	}
	return out
}

func roomLabel(pol *policy.Policy, roomID string) string {
	if room, ok := pol.Room(roomID); ok && room.Name != "" {
		return room.Name
	}
	return roomID
}
