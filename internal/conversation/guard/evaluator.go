// Package guard enforces step prerequisites among the date, room and offer
// steps. Evaluation is pure: callers receive a snapshot and decide whether to
// apply it.
package guard

import "venue_booking_backend/internal/conversation/domain"

// rule forces the booking back to target when violated holds for a record at
// or beyond minStep. Rules are ordered by target so the earliest missing
// prerequisite wins.
type rule struct {
	name     string
	minStep  domain.Step
	target   domain.Step
	violated func(rec *domain.Record) bool
}

var rules = []rule{
	{
		name:     "date_not_confirmed",
		minStep:  domain.StepRoom,
		target:   domain.StepDate,
		violated: func(rec *domain.Record) bool { return !rec.DateConfirmed() },
	},
	{
		name:     "room_not_locked",
		minStep:  domain.StepOffer,
		target:   domain.StepRoom,
		violated: func(rec *domain.Record) bool { return !rec.RoomLocked() },
	},
	{
		name:     "requirements_changed",
		minStep:  domain.StepOffer,
		target:   domain.StepRoom,
		violated: func(rec *domain.Record) bool { return rec.RoomEvaluationStale() },
	},
}

// Evaluate returns the guard snapshot for rec. It never forces a step beyond
// the room step and never mutates rec.
func Evaluate(rec *domain.Record) domain.GuardSnapshot {
	snap := domain.GuardSnapshot{
		RequirementsHashChanged: rec.RoomEvaluationStale(),
		DepositBypass:           depositBypass(rec),
	}

	for _, r := range rules {
		if rec.CurrentStep < r.minStep || !r.violated(rec) {
			continue
		}
		if r.target != rec.CurrentStep {
			snap.ForcedStep = domain.StepPtr(r.target)
			snap.Reason = r.name
		}
		break
	}

	return snap
}

// depositBypass is set once the deposit is settled so the confirmation step
// may proceed without requesting it again.
func depositBypass(rec *domain.Record) bool {
	if rec.Deposit.ContinuationDue {
		return true
	}
	return rec.Deposit.Required && rec.Deposit.Paid
}

// Violation is one failed prerequisite, reported by Violations.
type Violation struct {
	Rule   string      `json:"rule"`
	Target domain.Step `json:"target"`
}

// Violations lists every prerequisite rec currently violates, without the
// first-match short circuit of Evaluate. Used for diagnostics.
func Violations(rec *domain.Record) []Violation {
	var out []Violation
	for _, r := range rules {
		if rec.CurrentStep >= r.minStep && r.violated(rec) {
			out = append(out, Violation{Rule: r.name, Target: r.target})
		}
	}
	return out
}
