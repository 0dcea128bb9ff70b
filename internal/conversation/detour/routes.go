package detour

import "venue_booking_backend/internal/conversation/domain"

// Target returns the step that owns a change type. CLIENT_INFO has no owner:
// it is applied in place without moving the booking.
func Target(ct domain.ChangeType) (domain.Step, bool) {
	switch ct {
	case domain.ChangeDate:
		return domain.StepDate, true
	case domain.ChangeRoom, domain.ChangeRequirements:
		return domain.StepRoom, true
	case domain.ChangeProducts:
		return domain.StepOffer, true
	case domain.ChangeCommercial:
		return domain.StepNegotiation, true
	case domain.ChangeDeposit, domain.ChangeSiteVisit:
		return domain.StepConfirmation, true
	}
	return 0, false
}

func order(ct domain.ChangeType) int {
	if step, ok := Target(ct); ok {
		return int(step)
	}
	return int(domain.LastRoutable) + 1
}

// Plan is what applying a detected change does to the booking.
type Plan struct {
	Change *domain.Change
	// Detour is false when the change is handled in place: no owner step, or
	// the owner is the current step or one the booking has not reached.
	Detour bool
	Target domain.Step
	// ClearsBilling is set when the detour leaves the billing step behind, so
	// billing capture restarts after the flow returns.
	ClearsBilling bool
}

// PlanFor decides how change applies to rec without mutating it.
func PlanFor(change *domain.Change, rec *domain.Record) Plan {
	plan := Plan{Change: change}
	if change == nil || change.Target == nil {
		return plan
	}
	target := *change.Target
	if target >= rec.CurrentStep {
		return plan
	}
	plan.Detour = true
	plan.Target = target
	plan.ClearsBilling = rec.BillingCaptureActive() && target < domain.StepNegotiation
	return plan
}

// Apply carries out plan on rec and reports whether the booking moved.
func Apply(plan Plan, rec *domain.Record, turn *domain.TurnContext) bool {
	if !plan.Detour {
		return false
	}
	if plan.ClearsBilling {
		rec.ClearBillingCapture()
	}
	rec.BeginDetour(plan.Target, string(plan.Change.Type), turn.ReceivedAt)
	turn.Flags.DetourApplied = true
	if note := DisambiguationNote(plan.Change); note != "" {
		turn.AddNote(note)
	}
	return true
}
