package steps

import (
	"context"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/router"
)

// TransitionHandler owns step 6: checking the accepted offer is complete and
// deciding whether a deposit is due.
type TransitionHandler struct {
	deps Deps
}

func (h *TransitionHandler) Handle(_ context.Context, rec *domain.Record, turn *domain.TurnContext) (router.Outcome, error) {
	if ent := turn.Signals.Entities; ent.Billing != nil {
		rec.Billing.Details.Merge(*ent.Billing)
	}
	if rec.Offer == nil || rec.Offer.Status != domain.OfferAccepted || rec.OfferStale() {
		return router.Advance(domain.StepNegotiation, "offer not accepted"), nil
	}
	if !rec.Billing.Details.Complete() {
		rec.Billing.AwaitingBillingForAccept = true
		return router.Advance(domain.StepNegotiation, "billing incomplete"), nil
	}

	dep := h.deps.Policy.Deposit
	if !rec.Deposit.Paid {
		rec.Deposit.Required = dep.ThresholdCents > 0 && rec.Offer.TotalCents >= dep.ThresholdCents
		rec.Deposit.AmountCents = 0
		if rec.Deposit.Required {
			rec.Deposit.AmountCents = rec.Offer.TotalCents * int64(dep.Percent) / 100
		}
	}
	return router.Advance(domain.StepConfirmation, "ready for confirmation"), nil
}
