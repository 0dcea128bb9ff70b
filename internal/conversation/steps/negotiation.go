package steps

import (
	"context"
	"fmt"
	"strings"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/router"
)

// NegotiationHandler owns step 5: the client's answer to the offer and the
// billing capture that follows an acceptance.
type NegotiationHandler struct {
	deps Deps
}

func (h *NegotiationHandler) Handle(_ context.Context, rec *domain.Record, turn *domain.TurnContext) (router.Outcome, error) {
	if rec.Offer == nil || rec.OfferStale() {
		return router.Advance(domain.StepOffer, "offer missing or out of date"), nil
	}
	offer := rec.Offer
	ent := turn.Signals.Entities
	if ent.Billing != nil {
		rec.Billing.Details.Merge(*ent.Billing)
	}

	intent := turn.Signals.Intent
	if turn.Change != nil && turn.Change.Type == domain.ChangeCommercial {
		intent = domain.IntentCounterOffer
	}

	switch intent {
	case domain.IntentAcceptOffer:
		if offer.Status == domain.OfferSent {
			offer.Status = domain.OfferAccepted
			rec.Billing.AwaitingBillingForAccept = true
		}
	case domain.IntentCounterOffer:
		d := draft(domain.StepNegotiation, KindCounterOffer, fmt.Sprintf(
			"Thank you for your feedback on the offer. We are reviewing your request and will come back to you shortly.\n\nClient message: %s",
			strings.TrimSpace(turn.Message)))
		d.RequiresApproval = true
		d.Summary = map[string]any{"offerId": offer.ID.String(), "totalCents": offer.TotalCents}
		return router.Reply(d), nil
	case domain.IntentDeclineOffer:
		offer.Status = domain.OfferDeclined
		rec.Billing.AwaitingBillingForAccept = false
		d := draft(domain.StepNegotiation, KindDecline,
			"We are sorry the offer does not suit you. Thank you for considering us, and do get in touch if your plans change.")
		d.RequiresApproval = true
		return router.Reply(d), nil
	}

	switch offer.Status {
	case domain.OfferAccepted:
		if rec.Billing.Details.Complete() {
			rec.Billing.AwaitingBillingForAccept = false
			return router.Advance(domain.StepTransition, "billing complete"), nil
		}
		rec.Billing.AwaitingBillingForAccept = true
		return router.Reply(draft(domain.StepNegotiation, KindBillingRequest, fmt.Sprintf(
			"Thank you for accepting the offer! To prepare the booking we still need your billing details: %s.",
			strings.Join(rec.Billing.Details.Missing(), ", ")))), nil
	case domain.OfferPendingReview:
		return router.Reply(draft(domain.StepNegotiation, KindOfferStatus,
			"Your offer is being finalised by our team and will reach you shortly.")), nil
	case domain.OfferDeclined:
		return router.Reply(draft(domain.StepNegotiation, KindOfferStatus,
			"The offer was declined. If you would like a new proposal, just tell us what should change.")), nil
	}
	return router.Reply(draft(domain.StepNegotiation, KindOfferStatus,
		"Would you like to accept the offer, or should we adjust something?")), nil
}
