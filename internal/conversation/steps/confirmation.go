package steps

import (
	"context"
	"fmt"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/router"
)

// ConfirmationHandler owns step 7: the deposit and the final confirmation.
type ConfirmationHandler struct {
	deps Deps
}

func (h *ConfirmationHandler) Handle(_ context.Context, rec *domain.Record, turn *domain.TurnContext) (router.Outcome, error) {
	switch {
	case rec.Offer == nil || rec.OfferStale():
		return router.Advance(domain.StepOffer, "offer missing or out of date"), nil
	case rec.Offer.Status != domain.OfferAccepted:
		return router.Advance(domain.StepNegotiation, "offer not accepted"), nil
	}
	now := turn.ReceivedAt
	ent := turn.Signals.Entities

	if turn.Change != nil && turn.Change.Type == domain.ChangeDeposit {
		d := draft(domain.StepConfirmation, KindDepositRequest, fmt.Sprintf(
			"We have noted your question about the deposit of %s. Our team will get back to you shortly.",
			money(rec.Deposit.AmountCents)))
		d.RequiresApproval = true
		return router.Reply(d), nil
	}

	if turn.Signals.Intent == domain.IntentSiteVisit && rec.SiteVisit.Status == domain.SiteVisitNone {
		rec.SiteVisit.Status = domain.SiteVisitProposed
		if ent.Date != nil && !ent.Date.Before(today(now)) {
			d := *ent.Date
			rec.SiteVisit.ProposedDate = &d
			return router.Reply(draft(domain.StepConfirmation, KindSiteVisit, fmt.Sprintf(
				"We would be glad to show you the venue. Shall we schedule your visit for %s?", domain.FormatDate(d)))), nil
		}
		return router.Reply(draft(domain.StepConfirmation, KindSiteVisit,
			"We would be glad to show you the venue. Which day would suit you for a visit?")), nil
	}

	if rec.Confirmed {
		return router.Reply(draft(domain.StepConfirmation, KindInfo, fmt.Sprintf(
			"Your booking for %s is confirmed. Let us know if there is anything else we can do for you.",
			domain.FormatDate(*rec.Event.ChosenDate)))), nil
	}

	dep := &rec.Deposit
	if !dep.Required || dep.Paid || dep.ContinuationDue {
		rec.Confirmed = true
		rec.ConfirmedAt = &now
		dep.ContinuationDue = false
		d := draft(domain.StepConfirmation, KindConfirmation, fmt.Sprintf(
			"We are delighted to confirm your booking for %s in %s. We look forward to welcoming you!",
			domain.FormatDate(*rec.Event.ChosenDate), roomName(h.deps.Policy, rec.LockedRoomID)))
		d.RequiresApproval = true
		d.Summary = map[string]any{"offerId": rec.Offer.ID.String(), "totalCents": rec.Offer.TotalCents}
		return router.Reply(d), nil
	}

	if turn.Signals.Intent == domain.IntentConfirmDeposit {
		return router.Reply(draft(domain.StepConfirmation, KindInfo,
			"Thank you! We will confirm your booking as soon as the payment has reached us.")), nil
	}

	if !dep.Requested {
		dep.Requested = true
		d := draft(domain.StepConfirmation, KindDepositRequest, fmt.Sprintf(
			"To secure your booking we kindly ask for a deposit of %s. We will confirm the booking once it has been received.",
			money(dep.AmountCents)))
		d.RequiresApproval = true
		d.Summary = map[string]any{"depositCents": dep.AmountCents}
		return router.Reply(d), nil
	}
	return router.Reply(draft(domain.StepConfirmation, KindDepositReminder, fmt.Sprintf(
		"A gentle reminder: your booking is confirmed once the deposit of %s has been received.", money(dep.AmountCents)))), nil
}
