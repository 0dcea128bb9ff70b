package steps

import (
	"context"
	"fmt"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/router"
)

// DateHandler owns step 2: committing the event date.
type DateHandler struct {
	deps Deps
}

func (h *DateHandler) Handle(_ context.Context, rec *domain.Record, turn *domain.TurnContext) (router.Outcome, error) {
	ent := turn.Signals.Entities
	now := turn.ReceivedAt

	if ent.Date != nil {
		if ent.Date.Before(today(now)) {
			return router.Reply(draft(domain.StepDate, KindDatePrompt, fmt.Sprintf(
				"%s is already in the past. Which date would you like to book instead?", domain.FormatDate(*ent.Date)))), nil
		}
		confirmDate(rec, *ent.Date, now)
		return router.Advance(domain.StepRoom, "date confirmed"), nil
	}

	requested := rec.Event.RequestedDate
	if requested != nil && turn.Signals.Intent == domain.IntentConfirmDate {
		confirmDate(rec, *requested, now)
		return router.Advance(domain.StepRoom, "requested date confirmed"), nil
	}

	if requested != nil {
		return router.Reply(draft(domain.StepDate, KindDatePrompt, fmt.Sprintf(
			"Shall we go ahead with %s for your event?", domain.FormatDate(*requested)))), nil
	}

	return router.Reply(draft(domain.StepDate, KindDatePrompt,
		"Thank you for your enquiry! Which date would you like to hold your event on?")), nil
}
