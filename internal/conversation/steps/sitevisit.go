package steps

import (
	"context"
	"fmt"
	"regexp"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/router"
)

var affirmativeRe = regexp.MustCompile(`(?i)^\s*(yes|yep|sure|ok(ay)?|perfect|great|fine|that works|works for (me|us))\b`)

// SiteVisitHandler runs the venue visit sub-flow. While a visit is being
// negotiated it answers the client at whatever step the booking is on and
// never moves the booking.
type SiteVisitHandler struct {
	deps Deps
}

// Intercepts reports whether the visit flow owns this turn: a visit is being
// negotiated and the message is about it, or a scheduled visit is being moved.
func (h *SiteVisitHandler) Intercepts(rec *domain.Record, turn *domain.TurnContext) bool {
	visitChange := turn.Change != nil && turn.Change.Type == domain.ChangeSiteVisit
	if rec.SiteVisit.Active() {
		if turn.Change != nil {
			return visitChange
		}
		return VisitSignal(rec, turn)
	}
	return rec.SiteVisit.Status == domain.SiteVisitScheduled && visitChange
}

// VisitSignal reports whether a message answers an open visit negotiation: it
// asks about the visit, names a day, or agrees to the proposed day.
func VisitSignal(rec *domain.Record, turn *domain.TurnContext) bool {
	switch {
	case turn.Signals.Intent == domain.IntentSiteVisit:
		return true
	case turn.Signals.Entities.Date != nil:
		return true
	case rec.SiteVisit.ProposedDate != nil && rec.SiteVisit.Status != domain.SiteVisitScheduled:
		return agrees(turn)
	}
	return false
}

func (h *SiteVisitHandler) Handle(_ context.Context, rec *domain.Record, turn *domain.TurnContext) (router.Outcome, error) {
	now := turn.ReceivedAt
	visit := &rec.SiteVisit
	step := rec.CurrentStep

	if date := turn.Signals.Entities.Date; date != nil {
		if date.Before(today(now)) {
			return router.Reply(draft(step, KindSiteVisit, fmt.Sprintf(
				"%s is already in the past. Which other day would suit you for the visit?", domain.FormatDate(*date)))), nil
		}
		d := *date
		visit.Status = domain.SiteVisitNegotiating
		visit.ProposedDate = &d
		visit.ConfirmedDate = nil
		return router.Reply(draft(step, KindSiteVisit, fmt.Sprintf(
			"Shall we schedule your visit for %s?", domain.FormatDate(d)))), nil
	}

	if visit.ProposedDate != nil && visit.Status != domain.SiteVisitScheduled && agrees(turn) {
		d := *visit.ProposedDate
		visit.Status = domain.SiteVisitScheduled
		visit.ConfirmedDate = &d
		visit.ConfirmedAt = &now
		out := router.Reply(draft(step, KindSiteVisit, fmt.Sprintf(
			"Your visit is scheduled for %s. We look forward to showing you around!", domain.FormatDate(d))))
		out.Drafts[0].Summary = map[string]any{"visitDate": d.Format("2006-01-02")}
		return out, nil
	}

	return router.Reply(draft(step, KindSiteVisit, "Which day would suit you for a visit of the venue?")), nil
}

func agrees(turn *domain.TurnContext) bool {
	switch turn.Signals.Intent {
	case domain.IntentConfirmDate, domain.IntentAcceptOffer:
		return true
	}
	return affirmativeRe.MatchString(turn.Message)
}
