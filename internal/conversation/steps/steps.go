// Package steps holds the reference step handlers: simple venue rules that make
// the booking flow runnable end to end. Each handler owns one step and mutates
// only the record it is given.
package steps

import (
	"time"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/policy"
	"venue_booking_backend/internal/conversation/router"
	"venue_booking_backend/internal/conversation/shortcut"
)

// Draft kinds.
const (
	KindDatePrompt      = "date_prompt"
	KindRoomOptions     = "room_options"
	KindOffer           = "offer"
	KindOfferStatus     = "offer_status"
	KindBillingRequest  = "billing_request"
	KindCounterOffer    = "counter_offer"
	KindDecline         = "decline"
	KindDepositRequest  = "deposit_request"
	KindDepositReminder = "deposit_reminder"
	KindConfirmation    = "confirmation"
	KindSiteVisit       = "site_visit"
	KindInfo            = "info"
)

// Deps are shared by every handler.
type Deps struct {
	Policy  *policy.Policy
	Planner *shortcut.Planner
	Rooms   *RoomEvaluator
}

// New builds the full handler set.
func New(deps Deps) (router.Handlers, error) {
	return router.NewHandlers(
		&DateHandler{deps: deps},
		&RoomHandler{deps: deps},
		&OfferHandler{deps: deps},
		&NegotiationHandler{deps: deps},
		&TransitionHandler{deps: deps},
		&ConfirmationHandler{deps: deps},
		&SiteVisitHandler{deps: deps},
	)
}

func draft(step domain.Step, kind, text string) domain.Draft {
	return domain.Draft{Step: step, Kind: kind, Text: text}
}

func today(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func confirmDate(rec *domain.Record, date, at time.Time) {
	d := date
	rec.Event.RequestedDate = &d
	rec.Event.ChosenDate = &d
	rec.Event.DateConfirmed = true
	rec.Event.DateConfirmedAt = &at
}

func roomName(pol *policy.Policy, id string) string {
	if room, ok := pol.Room(id); ok && room.Name != "" {
		return room.Name
	}
	return id
}
