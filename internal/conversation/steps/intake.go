package steps

import (
	"strings"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/platform/phone"
)

// Intake captures what a first message carries and opens the date step. It
// runs for step 1, which has no routed handler.
func Intake(deps Deps, rec *domain.Record, turn *domain.TurnContext) {
	ent := turn.Signals.Entities
	now := turn.ReceivedAt

	if ent.Date != nil && !ent.Date.Before(today(now)) {
		d := *ent.Date
		rec.Event.RequestedDate = &d
	}
	applyRequirements(rec, ent)
	if ent.RoomID != "" {
		if room, ok := deps.Policy.Room(ent.RoomID); ok {
			rec.RoomPreference = room.ID
		}
	}
	addProducts(deps.Policy, rec, ent)
	ApplyContact(rec, ent)

	rec.MoveTo(domain.StepDate, domain.SourceIntake, "enquiry captured", now)
}

// ApplyContact merges contact fields from ent onto the record. Phone numbers
// are stored in E.164 when they parse.
func ApplyContact(rec *domain.Record, ent domain.Entities) bool {
	changed := false
	set := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if v != "" && v != *dst {
			*dst = v
			changed = true
		}
	}
	set(&rec.Contact.Name, ent.Name)
	set(&rec.Contact.Email, strings.ToLower(ent.Email))
	set(&rec.Contact.Company, ent.Company)
	if ent.Phone != "" {
		set(&rec.Contact.Phone, phone.NormalizeE164(ent.Phone))
	}
	return changed
}
