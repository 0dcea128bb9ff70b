// Package detour classifies messages that revise a committed booking variable,
// maps each revision to the step that owns it and decides where the flow may
// resume once that step has re-run.
package detour

import (
	"regexp"
	"slices"
	"strings"

	"venue_booking_backend/internal/conversation/domain"
)

var (
	revisionMarkerRe = regexp.MustCompile(`(?i)\b(actually|instead|changed|switch|moved|rather|reschedule|correction|make it|can we do|could we do|no longer)\b`)
	// Bare verbs only mark a revision in a question when they take an object:
	// "could we change the room?" but not "can you update me on the room?".
	revisionVerbRe   = regexp.MustCompile(`(?i)\b(change|update|move)\b`)
	revisionObjectRe = regexp.MustCompile(`(?i)\b(change|update)\s+(the|our|my|it|this|that)\b|\bmove\s+(the|our|my|it|this|that|to)\b`)

	dateRefRe         = regexp.MustCompile(`(?i)\b(the\s+)?(date|day)\b`)
	siteVisitRefRe    = regexp.MustCompile(`(?i)\b(site visit|visit|viewing|tour)\b`)
	roomRefRe         = regexp.MustCompile(`(?i)\b(the\s+)?room\b`)
	requirementsRefRe = regexp.MustCompile(`(?i)\b(people|persons|guests|participants|attendees|headcount|layout|setup|set-up|seating)\b`)
	productsRefRe     = regexp.MustCompile(`(?i)\b(products?|catering|coffee|lunch|ap[eé]ro|technician|add-ons?)\b`)
	commercialRefRe   = regexp.MustCompile(`(?i)\b(price|pricing|discount|rate|payment terms|offer terms)\b`)
	depositRefRe      = regexp.MustCompile(`(?i)\bdeposit\b`)
	clientInfoRefRe   = regexp.MustCompile(`(?i)\b(e-?mail|phone|mobile|contact|address|company name)\b`)
)

// Detect reports whether message revises a committed variable of rec. Both a
// revision marker and a bound target are required: a value without a marker,
// or a marker without anything it could apply to, is not a change.
func Detect(message string, signals domain.Signals, rec *domain.Record) *domain.Change {
	if !hasRevisionMarker(message, signals) {
		return nil
	}

	candidates := boundTargets(message, signals.Entities, rec)
	if len(candidates) == 0 {
		return nil
	}

	chosen, alternative := resolve(candidates, rec)
	change := &domain.Change{Type: chosen, Alternative: string(alternative)}
	if target, ok := Target(chosen); ok {
		change.Target = domain.StepPtr(target)
	}
	return change
}

func hasRevisionMarker(message string, signals domain.Signals) bool {
	if signals.Intent == domain.IntentChangeRequest || revisionMarkerRe.MatchString(message) {
		return true
	}
	if !revisionVerbRe.MatchString(message) {
		return false
	}
	return !signals.IsQuestion || revisionObjectRe.MatchString(message)
}

// boundTargets lists every change type the message binds to a committed
// variable, in routing-table order.
func boundTargets(message string, ent domain.Entities, rec *domain.Record) []domain.ChangeType {
	var out []domain.ChangeType
	add := func(ct domain.ChangeType) {
		if !slices.Contains(out, ct) {
			out = append(out, ct)
		}
	}

	mentionsVisit := siteVisitRefRe.MatchString(message)

	// A date value or "the date" is bound to the event date and, when a visit
	// date is open too, to the visit. resolve picks between them.
	if ent.Date != nil || dateRefRe.MatchString(message) {
		if mentionsVisit {
			if siteVisitOpen(rec) {
				add(domain.ChangeSiteVisit)
			}
		} else {
			if eventDateOpen(rec) {
				add(domain.ChangeDate)
			}
			if siteVisitOpen(rec) && (rec.SiteVisit.ProposedDate != nil || rec.SiteVisit.ConfirmedDate != nil) {
				add(domain.ChangeSiteVisit)
			}
		}
	} else if mentionsVisit && siteVisitOpen(rec) {
		add(domain.ChangeSiteVisit)
	}

	if (ent.RoomID != "" || roomRefRe.MatchString(message)) && (rec.RoomLocked() || rec.RoomPreference != "") {
		add(domain.ChangeRoom)
	}
	if (ent.Participants > 0 || ent.Layout != "" || len(ent.Features) > 0 || requirementsRefRe.MatchString(message)) &&
		rec.Requirements.Participants > 0 {
		add(domain.ChangeRequirements)
	}
	if (len(ent.Products) > 0 || productsRefRe.MatchString(message)) && (rec.Offer != nil || len(rec.Products) > 0) {
		add(domain.ChangeProducts)
	}
	if commercialRefRe.MatchString(message) && rec.Offer != nil {
		add(domain.ChangeCommercial)
	}
	if depositRefRe.MatchString(message) && rec.Deposit.Required {
		add(domain.ChangeDeposit)
	}
	if ent.HasContact() || (clientInfoRefRe.MatchString(message) && ent.Billing == nil) {
		add(domain.ChangeClientInfo)
	}

	return out
}

func eventDateOpen(rec *domain.Record) bool {
	return rec.Event.ChosenDate != nil || rec.Event.RequestedDate != nil
}

func siteVisitOpen(rec *domain.Record) bool {
	return rec.SiteVisit.Status != domain.SiteVisitNone
}

// resolve picks one change type out of the bound candidates. Only the event
// date and the visit date compete for the same words; every other pair is
// ordered by the routing table, earliest owner first.
//
// Between date and visit: a unique open candidate wins, then the most recently
// confirmed one. Otherwise the event date is inferred and the visit is
// returned as the alternative so the reply can name it.
func resolve(candidates []domain.ChangeType, rec *domain.Record) (domain.ChangeType, domain.ChangeType) {
	hasDate := slices.Contains(candidates, domain.ChangeDate)
	hasVisit := slices.Contains(candidates, domain.ChangeSiteVisit)

	if hasDate && hasVisit {
		dateAt := rec.Event.DateConfirmedAt
		visitAt := rec.SiteVisit.ConfirmedAt
		switch {
		case dateAt != nil && (visitAt == nil || dateAt.After(*visitAt)):
			return domain.ChangeDate, ""
		case visitAt != nil && (dateAt == nil || visitAt.After(*dateAt)):
			return domain.ChangeSiteVisit, ""
		default:
			return domain.ChangeDate, domain.ChangeSiteVisit
		}
	}

	slices.SortStableFunc(candidates, func(a, b domain.ChangeType) int {
		return order(a) - order(b)
	})
	return candidates[0], ""
}

// DisambiguationNote is the clause appended to the reply when the detector had
// to infer between two open variables.
func DisambiguationNote(change *domain.Change) string {
	if change == nil || change.Alternative == "" {
		return ""
	}
	return "I have updated the " + label(change.Type) + ". If you meant the " +
		label(domain.ChangeType(change.Alternative)) + " instead, just let me know."
}

func label(ct domain.ChangeType) string {
	switch ct {
	case domain.ChangeDate:
		return "event date"
	case domain.ChangeSiteVisit:
		return "site visit date"
	case domain.ChangeClientInfo:
		return "contact details"
	}
	return strings.ToLower(string(ct))
}
