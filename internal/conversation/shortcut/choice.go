package shortcut

import (
	"fmt"
	"time"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/policy"
)

// Choice kinds.
const (
	ChoiceRoom = "room"
	ChoiceDate = "date"
)

// PresentChoice stores a numbered list the next reply may refer to. It
// replaces any earlier list.
func (p *Planner) PresentChoice(rec *domain.Record, kind string, options []domain.ChoiceOption, at time.Time) {
	if len(options) == 0 {
		rec.Choice = nil
		return
	}
	rec.Choice = &domain.ChoiceContext{
		Kind:      kind,
		Options:   options,
		Step:      rec.CurrentStep,
		CreatedAt: at,
		ExpiresAt: at.Add(p.choiceTTL),
	}
}

// ClearChoice drops the live list.
func (p *Planner) ClearChoice(rec *domain.Record) {
	rec.Choice = nil
}

// LiveChoice returns the list still referable at now, or nil. An expired list
// is dropped from the record.
func (p *Planner) LiveChoice(rec *domain.Record, now time.Time) *domain.ChoiceContext {
	if rec.Choice == nil {
		return nil
	}
	if rec.Choice.Expired(now) {
		rec.Choice = nil
		return nil
	}
	return rec.Choice
}

// NumericReading is how a short numeric or ordinal reply was understood.
type NumericReading struct {
	Option *domain.ChoiceOption
	Date   *time.Time
	// Clarify is set when the policy asks the client instead of guessing.
	Clarify string
}

// ReadNumeric interprets ordinal and bare-number replies against the live
// choice list. An explicit ordinal ("option 2", "the first one") always refers
// to the list. A bare number is read according to the numeric reply policy.
func (p *Planner) ReadNumeric(rec *domain.Record, ent domain.Entities, now time.Time) NumericReading {
	choice := p.LiveChoice(rec, now)

	if ent.OptionIndex != 0 && choice != nil {
		if opt, ok := pick(choice, ent.OptionIndex); ok {
			return NumericReading{Option: &opt}
		}
		return NumericReading{}
	}

	if ent.BareNumber == 0 {
		return NumericReading{}
	}

	opt, inList := pick(choice, ent.BareNumber)
	date, isDay := dayOfMonth(ent.BareNumber, now)

	switch {
	case inList && !isDay:
		return NumericReading{Option: &opt}
	case !inList && isDay && p.policy.NumericReplyPriority == policy.NumericDateFirst:
		return NumericReading{Date: &date}
	case !inList:
		return NumericReading{}
	}

	switch p.policy.NumericReplyPriority {
	case policy.NumericDateFirst:
		return NumericReading{Date: &date}
	case policy.NumericAsk:
		return NumericReading{Clarify: fmt.Sprintf(
			"Just to be sure: did you mean option %d (%s), or the %s as a date?",
			ent.BareNumber, opt.Label, ordinal(ent.BareNumber))}
	default:
		return NumericReading{Option: &opt}
	}
}

func pick(choice *domain.ChoiceContext, n int) (domain.ChoiceOption, bool) {
	if choice == nil || len(choice.Options) == 0 {
		return domain.ChoiceOption{}, false
	}
	if n == -1 {
		return choice.Options[len(choice.Options)-1], true
	}
	if n < 1 || n > len(choice.Options) {
		return domain.ChoiceOption{}, false
	}
	return choice.Options[n-1], true
}

// dayOfMonth reads n as the next occurrence of that day of the month.
func dayOfMonth(n int, now time.Time) (time.Time, bool) {
	if n < 1 || n > 31 {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		first := time.Date(today.Year(), today.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		candidate := time.Date(first.Year(), first.Month(), n, 0, 0, 0, 0, time.UTC)
		if candidate.Month() != first.Month() || candidate.Before(today) {
			continue
		}
		return candidate, true
	}
	return time.Time{}, false
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
