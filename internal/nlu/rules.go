package nlu

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"venue_booking_backend/internal/conversation/domain"
)

// Rules is a deterministic, pattern-based provider. It covers the phrasing
// the booking flow needs and is the default when no LLM is configured.
type Rules struct{}

// NewRules returns the pattern-based provider.
func NewRules() *Rules {
	return &Rules{}
}

const monthPattern = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)`

var (
	monthDayRe   = regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4}))?`)
	dayMonthRe   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthPattern + `\b\.?(?:,?\s+(\d{4}))?`)
	dottedDateRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})?`)
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

	participantsRe = regexp.MustCompile(`(?i)\b(\d{1,4})\s*(?:people|persons|person|guests|participants|attendees|pax|delegates)\b`)
	roomRe         = regexp.MustCompile(`(?i)\broom\s+([a-z0-9])\b`)
	optionRe       = regexp.MustCompile(`(?i)\boption\s+(\d)\b`)
	ordinalRe      = regexp.MustCompile(`(?i)\b(?:the\s+)?(first|second|third|fourth|fifth|last)(?:\s+(?:one|option|room))?\b`)
	bareNumberRe   = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?:st|nd|rd|th)?\s*[.!]?\s*$`)

	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe      = regexp.MustCompile(`(?i)(?:phone|tel|mobile|number is|reach me (?:at|on))\s*:?\s*(\+?\d[\d\s().-]{6,}\d)`)
	intlPhoneRe  = regexp.MustCompile(`(\+\d[\d\s().-]{7,}\d)`)
	nameRe       = regexp.MustCompile(`(?:[Mm]y name is|[Tt]his is|[Ii]'m|[Ii] am) ([A-Z][\p{L}'-]+(?:\s+[A-Z][\p{L}'-]+)?)`)
	companyRe    = regexp.MustCompile(`(?i)\b(?:company|organisation|organization)\s*(?:is|:)\s*([^,.\n]+)`)
	billingKVRe  = regexp.MustCompile(`(?im)^\s*(name|company|street|address|postal code|zip|city|country|vat)\s*[:=]\s*(.+?)\s*$`)
	billingInRe  = regexp.MustCompile(`(?i)billing address\s*(?:is|:)\s*(.+)`)
	postalCityRe = regexp.MustCompile(`^(\d{4,5})\s+(.+)$`)

	managerRe     = regexp.MustCompile(`(?i)\b((speak|talk|chat)\s+(to|with)\s+(a\s+|the\s+)?(human|person|manager|someone|real person|colleague)|escalate|your manager)\b`)
	questionRe    = regexp.MustCompile(`(?i)^\s*(what|which|when|where|who|how|is|are|do|does|can|could|would|will)\b`)
	changeRe      = regexp.MustCompile(`(?i)\b(actually|instead|switch|rather|reschedule)\b`)
	changeVerbRe  = regexp.MustCompile(`(?i)\b(change|update|move)\b`)
	changeObjRe   = regexp.MustCompile(`(?i)\b(change|update)\s+(the|our|my|it|this|that)\b|\bmove\s+(the|our|my|it|this|that|to)\b`)
	changeRefRe   = regexp.MustCompile(`(?i)\b(date|day|room|people|guests|participants|headcount|products?|catering|price|deposit|visit|phone|email|address)\b`)
	acceptRe      = regexp.MustCompile(`(?i)\b(we accept|i accept|accept the offer|we'?ll take it|looks good|sounds good|agreed|go ahead|confirm the (offer|booking))\b`)
	declineRe     = regexp.MustCompile(`(?i)\b(decline|not interested|no longer interested|cancel (the|our) (booking|request))\b`)
	counterRe     = regexp.MustCompile(`(?i)\b(discount|cheaper|lower (the )?price|too expensive|counter[- ]?offer|better price)\b`)
	depositRe     = regexp.MustCompile(`(?i)(\bdeposit\b.*\b(paid|transferred|sent)\b|\b(paid|transferred)\b.*\bdeposit\b)`)
	siteVisitRe   = regexp.MustCompile(`(?i)\b(site visit|visit|viewing|come (by|and see)|tour of the venue)\b`)
	confirmDateRe = regexp.MustCompile(`(?i)\b(confirm(ed)? the date|date (works|is fine|is good|suits)|that date (works|is fine)|yes,? (that|this) date)\b`)
	bookingRe     = regexp.MustCompile(`(?i)\b(book|booking|reserve|event|looking for|would like|need a room|organi[sz]e|planning)\b`)
	layoutRe      = regexp.MustCompile(`(?i)\b(theatre|theater|classroom|banquet|u-shape|boardroom|cocktail)\b`)
	featureRe     = regexp.MustCompile(`(?i)\b(projector|stage|sound|whiteboard|catering kitchen)\b`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var ordinals = map[string]int{"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5, "last": -1}

var productKeywords = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`(?i)\bcoffee\b`), "coffee"},
	{regexp.MustCompile(`(?i)\blunch\b`), "lunch"},
	{regexp.MustCompile(`(?i)\b(ap[eé]ro|aperitif)\b`), "apero"},
	{regexp.MustCompile(`(?i)\btechnician\b`), "tech"},
}

// Detect implements Provider.
func (r *Rules) Detect(_ context.Context, message string, hints Hints) (domain.Signals, error) {
	now := hints.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ent := ExtractEntities(message, now)
	signals := domain.Signals{
		Entities:         ent,
		IsManagerRequest: managerRe.MatchString(message),
		IsQuestion:       strings.Contains(message, "?") || questionRe.MatchString(message),
		Language:         "en",
	}
	signals.Intent = classify(message, ent, signals.IsQuestion, hints)
	signals.Confidence = 0.5
	if signals.Intent != domain.IntentNone {
		signals.Confidence = 0.9
	}
	return signals, nil
}

// ExtractEntities pulls dates, counts, rooms, products, contact and billing
// fragments out of message.
func ExtractEntities(message string, now time.Time) domain.Entities {
	var ent domain.Entities

	if date, text, ok := parseDate(message, now); ok {
		ent.Date = &date
		ent.DateText = text
	}
	if m := participantsRe.FindStringSubmatch(message); m != nil {
		ent.Participants, _ = strconv.Atoi(m[1])
	}
	if m := roomRe.FindStringSubmatch(message); m != nil {
		ent.RoomID = "room-" + strings.ToLower(m[1])
	}
	if m := layoutRe.FindStringSubmatch(message); m != nil {
		ent.Layout = strings.ToLower(m[1])
	}
	for _, m := range featureRe.FindAllStringSubmatch(message, -1) {
		ent.Features = append(ent.Features, strings.ReplaceAll(strings.ToLower(m[1]), " ", "_"))
	}
	for _, kw := range productKeywords {
		if kw.re.MatchString(message) {
			ent.Products = append(ent.Products, domain.ProductLine{Code: kw.code, Quantity: 1})
		}
	}

	if m := bareNumberRe.FindStringSubmatch(message); m != nil {
		ent.BareNumber, _ = strconv.Atoi(m[1])
	} else if m := optionRe.FindStringSubmatch(message); m != nil {
		ent.OptionIndex, _ = strconv.Atoi(m[1])
	} else if len(strings.Fields(message)) <= 6 {
		if m := ordinalRe.FindStringSubmatch(message); m != nil {
			ent.OptionIndex = ordinals[strings.ToLower(m[1])]
		}
	}

	if m := emailRe.FindString(message); m != "" {
		ent.Email = strings.ToLower(m)
	}
	if m := phoneRe.FindStringSubmatch(message); m != nil {
		ent.Phone = strings.TrimSpace(m[1])
	} else if m := intlPhoneRe.FindStringSubmatch(message); m != nil {
		ent.Phone = strings.TrimSpace(m[1])
	}
	if m := nameRe.FindStringSubmatch(message); m != nil {
		ent.Name = strings.TrimSpace(m[1])
	}
	if m := companyRe.FindStringSubmatch(message); m != nil {
		ent.Company = strings.TrimSpace(m[1])
	}
	ent.Billing = parseBilling(message)

	return ent
}

func classify(message string, ent domain.Entities, isQuestion bool, hints Hints) domain.Intent {
	hasDate := ent.Date != nil
	hasRoom := ent.RoomID != ""
	hasCount := ent.Participants > 0

	switch {
	case changeWording(message, isQuestion) && (hasDate || hasRoom || hasCount || changeRefRe.MatchString(message)):
		return domain.IntentChangeRequest
	case depositRe.MatchString(message):
		return domain.IntentConfirmDeposit
	case siteVisitRe.MatchString(message):
		return domain.IntentSiteVisit
	case acceptRe.MatchString(message):
		return domain.IntentAcceptOffer
	case counterRe.MatchString(message):
		return domain.IntentCounterOffer
	case declineRe.MatchString(message):
		return domain.IntentDeclineOffer
	case ent.Billing != nil:
		return domain.IntentProvideBilling
	case hasDate && (hasRoom || hasCount):
		return domain.IntentEventRequest
	case confirmDateRe.MatchString(message), hasDate && hints.CurrentStep == domain.StepDate:
		return domain.IntentConfirmDate
	case hasRoom, ent.OptionIndex != 0 && hints.ChoiceKind == "room":
		return domain.IntentSelectRoom
	case len(ent.Products) > 0:
		return domain.IntentAddProducts
	case ent.HasContact() && !hasDate && !hasCount:
		return domain.IntentUpdateContact
	case (hasDate || hasCount) && hints.CurrentStep == domain.StepIntake:
		return domain.IntentEventRequest
	case isQuestion:
		return domain.IntentGeneralQuestion
	case hints.CurrentStep == domain.StepIntake && bookingRe.MatchString(message):
		return domain.IntentEventRequest
	}
	return domain.IntentNone
}

// changeWording reports revision wording. In a question a bare "change",
// "update" or "move" needs an object, so asking for news is not a change.
func changeWording(message string, isQuestion bool) bool {
	if changeRe.MatchString(message) {
		return true
	}
	if !changeVerbRe.MatchString(message) {
		return false
	}
	return !isQuestion || changeObjRe.MatchString(message)
}

func parseDate(message string, now time.Time) (time.Time, string, bool) {
	if m := isoDateRe.FindStringSubmatch(message); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if t, ok := buildDate(y, time.Month(mo), d); ok {
			return t, m[0], true
		}
	}
	if m := monthDayRe.FindStringSubmatch(message); m != nil {
		d, _ := strconv.Atoi(m[2])
		if t, ok := withYear(m[3], months[strings.ToLower(m[1])], d, now); ok {
			return t, m[0], true
		}
	}
	if m := dayMonthRe.FindStringSubmatch(message); m != nil {
		d, _ := strconv.Atoi(m[1])
		if t, ok := withYear(m[3], months[strings.ToLower(m[2])], d, now); ok {
			return t, m[0], true
		}
	}
	if m := dottedDateRe.FindStringSubmatch(message); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if t, ok := withYear(m[3], time.Month(mo), d, now); ok {
			return t, m[0], true
		}
	}
	return time.Time{}, "", false
}

// withYear resolves a missing year to the next occurrence on or after now.
func withYear(year string, month time.Month, day int, now time.Time) (time.Time, bool) {
	if month == 0 {
		return time.Time{}, false
	}
	if year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			return time.Time{}, false
		}
		return buildDate(y, month, day)
	}
	t, ok := buildDate(now.Year(), month, day)
	if !ok {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if t.Before(today) {
		return buildDate(now.Year()+1, month, day)
	}
	return t, true
}

func buildDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func parseBilling(message string) *domain.BillingDetails {
	var b domain.BillingDetails
	found := false

	for _, m := range billingKVRe.FindAllStringSubmatch(message, -1) {
		value := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "name":
			b.Name = value
		case "company":
			b.Company = value
		case "street", "address":
			b.Street = value
		case "postal code", "zip":
			b.PostalCode = value
		case "city":
			b.City = value
		case "country":
			b.Country = value
		case "vat":
			b.VATNumber = value
		}
		found = true
	}

	if m := billingInRe.FindStringSubmatch(message); m != nil && !found {
		parts := strings.Split(m[1], ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[i]), "."))
		}
		if len(parts) >= 4 {
			b.Name = parts[0]
			b.Street = parts[1]
			if pc := postalCityRe.FindStringSubmatch(parts[2]); pc != nil {
				b.PostalCode, b.City = pc[1], pc[2]
			} else {
				b.City = parts[2]
			}
			b.Country = parts[3]
			found = true
		}
	}

	if !found {
		return nil
	}
	return &b
}
