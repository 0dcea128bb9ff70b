// Package policy loads the engine policy: intent validity per step, reply
// placeholders, the numeric reply rule and the venue catalog used by the
// reference step handlers.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"venue_booking_backend/internal/conversation/domain"
)

//go:embed default.yaml
var defaultPolicy []byte

// NumericPriority decides how a bare number is read while a choice list is live.
type NumericPriority string

const (
	NumericChoiceFirst NumericPriority = "choice_first"
	NumericDateFirst   NumericPriority = "date_first"
	NumericAsk         NumericPriority = "ask"
)

// IntentPolicy lists where each intent may act.
type IntentPolicy struct {
	AlwaysValid []string         `yaml:"always_valid"`
	ValidSteps  map[string][]int `yaml:"valid_steps"`
}

// Room is a bookable room.
type Room struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Capacity       int      `yaml:"capacity"`
	Features       []string `yaml:"features"`
	DailyRateCents int64    `yaml:"daily_rate_cents"`
	BlockedDates   []string `yaml:"blocked_dates"`
}

// BlockedOn reports whether the room cannot be booked on date.
func (r Room) BlockedOn(date time.Time) bool {
	return slices.Contains(r.BlockedDates, date.Format("2006-01-02"))
}

// HasFeatures reports whether the room offers every requested feature.
func (r Room) HasFeatures(features []string) bool {
	for _, f := range features {
		if !slices.Contains(r.Features, strings.ToLower(strings.TrimSpace(f))) {
			return false
		}
	}
	return true
}

// Product is an add-on that can be ordered with a room.
type Product struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	PerPerson  bool   `yaml:"per_person"`
	PriceCents int64  `yaml:"price_cents"`
}

// DepositPolicy decides when a deposit is due and how much.
type DepositPolicy struct {
	ThresholdCents int64 `yaml:"threshold_cents"`
	Percent        int   `yaml:"percent"`
}

// Policy is the full engine policy.
type Policy struct {
	Intents              IntentPolicy    `yaml:"intents"`
	NumericReplyPriority NumericPriority `yaml:"numeric_reply_priority"`
	MaxDeferred          int             `yaml:"max_deferred"`
	Placeholders         map[int]string  `yaml:"placeholders"`
	DuplicateReply       string          `yaml:"duplicate_reply"`
	EscalationReply      string          `yaml:"escalation_reply"`
	RejectionNotice      string          `yaml:"rejection_notice"`
	Rooms                []Room          `yaml:"rooms"`
	Products             []Product       `yaml:"products"`
	Deposit              DepositPolicy   `yaml:"deposit"`
}

// Default returns the embedded policy.
func Default() *Policy {
	p, err := parse(defaultPolicy, nil)
	if err != nil {
		panic("policy: embedded default is invalid: " + err.Error())
	}
	return p
}

// Load returns the embedded policy overlaid with the YAML file at path. An
// empty path yields the default.
func Load(path string) (*Policy, error) {
	base := Default()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return parse(data, base)
}

func parse(data []byte, base *Policy) (*Policy, error) {
	p := base
	if p == nil {
		p = &Policy{}
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("policy: decode: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) validate() error {
	switch p.NumericReplyPriority {
	case NumericChoiceFirst, NumericDateFirst, NumericAsk:
	case "":
		p.NumericReplyPriority = NumericChoiceFirst
	default:
		return fmt.Errorf("policy: unknown numeric_reply_priority %q", p.NumericReplyPriority)
	}
	if p.MaxDeferred <= 0 {
		p.MaxDeferred = 3
	}
	for intent, steps := range p.Intents.ValidSteps {
		for _, s := range steps {
			if !domain.Step(s).Valid() {
				return fmt.Errorf("policy: intent %s lists invalid step %d", intent, s)
			}
		}
	}
	seen := make(map[string]bool, len(p.Rooms))
	for i := range p.Rooms {
		room := &p.Rooms[i]
		room.ID = strings.ToLower(strings.TrimSpace(room.ID))
		if room.ID == "" || room.Capacity <= 0 {
			return fmt.Errorf("policy: room %d needs an id and a positive capacity", i)
		}
		if seen[room.ID] {
			return fmt.Errorf("policy: duplicate room id %s", room.ID)
		}
		seen[room.ID] = true
		for j, f := range room.Features {
			room.Features[j] = strings.ToLower(strings.TrimSpace(f))
		}
	}
	return nil
}

// IntentValidAt reports whether intent may act at step. Unknown intents and
// the empty intent are treated as always valid: the filter only drops signals
// it positively knows to be misplaced.
func (p *Policy) IntentValidAt(intent domain.Intent, step domain.Step) bool {
	if intent == domain.IntentNone || slices.Contains(p.Intents.AlwaysValid, string(intent)) {
		return true
	}
	steps, ok := p.Intents.ValidSteps[string(intent)]
	if !ok {
		return true
	}
	return slices.Contains(steps, int(step))
}

// Placeholder returns the safety-net reply for step.
func (p *Policy) Placeholder(step domain.Step) string {
	if text, ok := p.Placeholders[int(step)]; ok && text != "" {
		return text
	}
	return "Thank you for your message. We will get back to you shortly."
}

// Room looks up a room by id or display name ("Room B", "b").
func (p *Policy) Room(ref string) (Room, bool) {
	key := normalizeRoomRef(ref)
	if key == "" {
		return Room{}, false
	}
	for _, room := range p.Rooms {
		if room.ID == key || normalizeRoomRef(room.Name) == key {
			return room, true
		}
	}
	return Room{}, false
}

// Product looks up a product by code.
func (p *Policy) Product(code string) (Product, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, prod := range p.Products {
		if prod.Code == code {
			return prod, true
		}
	}
	return Product{}, false
}

// normalizeRoomRef maps "Room B", "room-b" and "b" to "room-b".
func normalizeRoomRef(ref string) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	ref = strings.ReplaceAll(ref, " ", "-")
	if ref == "" {
		return ""
	}
	if !strings.HasPrefix(ref, "room-") {
		ref = "room-" + ref
	}
	return ref
}
