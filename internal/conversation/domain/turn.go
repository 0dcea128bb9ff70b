package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intent is the primary classification of an inbound message.
type Intent string

const (
	IntentNone            Intent = ""
	IntentEventRequest    Intent = "event_request"
	IntentConfirmDate     Intent = "confirm_date"
	IntentSelectRoom      Intent = "select_room"
	IntentAddProducts     Intent = "add_products"
	IntentAcceptOffer     Intent = "accept_offer"
	IntentCounterOffer    Intent = "counter_offer"
	IntentDeclineOffer    Intent = "decline_offer"
	IntentProvideBilling  Intent = "provide_billing"
	IntentConfirmDeposit  Intent = "confirm_deposit"
	IntentSiteVisit       Intent = "site_visit"
	IntentUpdateContact   Intent = "update_contact"
	IntentChangeRequest   Intent = "change_request"
	IntentGeneralQuestion Intent = "general_question"
)

// Entities are the values extracted from a message.
type Entities struct {
	Date         *time.Time      `json:"date,omitempty"`
	DateText     string          `json:"dateText,omitempty"`
	RoomID       string          `json:"roomId,omitempty"`
	Participants int             `json:"participants,omitempty"`
	Layout       string          `json:"layout,omitempty"`
	Features     []string        `json:"features,omitempty"`
	Products     []ProductLine   `json:"products,omitempty"`
	Billing      *BillingDetails `json:"billing,omitempty"`
	Name         string          `json:"name,omitempty"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Company      string          `json:"company,omitempty"`
	// OptionIndex is a 1-based ordinal reference such as "the first one".
	OptionIndex int `json:"optionIndex,omitempty"`
	// BareNumber is set when the whole reply is a number ("2", "7th").
	BareNumber int `json:"bareNumber,omitempty"`
}

// HasContact reports whether any contact field was extracted.
func (e Entities) HasContact() bool {
	return e.Name != "" || e.Email != "" || e.Phone != "" || e.Company != ""
}

// Signals is the unified detection result for one message.
type Signals struct {
	Intent           Intent   `json:"intent"`
	Confidence       float64  `json:"confidence"`
	Entities         Entities `json:"entities"`
	IsManagerRequest bool     `json:"isManagerRequest"`
	IsQuestion       bool     `json:"isQuestion"`
	Language         string   `json:"language,omitempty"`
	// Degraded marks signals produced without the detection provider; every
	// field is then absent rather than guessed.
	Degraded bool `json:"degraded"`
}

// ChangeType names the committed variable a message revises.
type ChangeType string

const (
	ChangeDate         ChangeType = "DATE"
	ChangeRoom         ChangeType = "ROOM"
	ChangeRequirements ChangeType = "REQUIREMENTS"
	ChangeProducts     ChangeType = "PRODUCTS"
	ChangeCommercial   ChangeType = "COMMERCIAL"
	ChangeDeposit      ChangeType = "DEPOSIT"
	ChangeSiteVisit    ChangeType = "SITE_VISIT"
	ChangeClientInfo   ChangeType = "CLIENT_INFO"
)

// Change is a detected revision of a committed variable.
type Change struct {
	Type ChangeType `json:"type"`
	// Target is the step owning the variable; nil means handled in place.
	Target *Step `json:"target,omitempty"`
	// Alternative is set when another interpretation remained plausible.
	Alternative string `json:"alternative,omitempty"`
}

// Flags record what the pre-route pipeline decided for this turn.
type Flags struct {
	Escalated         bool   `json:"escalated"`
	OutOfContext      bool   `json:"outOfContext"`
	Duplicate         bool   `json:"duplicate"`
	GuardForced       *Step  `json:"guardForced,omitempty"`
	GuardSkipped      string `json:"guardSkipped,omitempty"`
	ShortcutApplied   bool   `json:"shortcutApplied"`
	CorrectionApplied bool   `json:"correctionApplied"`
	DetourApplied     bool   `json:"detourApplied"`
	// Continuation marks a turn run without a client message (approval or
	// payment follow-up).
	Continuation bool `json:"continuation"`
}

// TurnContext is the ephemeral state of one inbound message.
type TurnContext struct {
	BookingID  uuid.UUID
	Message    string
	ReceivedAt time.Time
	Signals    Signals
	Change     *Change
	Flags      Flags
	// Notes are clauses appended to the final reply, e.g. a disambiguation.
	Notes   []string
	Scratch map[string]any
}

// NewTurn builds the context for one message.
func NewTurn(bookingID uuid.UUID, message string, at time.Time) *TurnContext {
	return &TurnContext{
		BookingID:  bookingID,
		Message:    message,
		ReceivedAt: at,
		Scratch:    make(map[string]any),
	}
}

// NormalizedMessage returns the message with collapsed whitespace.
func (t *TurnContext) NormalizedMessage() string {
	return strings.Join(strings.Fields(t.Message), " ")
}

// AddNote appends a clause to the reply once.
func (t *TurnContext) AddNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	for _, existing := range t.Notes {
		if existing == note {
			return
		}
	}
	t.Notes = append(t.Notes, note)
}

// IsChangeRequest reports whether the turn revises a committed variable.
func (t *TurnContext) IsChangeRequest() bool {
	return t.Change != nil
}

// Draft is a reply proposed by a handler or the pipeline.
type Draft struct {
	Step             Step           `json:"step"`
	Kind             string         `json:"kind"`
	Text             string         `json:"text"`
	Summary          map[string]any `json:"summary,omitempty"`
	RequiresApproval bool           `json:"requiresApproval"`
}

// GuardSnapshot is the immutable output of the guard evaluator. The pipeline
// is its only consumer and the only writer that applies it.
type GuardSnapshot struct {
	ForcedStep              *Step  `json:"forcedStep,omitempty"`
	RequirementsHashChanged bool   `json:"requirementsHashChanged"`
	DepositBypass           bool   `json:"depositBypass"`
	Reason                  string `json:"reason,omitempty"`
}
