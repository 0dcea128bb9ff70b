package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OfferStatus tracks an offer through review and client decision.
type OfferStatus string

const (
	OfferDraft         OfferStatus = "draft"
	OfferPendingReview OfferStatus = "pending_review"
	OfferSent          OfferStatus = "sent"
	OfferAccepted      OfferStatus = "accepted"
	OfferDeclined      OfferStatus = "declined"
)

// SiteVisitStatus tracks the optional venue visit negotiated around step 7.
type SiteVisitStatus string

const (
	SiteVisitNone        SiteVisitStatus = ""
	SiteVisitProposed    SiteVisitStatus = "proposed"
	SiteVisitNegotiating SiteVisitStatus = "negotiating"
	SiteVisitScheduled   SiteVisitStatus = "scheduled"
)

// Requirements are the capacity and feature inputs to room evaluation.
type Requirements struct {
	Participants int      `json:"participants"`
	Layout       string   `json:"layout,omitempty"`
	Features     []string `json:"features,omitempty"`
}

// EventDetails holds the requested and confirmed event date.
type EventDetails struct {
	RequestedDate   *time.Time `json:"requestedDate,omitempty"`
	ChosenDate      *time.Time `json:"chosenDate,omitempty"`
	DateConfirmed   bool       `json:"dateConfirmed"`
	DateConfirmedAt *time.Time `json:"dateConfirmedAt,omitempty"`
}

// RoomEvaluation is the cached outcome of checking one room for the event.
// Hash covers the evaluation outcome, not the date, so a date change that keeps
// the room valid produces the same hash.
type RoomEvaluation struct {
	RoomID           string    `json:"roomId"`
	Date             time.Time `json:"date"`
	Available        bool      `json:"available"`
	Hash             string    `json:"hash"`
	RequirementsHash string    `json:"requirementsHash"`
	EvaluatedAt      time.Time `json:"evaluatedAt"`
}

// ProductLine is an add-on ordered for the event.
type ProductLine struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// OfferLine is one priced line of an offer.
type OfferLine struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitCents   int64  `json:"unitCents"`
	TotalCents  int64  `json:"totalCents"`
}

// Offer is the derived commercial proposal. Hash covers date, room,
// requirements and products.
type Offer struct {
	ID         uuid.UUID   `json:"id"`
	Status     OfferStatus `json:"status"`
	Hash       string      `json:"hash"`
	Lines      []OfferLine `json:"lines"`
	TotalCents int64       `json:"totalCents"`
	Version    int         `json:"version"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// BillingDetails is the invoice address collected after acceptance.
type BillingDetails struct {
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	VATNumber  string `json:"vatNumber,omitempty"`
}

// Complete reports whether the details are sufficient to invoice.
func (b BillingDetails) Complete() bool {
	hasName := strings.TrimSpace(b.Name) != "" || strings.TrimSpace(b.Company) != ""
	return hasName &&
		strings.TrimSpace(b.Street) != "" &&
		strings.TrimSpace(b.PostalCode) != "" &&
		strings.TrimSpace(b.City) != "" &&
		strings.TrimSpace(b.Country) != ""
}

// Missing lists the billing fields still empty.
func (b BillingDetails) Missing() []string {
	var missing []string
	if strings.TrimSpace(b.Name) == "" && strings.TrimSpace(b.Company) == "" {
		missing = append(missing, "name or company")
	}
	if strings.TrimSpace(b.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(b.PostalCode) == "" {
		missing = append(missing, "postal code")
	}
	if strings.TrimSpace(b.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(b.Country) == "" {
		missing = append(missing, "country")
	}
	return missing
}

// Merge copies the non-empty fields of other onto b.
func (b *BillingDetails) Merge(other BillingDetails) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&b.Name, other.Name)
	set(&b.Company, other.Company)
	set(&b.Street, other.Street)
	set(&b.PostalCode, other.PostalCode)
	set(&b.City, other.City)
	set(&b.Country, other.Country)
	set(&b.VATNumber, other.VATNumber)
}

// BillingRequirements tracks billing capture after the client accepts.
type BillingRequirements struct {
	AwaitingBillingForAccept bool           `json:"awaitingBillingForAccept"`
	Details                  BillingDetails `json:"details"`
}

// DepositState tracks the deposit required before final confirmation.
type DepositState struct {
	Required        bool       `json:"required"`
	AmountCents     int64      `json:"amountCents"`
	Requested       bool       `json:"requested"`
	Paid            bool       `json:"paid"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	ContinuationDue bool       `json:"continuationDue"`
}

// SiteVisitState tracks a venue visit negotiation.
type SiteVisitState struct {
	Status        SiteVisitStatus `json:"status,omitempty"`
	ProposedDate  *time.Time      `json:"proposedDate,omitempty"`
	ConfirmedDate *time.Time      `json:"confirmedDate,omitempty"`
	ConfirmedAt   *time.Time      `json:"confirmedAt,omitempty"`
}

// Active reports whether a visit is being negotiated.
func (s SiteVisitState) Active() bool {
	return s.Status == SiteVisitProposed || s.Status == SiteVisitNegotiating
}

// ContactInfo is the client's contact data.
type ContactInfo struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// ChoiceOption is one entry of a list presented to the client.
type ChoiceOption struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Label string `json:"label"`
}

// ChoiceContext is a short-lived list the next reply may refer to by position.
type ChoiceContext struct {
	Kind      string         `json:"kind"`
	Options   []ChoiceOption `json:"options"`
	Step      Step           `json:"step"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Expired reports whether the choice can no longer be referenced at now.
func (c *ChoiceContext) Expired(now time.Time) bool {
	return c == nil || !now.Before(c.ExpiresAt)
}

// DeferredIntent is a request the shortcut planner could not satisfy yet.
type DeferredIntent struct {
	Kind     string    `json:"kind"`
	Value    string    `json:"value,omitempty"`
	Question string    `json:"question"`
	QueuedAt time.Time `json:"queuedAt"`
}

// ShortcutTelemetry records what the shortcut planner did for this booking.
type ShortcutTelemetry struct {
	Applied       int        `json:"applied"`
	LastIntents   []string   `json:"lastIntents,omitempty"`
	LastAppliedAt *time.Time `json:"lastAppliedAt,omitempty"`
}

// AuditEntry records one step transition.
type AuditEntry struct {
	At     time.Time `json:"at"`
	From   Step      `json:"from"`
	To     Step      `json:"to"`
	Source string    `json:"source"`
	Reason string    `json:"reason"`
}

// Audit sources.
const (
	SourceIntake     = "intake"
	SourceGuard      = "guard"
	SourceDetour     = "detour"
	SourceFastSkip   = "fast_skip"
	SourceShortcut   = "shortcut"
	SourceCorrection = "flow_correction"
	SourceHandler    = "handler"
	SourceReview     = "review"
)

// Record is the booking record owned by the engine between turns.
type Record struct {
	ID          uuid.UUID   `json:"id"`
	CurrentStep Step        `json:"currentStep"`
	CallerStep  *Step       `json:"callerStep,omitempty"`
	ThreadState ThreadState `json:"threadState"`

	Event            EventDetails        `json:"event"`
	Requirements     Requirements        `json:"requirements"`
	RequirementsHash string              `json:"requirementsHash"`
	RoomPreference   string              `json:"roomPreference,omitempty"`
	LockedRoomID     string              `json:"lockedRoomId,omitempty"`
	RoomEval         *RoomEvaluation     `json:"roomEval,omitempty"`
	Products         []ProductLine       `json:"products,omitempty"`
	Offer            *Offer              `json:"offer,omitempty"`
	Billing          BillingRequirements `json:"billing"`
	Deposit          DepositState        `json:"deposit"`
	SiteVisit        SiteVisitState      `json:"siteVisit"`
	Contact          ContactInfo         `json:"contact"`
	Confirmed        bool                `json:"confirmed"`
	ConfirmedAt      *time.Time          `json:"confirmedAt,omitempty"`

	Choice    *ChoiceContext    `json:"choice,omitempty"`
	Deferred  []DeferredIntent  `json:"deferred,omitempty"`
	Shortcuts ShortcutTelemetry `json:"shortcuts"`

	LastClientMessage string       `json:"lastClientMessage,omitempty"`
	TurnCount         int          `json:"turnCount"`
	Audit             []AuditEntry `json:"audit,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// NewRecord returns a fresh booking at intake.
func NewRecord(id uuid.UUID, now time.Time) *Record {
	rec := &Record{
		ID:          id,
		CurrentStep: StepIntake,
		ThreadState: ThreadAwaitingClient,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec.RequirementsHash = RequirementsHash(rec.Requirements)
	return rec
}

// DateConfirmed reports whether the event date is committed.
func (r *Record) DateConfirmed() bool {
	return r.Event.DateConfirmed && r.Event.ChosenDate != nil
}

// RoomLocked reports whether a room is committed.
func (r *Record) RoomLocked() bool {
	return r.LockedRoomID != ""
}

// BillingCaptureActive reports whether billing is being collected for an accepted offer.
func (r *Record) BillingCaptureActive() bool {
	return r.Billing.AwaitingBillingForAccept
}

// HardOverride reports whether a flow is in progress that guards and shortcuts
// must not interrupt, and names it.
func (r *Record) HardOverride() (bool, string) {
	switch {
	case r.Billing.AwaitingBillingForAccept:
		return true, "billing_capture"
	case r.Deposit.ContinuationDue:
		return true, "deposit_continuation"
	case r.SiteVisit.Active():
		return true, "site_visit"
	}
	return false, ""
}

// SetRequirements replaces the requirements and refreshes their hash.
func (r *Record) SetRequirements(req Requirements) {
	r.Requirements = req
	r.RequirementsHash = RequirementsHash(req)
}

// MoveTo sets the current step and records the transition. A no-op move is
// not recorded.
func (r *Record) MoveTo(to Step, source, reason string, at time.Time) {
	from := r.CurrentStep
	if from == to {
		return
	}
	r.CurrentStep = to
	r.Audit = append(r.Audit, AuditEntry{At: at, From: from, To: to, Source: source, Reason: reason})
}

// BeginDetour sends the booking to target and remembers where to resume. An
// already active detour keeps its original caller.
func (r *Record) BeginDetour(target Step, reason string, at time.Time) {
	if r.CallerStep == nil && r.CurrentStep > target {
		r.CallerStep = StepPtr(r.CurrentStep)
	}
	r.MoveTo(target, SourceDetour, reason, at)
}

// EndDetour clears the caller step.
func (r *Record) EndDetour() {
	r.CallerStep = nil
}

// DetourActive reports whether a detour is waiting to resume its caller.
func (r *Record) DetourActive() bool {
	return r.CallerStep != nil
}

// ReleaseRoom drops the room lock and its evaluation.
func (r *Record) ReleaseRoom() {
	r.LockedRoomID = ""
	r.RoomEval = nil
}

// ClearBillingCapture resets acceptance-driven billing capture. Details already
// collected are kept.
func (r *Record) ClearBillingCapture() {
	r.Billing.AwaitingBillingForAccept = false
	if r.Offer != nil && r.Offer.Status == OfferAccepted {
		r.Offer.Status = OfferSent
	}
}

// Clone returns a deep copy so a turn can work on the record without touching
// the caller's value until save.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.CallerStep = clonePtr(r.CallerStep)
	out.Event.RequestedDate = clonePtr(r.Event.RequestedDate)
	out.Event.ChosenDate = clonePtr(r.Event.ChosenDate)
	out.Event.DateConfirmedAt = clonePtr(r.Event.DateConfirmedAt)
	out.Requirements.Features = slices.Clone(r.Requirements.Features)
	if r.RoomEval != nil {
		eval := *r.RoomEval
		out.RoomEval = &eval
	}
	out.Products = slices.Clone(r.Products)
	if r.Offer != nil {
		offer := *r.Offer
		offer.Lines = slices.Clone(r.Offer.Lines)
		out.Offer = &offer
	}
	out.Deposit.PaidAt = clonePtr(r.Deposit.PaidAt)
	out.SiteVisit.ProposedDate = clonePtr(r.SiteVisit.ProposedDate)
	out.SiteVisit.ConfirmedDate = clonePtr(r.SiteVisit.ConfirmedDate)
	out.SiteVisit.ConfirmedAt = clonePtr(r.SiteVisit.ConfirmedAt)
	out.ConfirmedAt = clonePtr(r.ConfirmedAt)
	if r.Choice != nil {
		choice := *r.Choice
		choice.Options = slices.Clone(r.Choice.Options)
		out.Choice = &choice
	}
	out.Deferred = slices.Clone(r.Deferred)
	out.Shortcuts.LastIntents = slices.Clone(r.Shortcuts.LastIntents)
	out.Shortcuts.LastAppliedAt = clonePtr(r.Shortcuts.LastAppliedAt)
	out.Audit = slices.Clone(r.Audit)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
