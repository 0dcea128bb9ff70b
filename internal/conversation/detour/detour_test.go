package detour

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/nlu"
)

var now = time.Date(2026, time.February, 1, 10, 0, 0, 0, time.UTC)

func offerStageRecord() *domain.Record {
	rec := domain.NewRecord(uuid.New(), now)
	date := time.Date(2026, time.May, 7, 0, 0, 0, 0, time.UTC)
	rec.Event.ChosenDate = &date
	rec.Event.DateConfirmed = true
	rec.Event.DateConfirmedAt = &now
	rec.SetRequirements(domain.Requirements{Participants: 25})
	rec.LockedRoomID = "room-b"
	rec.RoomEval = &domain.RoomEvaluation{
		RoomID:           "room-b",
		Date:             date,
		Available:        true,
		RequirementsHash: rec.RequirementsHash,
		Hash:             domain.RoomEvaluationHash("room-b", true, rec.RequirementsHash),
	}
	rec.Offer = &domain.Offer{Status: domain.OfferSent, Hash: rec.CurrentOfferHash()}
	rec.CurrentStep = domain.StepOffer
	return rec
}

func signalsFor(t *testing.T, message string, step domain.Step) domain.Signals {
	t.Helper()
	s, err := nlu.NewRules().Detect(t.Context(), message, nlu.Hints{CurrentStep: step, Now: now})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	return s
}

func TestDetect_RequiresMarkerAndTarget(t *testing.T) {
	rec := offerStageRecord()

	cases := []struct {
		message string
		want    *domain.Step
	}{
		{"What rooms are free in March?", nil},
		{"Actually, change the date to March 20", domain.StepPtr(domain.StepDate)},
		{"March 20", nil},
		{"Actually, thanks a lot", nil},
	}
	for _, tc := range cases {
		change := Detect(tc.message, signalsFor(t, tc.message, rec.CurrentStep), rec)
		switch {
		case tc.want == nil && change != nil:
			t.Errorf("%q: expected no change, got %+v", tc.message, change)
		case tc.want != nil && (change == nil || change.Target == nil):
			t.Errorf("%q: expected detour to %d, got %+v", tc.message, *tc.want, change)
		case tc.want != nil && *change.Target != *tc.want:
			t.Errorf("%q: expected target %d, got %d", tc.message, *tc.want, *change.Target)
		}
	}
}

func TestDetect_RoutingTable(t *testing.T) {
	rec := offerStageRecord()
	rec.Deposit.Required = true

	cases := map[string]domain.ChangeType{
		"Actually we would rather have room C":       domain.ChangeRoom,
		"Change it to 40 people instead":             domain.ChangeRequirements,
		"Could we change the catering to lunch":      domain.ChangeProducts,
		"Can we change the price, maybe a discount?": domain.ChangeCommercial,
		"We need to change the deposit":              domain.ChangeDeposit,
		"Please update my email to ana@example.com":  domain.ChangeClientInfo,
	}
	for message, want := range cases {
		change := Detect(message, signalsFor(t, message, rec.CurrentStep), rec)
		if change == nil || change.Type != want {
			t.Errorf("%q: expected %s, got %+v", message, want, change)
		}
	}

	if _, ok := Target(domain.ChangeClientInfo); ok {
		t.Fatal("client info must not have an owner step")
	}
}

func TestDetect_QuestionAskingForNewsIsNotAChange(t *testing.T) {
	rec := offerStageRecord()

	cases := []struct {
		message string
		want    *domain.Step
	}{
		{"Can you update me on the room?", nil},
		{"Any update on the date?", nil},
		{"Could we change the room?", domain.StepPtr(domain.StepRoom)},
		{"Can we move to room C?", domain.StepPtr(domain.StepRoom)},
	}
	for _, tc := range cases {
		change := Detect(tc.message, signalsFor(t, tc.message, rec.CurrentStep), rec)
		switch {
		case tc.want == nil && change != nil:
			t.Errorf("%q: expected no change, got %+v", tc.message, change)
		case tc.want != nil && (change == nil || change.Target == nil):
			t.Errorf("%q: expected detour to %d, got %+v", tc.message, *tc.want, change)
		case tc.want != nil && *change.Target != *tc.want:
			t.Errorf("%q: expected target %d, got %d", tc.message, *tc.want, *change.Target)
		}
	}
}

func TestDetect_AmbiguousDatePrefersUniqueOpenCandidate(t *testing.T) {
	rec := offerStageRecord()
	change := Detect("Can we change the date?", domain.Signals{}, rec)
	if change == nil || change.Type != domain.ChangeDate || change.Alternative != "" {
		t.Fatalf("expected unflagged date change, got %+v", change)
	}
}

func TestDetect_AmbiguousDatePrefersMostRecentlyConfirmed(t *testing.T) {
	rec := offerStageRecord()
	visit := time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	rec.SiteVisit = domain.SiteVisitState{Status: domain.SiteVisitScheduled, ConfirmedDate: &visit, ConfirmedAt: &later}

	change := Detect("Can we change the date?", domain.Signals{}, rec)
	if change == nil || change.Type != domain.ChangeSiteVisit || change.Alternative != "" {
		t.Fatalf("expected site visit change, got %+v", change)
	}
}

func TestDetect_AmbiguousDateFlagsAlternative(t *testing.T) {
	rec := offerStageRecord()
	rec.Event.DateConfirmedAt = nil
	visit := time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC)
	rec.SiteVisit = domain.SiteVisitState{Status: domain.SiteVisitProposed, ProposedDate: &visit}

	change := Detect("Can we change the date?", domain.Signals{}, rec)
	if change == nil || change.Type != domain.ChangeDate || change.Alternative != string(domain.ChangeSiteVisit) {
		t.Fatalf("expected flagged date change, got %+v", change)
	}
	if note := DisambiguationNote(change); !strings.Contains(note, "site visit") {
		t.Fatalf("expected note to name the alternative, got %q", note)
	}
}

func TestApply_ClearsBillingWhenLeavingBillingStep(t *testing.T) {
	rec := offerStageRecord()
	rec.CurrentStep = domain.StepNegotiation
	rec.Offer.Status = domain.OfferAccepted
	rec.Billing.AwaitingBillingForAccept = true
	rec.Billing.Details.City = "Zurich"

	change := &domain.Change{Type: domain.ChangeDate, Target: domain.StepPtr(domain.StepDate)}
	turn := domain.NewTurn(rec.ID, "x", now)
	plan := PlanFor(change, rec)
	if !plan.Detour || !plan.ClearsBilling {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if !Apply(plan, rec, turn) {
		t.Fatal("expected the booking to move")
	}

	if rec.CurrentStep != domain.StepDate || rec.CallerStep == nil || *rec.CallerStep != domain.StepNegotiation {
		t.Fatalf("expected detour 5 -> 2, got step %d caller %v", rec.CurrentStep, rec.CallerStep)
	}
	if rec.Billing.AwaitingBillingForAccept || rec.Offer.Status != domain.OfferSent {
		t.Fatal("expected billing capture to be cleared")
	}
	if rec.Billing.Details.City != "Zurich" {
		t.Fatal("collected billing details must be kept")
	}
}

func TestPlanFor_ForwardChangeIsHandledInPlace(t *testing.T) {
	rec := offerStageRecord()
	rec.CurrentStep = domain.StepRoom
	plan := PlanFor(&domain.Change{Type: domain.ChangeCommercial, Target: domain.StepPtr(domain.StepNegotiation)}, rec)
	if plan.Detour {
		t.Fatal("a change owned by a later step must not move the booking")
	}
}

func TestResume_FastSkipsToCallerWhenHashesMatch(t *testing.T) {
	rec := offerStageRecord()
	rec.CurrentStep = domain.StepRoom
	rec.CallerStep = domain.StepPtr(domain.StepOffer)

	next, ok := Resume(rec)
	if !ok || next != domain.StepOffer {
		t.Fatalf("expected resume at offer, got %d (%v)", next, ok)
	}
}

func TestResume_StopsAtEarliestStaleArtifact(t *testing.T) {
	rec := offerStageRecord()
	rec.CallerStep = domain.StepPtr(domain.StepNegotiation)

	moved := time.Date(2026, time.June, 25, 0, 0, 0, 0, time.UTC)
	rec.Event.ChosenDate = &moved
	if next, _ := Resume(rec); next != domain.StepOffer {
		t.Fatalf("expected stale offer to resume at 4, got %d", next)
	}

	rec.SetRequirements(domain.Requirements{Participants: 80})
	if next, _ := Resume(rec); next != domain.StepRoom {
		t.Fatalf("expected stale room evaluation to resume at 3, got %d", next)
	}

	rec.CallerStep = nil
	if _, ok := Resume(rec); ok {
		t.Fatal("expected no resume without a caller")
	}
}

func TestRoomStillValid(t *testing.T) {
	rec := offerStageRecord()
	fresh := *rec.RoomEval
	fresh.Date = time.Date(2026, time.June, 25, 0, 0, 0, 0, time.UTC)
	if !RoomStillValid(rec, fresh) {
		t.Fatal("same outcome on another date must keep the room")
	}
	fresh.Available = false
	fresh.Hash = domain.RoomEvaluationHash("room-b", false, rec.RequirementsHash)
	if RoomStillValid(rec, fresh) {
		t.Fatal("unavailable room must not be kept")
	}
}
