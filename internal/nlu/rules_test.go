package nlu

import (
	"context"
	"testing"
	"time"

	"venue_booking_backend/internal/conversation/domain"
)

var testNow = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

func detect(t *testing.T, message string, step domain.Step) domain.Signals {
	t.Helper()
	signals, err := NewRules().Detect(context.Background(), message, Hints{CurrentStep: step, Now: testNow})
	if err != nil {
		t.Fatalf("detect %q: %v", message, err)
	}
	return signals
}

func TestRules_MultiSignalFirstMessage(t *testing.T) {
	s := detect(t, "Room B for 25 people on May 7, 2026", domain.StepIntake)

	if s.Intent != domain.IntentEventRequest {
		t.Fatalf("expected event_request, got %q", s.Intent)
	}
	if s.Entities.Date == nil || !s.Entities.Date.Equal(time.Date(2026, 5, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2026-05-07, got %v", s.Entities.Date)
	}
	if s.Entities.RoomID != "room-b" {
		t.Fatalf("expected room-b, got %q", s.Entities.RoomID)
	}
	if s.Entities.Participants != 25 {
		t.Fatalf("expected 25 participants, got %d", s.Entities.Participants)
	}
}

func TestRules_ChangeRequestNeedsMarker(t *testing.T) {
	s := detect(t, "Actually, change the date to June 25, 2026", domain.StepNegotiation)
	if s.Intent != domain.IntentChangeRequest {
		t.Fatalf("expected change_request, got %q", s.Intent)
	}

	s = detect(t, "March 20", domain.StepOffer)
	if s.Intent == domain.IntentChangeRequest {
		t.Fatal("a bare date must not be classified as a change request")
	}
}

func TestRules_QuestionIsNotAChange(t *testing.T) {
	s := detect(t, "What rooms are free in March?", domain.StepOffer)
	if s.Intent != domain.IntentGeneralQuestion {
		t.Fatalf("expected general_question, got %q", s.Intent)
	}
	if !s.IsQuestion {
		t.Fatal("expected IsQuestion")
	}
	if s.Entities.RoomID != "" {
		t.Fatalf("expected no room entity, got %q", s.Entities.RoomID)
	}
}

func TestRules_AskingForAnUpdateIsNotAChange(t *testing.T) {
	s := detect(t, "Can you update me on the room?", domain.StepOffer)
	if s.Intent == domain.IntentChangeRequest {
		t.Fatal("a request for news must not be classified as a change request")
	}

	s = detect(t, "Could we change the room?", domain.StepOffer)
	if s.Intent != domain.IntentChangeRequest {
		t.Fatalf("expected change_request, got %q", s.Intent)
	}
}

func TestRules_DateWithoutYearResolvesToNextOccurrence(t *testing.T) {
	ent := ExtractEntities("could we do 5 January instead", testNow)
	if ent.Date == nil || ent.Date.Year() != 2027 {
		t.Fatalf("expected a date in 2027, got %v", ent.Date)
	}

	ent = ExtractEntities("on 12.03.2027 please", testNow)
	if ent.Date == nil || !ent.Date.Equal(time.Date(2027, 3, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2027-03-12, got %v", ent.Date)
	}

	ent = ExtractEntities("February 30", testNow)
	if ent.Date != nil {
		t.Fatalf("expected invalid calendar date to be ignored, got %v", ent.Date)
	}
}

func TestRules_NumericAndOrdinalReplies(t *testing.T) {
	if ent := ExtractEntities("2", testNow); ent.BareNumber != 2 {
		t.Fatalf("expected bare number 2, got %d", ent.BareNumber)
	}
	if ent := ExtractEntities("the first one", testNow); ent.OptionIndex != 1 {
		t.Fatalf("expected option 1, got %d", ent.OptionIndex)
	}
	if ent := ExtractEntities("option 3 please", testNow); ent.OptionIndex != 3 {
		t.Fatalf("expected option 3, got %d", ent.OptionIndex)
	}
}

func TestRules_BillingAddressInline(t *testing.T) {
	s := detect(t, "Billing address: ACME AG, Main Street 1, 8000 Zurich, Switzerland", domain.StepNegotiation)
	if s.Intent != domain.IntentProvideBilling {
		t.Fatalf("expected provide_billing, got %q", s.Intent)
	}
	b := s.Entities.Billing
	if b == nil || !b.Complete() {
		t.Fatalf("expected complete billing, got %+v", b)
	}
	if b.PostalCode != "8000" || b.City != "Zurich" {
		t.Fatalf("unexpected postal/city %q/%q", b.PostalCode, b.City)
	}
}

func TestRules_ManagerRequestAndDeposit(t *testing.T) {
	if s := detect(t, "I'd like to speak to a manager", domain.StepOffer); !s.IsManagerRequest {
		t.Fatal("expected manager request")
	}
	if s := detect(t, "We have paid the deposit today", domain.StepConfirmation); s.Intent != domain.IntentConfirmDeposit {
		t.Fatalf("expected confirm_deposit, got %q", s.Intent)
	}
}

func TestRules_DateOnlyAtDateStepConfirms(t *testing.T) {
	s := detect(t, "May 7, 2026 works for us", domain.StepDate)
	if s.Intent != domain.IntentConfirmDate {
		t.Fatalf("expected confirm_date, got %q", s.Intent)
	}
}
