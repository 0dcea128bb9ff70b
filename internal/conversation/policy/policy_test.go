package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"venue_booking_backend/internal/conversation/domain"
)

func TestDefault_IntentTable(t *testing.T) {
	p := Default()

	tests := []struct {
		intent domain.Intent
		step   domain.Step
		want   bool
	}{
		{domain.IntentConfirmDate, domain.StepDate, true},
		{domain.IntentConfirmDate, domain.StepOffer, false},
		{domain.IntentAcceptOffer, domain.StepNegotiation, true},
		{domain.IntentAcceptOffer, domain.StepDate, false},
		{domain.IntentNone, domain.StepConfirmation, true},
		{domain.Intent("something_new"), domain.StepRoom, true},
	}
	for _, tt := range tests {
		if got := p.IntentValidAt(tt.intent, tt.step); got != tt.want {
			t.Errorf("IntentValidAt(%s, %d) = %v, want %v", tt.intent, tt.step, got, tt.want)
		}
	}
}

func TestDefault_Catalog(t *testing.T) {
	p := Default()
	if p.NumericReplyPriority != NumericChoiceFirst {
		t.Fatalf("unexpected numeric priority %q", p.NumericReplyPriority)
	}
	for _, ref := range []string{"room-b", "Room B", "b"} {
		if room, ok := p.Room(ref); !ok || room.ID != "room-b" {
			t.Fatalf("Room(%q) = %+v, %v", ref, room, ok)
		}
	}
	if _, ok := p.Room(""); ok {
		t.Fatal("an empty reference must not match")
	}
	for step := domain.StepIntake; step <= domain.StepConfirmation; step++ {
		if p.Placeholder(step) == "" {
			t.Fatalf("step %d has no placeholder", step)
		}
	}
	if p.RejectionNotice == "" || p.EscalationReply == "" || p.DuplicateReply == "" {
		t.Fatal("reply texts must be set")
	}
}

func TestRoom_Constraints(t *testing.T) {
	room := Room{ID: "room-x", Features: []string{"projector"}, BlockedDates: []string{"2026-05-07"}}
	if !room.BlockedOn(time.Date(2026, time.May, 7, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected the blocked date to match")
	}
	if !room.HasFeatures([]string{" Projector "}) || room.HasFeatures([]string{"stage"}) {
		t.Fatal("feature matching is case and space insensitive and exact otherwise")
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := []byte("numeric_reply_priority: ask\nrejection_notice: \"We will be in touch.\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.NumericReplyPriority != NumericAsk || p.RejectionNotice != "We will be in touch." {
		t.Fatalf("override not applied: %+v", p)
	}
	if len(p.Rooms) == 0 || p.EscalationReply == "" {
		t.Fatal("fields absent from the file keep their defaults")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"priority":       "numeric_reply_priority: sometimes\n",
		"invalid step":   "intents:\n  valid_steps:\n    confirm_date: [9]\n",
		"duplicate room": "rooms:\n  - {id: a, capacity: 10}\n  - {id: A, capacity: 20}\n",
		"no capacity":    "rooms:\n  - {id: a}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	p, err := Load("  ")
	if err != nil || p == nil || len(p.Rooms) == 0 {
		t.Fatalf("expected the default policy, got %v", err)
	}
}
