// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"venue_booking_backend/platform/events"
	"venue_booking_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Conversation Domain Events
// =============================================================================

// Reply sources carried by ReplyReady.
const (
	ReplySourceTurn         = "turn"
	ReplySourceApproval     = "approval"
	ReplySourceContinuation = "continuation"
	ReplySourceRejection    = "rejection"
)

// ReplyReady is published when a reply may be sent to the client: a turn reply
// that needs no review, an approved review task or a continuation.
type ReplyReady struct {
	BaseEvent
	BookingID uuid.UUID  `json:"bookingId"`
	Step      int        `json:"step"`
	Kind      string     `json:"kind"`
	Text      string     `json:"text"`
	Source    string     `json:"source"`
	TaskID    *uuid.UUID `json:"taskId,omitempty"`
	// Recipient is the client's e-mail address when known.
	Recipient string `json:"recipient,omitempty"`
	Language  string `json:"language,omitempty"`
}

func (e ReplyReady) EventName() string { return "conversation.reply.ready" }

// TurnProcessed is published after a turn has been saved.
type TurnProcessed struct {
	BaseEvent
	BookingID       uuid.UUID `json:"bookingId"`
	FromStep        int       `json:"fromStep"`
	ToStep          int       `json:"toStep"`
	ThreadState     string    `json:"threadState"`
	PendingApproval bool      `json:"pendingApproval"`
	SafetyNet       bool      `json:"safetyNet"`
}

func (e TurnProcessed) EventName() string { return "conversation.turn.processed" }

// ReviewRequested is published when a draft enters the review queue.
type ReviewRequested struct {
	BaseEvent
	TaskID    uuid.UUID `json:"taskId"`
	BookingID uuid.UUID `json:"bookingId"`
	Step      int       `json:"step"`
	Type      string    `json:"type"`
	Blocking  bool      `json:"blocking"`
}

func (e ReviewRequested) EventName() string { return "hil.review.requested" }

// ReviewDecided is published when a reviewer approves or rejects a task.
type ReviewDecided struct {
	BaseEvent
	TaskID    uuid.UUID `json:"taskId"`
	BookingID uuid.UUID `json:"bookingId"`
	Status    string    `json:"status"`
	Edited    bool      `json:"edited"`
}

func (e ReviewDecided) EventName() string { return "hil.review.decided" }
