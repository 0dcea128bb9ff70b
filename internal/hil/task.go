// Package hil is the human review queue. Drafts that need approval become
// tasks; a reviewer approves (optionally editing the text) or rejects each one
// exactly once.
package hil

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/platform/apperr"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"

	// StatusSuperseded closes a task whose draft no longer matches the
	// booking, such as an offer replaced by a detour.
	StatusSuperseded Status = "superseded"
)

var (
	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = apperr.NotFound("review task not found")
	// ErrAlreadyDecided is matched by every DecisionConflict.
	ErrAlreadyDecided = apperr.Conflict("review task already decided")
)

// Task is one pending or decided review.
type Task struct {
	ID        uuid.UUID      `json:"id"`
	BookingID uuid.UUID      `json:"bookingId"`
	Step      domain.Step    `json:"step"`
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Summary   map[string]any `json:"summary,omitempty"`
	Signature string         `json:"signature"`
	Status    Status         `json:"status"`
	// Blocking tasks hold the booking in waiting_on_review until decided.
	Blocking   bool       `json:"blocking"`
	EditedText *string    `json:"editedText,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Reviewer   string     `json:"reviewer,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	DecidedAt  *time.Time `json:"decidedAt,omitempty"`
}

// OutboundText is the text to send once approved.
func (t Task) OutboundText() string {
	if t.EditedText != nil && strings.TrimSpace(*t.EditedText) != "" {
		return *t.EditedText
	}
	return t.Text
}

// Decision is what a reviewer submits.
type Decision struct {
	Status     Status
	EditedText *string
	Notes      string
	Reviewer   string
	At         time.Time
}

// DecisionConflict is returned when a decision targets a task that is no
// longer pending. It carries the decision already recorded.
type DecisionConflict struct {
	TaskID    uuid.UUID  `json:"taskId"`
	Status    Status     `json:"status"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

func (c *DecisionConflict) Error() string {
	return fmt.Sprintf("review task %s already %s", c.TaskID, c.Status)
}

// Unwrap lets errors.Is(err, ErrAlreadyDecided) and apperr.GetKind see the
// conflict.
func (c *DecisionConflict) Unwrap() error {
	return ErrAlreadyDecided.WithDetails(c)
}
