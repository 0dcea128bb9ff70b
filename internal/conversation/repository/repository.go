// Package repository persists booking records between turns. Every write is
// conditional on the version read under the turn lock, so a turn that lost a
// race cannot overwrite a newer record.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/platform/apperr"
)

var (
	// ErrNotFound is returned when no booking exists for the id.
	ErrNotFound = apperr.NotFound("booking not found")
	// ErrStaleLock is returned by Save when the record changed after it was
	// loaded. The turn must be discarded.
	ErrStaleLock = apperr.Conflict("booking was modified by a concurrent turn")
)

// LockToken identifies the version a turn loaded. Version 0 means the booking
// did not exist yet.
type LockToken struct {
	BookingID uuid.UUID
	Version   int64
}

// IsNew reports whether the token was issued for a booking not yet stored.
func (t LockToken) IsNew() bool {
	return t.Version == 0
}

// Next is the token for the version a successful Save with t wrote.
func (t LockToken) Next() LockToken {
	return LockToken{BookingID: t.BookingID, Version: t.Version + 1}
}

// Summary is the listing view of a booking.
type Summary struct {
	ID          uuid.UUID
	CurrentStep domain.Step
	ThreadState domain.ThreadState
	Version     int64
	UpdatedAt   time.Time
}

// Reader provides read-only access to bookings.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Record, error)
	ListByThreadState(ctx context.Context, state domain.ThreadState, limit int) ([]Summary, error)
}

// Store is the persistence contract of the turn engine.
type Store interface {
	Reader
	// LoadForUpdate returns the record and the token Save needs. A missing
	// booking yields ErrNotFound together with a token for its creation.
	LoadForUpdate(ctx context.Context, id uuid.UUID) (*domain.Record, LockToken, error)
	// Save writes rec if the stored version still matches token.
	Save(ctx context.Context, rec *domain.Record, token LockToken) error
}
