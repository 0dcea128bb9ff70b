// Package nlu detects intent and entities in client messages. The engine
// calls it at most once per turn through Resilient, which bounds the call and
// fails open to absent signals.
package nlu

import (
	"context"
	"errors"
	"time"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/platform/apperr"
)

// ErrUnavailable is returned by providers that could not produce signals.
var ErrUnavailable = apperr.Unavailable("nlu provider unavailable")

// Hints give the provider the conversational context of a message.
type Hints struct {
	CurrentStep domain.Step
	// ChoiceKind is the kind of a live choice list ("room", "date"), if any.
	ChoiceKind string
	Language   string
	Now        time.Time
}

// Provider detects intent and entities.
type Provider interface {
	Detect(ctx context.Context, message string, hints Hints) (domain.Signals, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, message string, hints Hints) (domain.Signals, error)

// Detect calls f.
func (f ProviderFunc) Detect(ctx context.Context, message string, hints Hints) (domain.Signals, error) {
	return f(ctx, message, hints)
}

// IsUnavailable reports whether err means the provider gave no answer.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		apperr.Is(err, apperr.KindUnavailable)
}
