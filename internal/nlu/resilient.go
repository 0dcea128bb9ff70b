package nlu

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/platform/logger"
)

// Resilient bounds a provider call and degrades instead of failing. A timed
// out, failing or panicking provider yields Signals{Degraded: true} with every
// signal absent.
type Resilient struct {
	provider Provider
	timeout  time.Duration
	log      *logger.Logger
}

// NewResilient wraps provider with a per-call timeout.
func NewResilient(provider Provider, timeout time.Duration, log *logger.Logger) *Resilient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Resilient{provider: provider, timeout: timeout, log: log}
}

// Detect never returns an error.
func (r *Resilient) Detect(ctx context.Context, message string, hints Hints) domain.Signals {
	ctx, span := tracer.Start(ctx, "detect signals")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		signals domain.Signals
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("nlu provider panic: %v", p)}
			}
		}()
		signals, err := r.provider.Detect(ctx, message, hints)
		done <- outcome{signals: signals, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res = outcome{err: ctx.Err()}
	}

	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		r.log.Warn("nlu: degraded to absent signals", "error", res.err, "step", int(hints.CurrentStep))
		return domain.Signals{Degraded: true}
	}

	span.SetAttributes(
		attribute.String("nlu.intent", string(res.signals.Intent)),
		attribute.Float64("nlu.confidence", res.signals.Confidence),
	)
	return res.signals
}
