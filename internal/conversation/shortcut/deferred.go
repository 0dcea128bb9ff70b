package shortcut

import (
	"slices"

	"venue_booking_backend/internal/conversation/domain"
)

// queue records an intent that needs client input. One entry is kept per
// kind, newest wins, and the list never grows past the policy cap: when full,
// the oldest entry is dropped.
func (p *Planner) queue(rec *domain.Record, res *Result, item domain.DeferredIntent) {
	rec.Deferred = slices.DeleteFunc(rec.Deferred, func(d domain.DeferredIntent) bool {
		return d.Kind == item.Kind
	})
	rec.Deferred = append(rec.Deferred, item)
	if limit := p.policy.MaxDeferred; len(rec.Deferred) > limit {
		rec.Deferred = slices.Clone(rec.Deferred[len(rec.Deferred)-limit:])
	}
	if res != nil {
		res.Deferred = append(res.Deferred, item)
	}
}

// Defer queues an intent from outside a plan, e.g. a step handler that had to
// postpone part of a message.
func (p *Planner) Defer(rec *domain.Record, item domain.DeferredIntent) {
	p.queue(rec, nil, item)
}

// ClearDeferred drops the queued intent of kind once it has been satisfied.
func (p *Planner) ClearDeferred(rec *domain.Record, kind string) {
	rec.Deferred = slices.DeleteFunc(rec.Deferred, func(d domain.DeferredIntent) bool {
		return d.Kind == kind
	})
	if len(rec.Deferred) == 0 {
		rec.Deferred = nil
	}
}

// NextQuestion is the question surfaced to the client for the oldest open
// deferred intent.
func (p *Planner) NextQuestion(rec *domain.Record) string {
	if len(rec.Deferred) == 0 {
		return ""
	}
	return rec.Deferred[0].Question
}
