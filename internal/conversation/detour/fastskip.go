package detour

import "venue_booking_backend/internal/conversation/domain"

// Resume returns where a detoured booking continues once its owner step has
// re-run. It is the earliest step whose derived artifact no longer matches its
// inputs, capped at the caller step: a room evaluation computed for other
// requirements sends the flow to the room step, a stale offer to the offer
// step. With every hash intact the caller step is returned directly.
//
// ok is false when no detour is active.
func Resume(rec *domain.Record) (domain.Step, bool) {
	if rec.CallerStep == nil {
		return 0, false
	}
	caller := *rec.CallerStep

	next := caller
	switch {
	case !rec.DateConfirmed():
		next = domain.StepDate
	case !rec.RoomLocked() || rec.RoomEvaluationStale():
		next = domain.StepRoom
	case rec.Offer == nil || rec.OfferStale():
		next = domain.StepOffer
	}
	return min(next, caller), true
}

// RoomStillValid reports whether re-evaluating the locked room produced the
// same outcome hash as the cached evaluation, so the room lock survives.
func RoomStillValid(rec *domain.Record, fresh domain.RoomEvaluation) bool {
	return rec.RoomEval != nil &&
		rec.RoomEval.RoomID == fresh.RoomID &&
		fresh.Available &&
		rec.RoomEval.Hash == fresh.Hash
}
