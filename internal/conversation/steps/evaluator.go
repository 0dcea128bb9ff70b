package steps

import (
	"slices"
	"time"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/policy"
)

// RoomEvaluator checks rooms of the venue catalog against the booking's
// requirements and date.
type RoomEvaluator struct {
	policy *policy.Policy
	now    func() time.Time
}

// NewRoomEvaluator returns an evaluator over the policy room catalog.
func NewRoomEvaluator(pol *policy.Policy, now func() time.Time) *RoomEvaluator {
	if now == nil {
		now = time.Now
	}
	return &RoomEvaluator{policy: pol, now: now}
}

// Evaluate implements shortcut.RoomChecker.
func (e *RoomEvaluator) Evaluate(rec *domain.Record, roomID string, date time.Time) (domain.RoomEvaluation, bool) {
	room, ok := e.policy.Room(roomID)
	if !ok {
		return domain.RoomEvaluation{}, false
	}
	available := fits(room, rec.Requirements, date)
	return domain.RoomEvaluation{
		RoomID:           room.ID,
		Date:             date,
		Available:        available,
		RequirementsHash: rec.RequirementsHash,
		Hash:             domain.RoomEvaluationHash(room.ID, available, rec.RequirementsHash),
		EvaluatedAt:      e.now(),
	}, true
}

// Alternatives lists the rooms that fit the booking on date, smallest first.
func (e *RoomEvaluator) Alternatives(rec *domain.Record, date time.Time) []policy.Room {
	var out []policy.Room
	for _, room := range e.policy.Rooms {
		if fits(room, rec.Requirements, date) {
			out = append(out, room)
		}
	}
	slices.SortFunc(out, func(a, b policy.Room) int { return a.Capacity - b.Capacity })
	return out
}

func fits(room policy.Room, req domain.Requirements, date time.Time) bool {
	return room.Capacity >= req.Participants &&
		room.HasFeatures(req.Features) &&
		!room.BlockedOn(date)
}
