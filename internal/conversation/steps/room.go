package steps

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"venue_booking_backend/internal/conversation/detour"
	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/router"
	"venue_booking_backend/internal/conversation/shortcut"
)

// RoomHandler owns step 3: evaluating rooms and locking one.
type RoomHandler struct {
	deps Deps
}

func (h *RoomHandler) Handle(_ context.Context, rec *domain.Record, turn *domain.TurnContext) (router.Outcome, error) {
	if !rec.DateConfirmed() {
		return router.Advance(domain.StepDate, "room needs a confirmed date"), nil
	}
	now := turn.ReceivedAt
	date := *rec.Event.ChosenDate
	ent := turn.Signals.Entities

	applyRequirements(rec, ent)

	requested := ent.RoomID
	if requested == "" {
		reading := h.deps.Planner.ReadNumeric(rec, ent, now)
		if reading.Option != nil && reading.Option.Kind == shortcut.ChoiceRoom {
			requested = reading.Option.Value
		}
	}
	if requested != "" {
		rec.RoomPreference = requested
	}

	target := requested
	if target == "" {
		target = rec.LockedRoomID
	}
	if target == "" {
		target = rec.RoomPreference
	}
	if target == "" {
		return h.presentOptions(rec, date, now, ""), nil
	}

	eval, ok := h.deps.Rooms.Evaluate(rec, target, date)
	if !ok {
		return h.presentOptions(rec, date, now, fmt.Sprintf("We could not find a room called %q.", target)), nil
	}

	if rec.LockedRoomID == eval.RoomID && detour.RoomStillValid(rec, eval) {
		rec.RoomEval = &eval
		return resume(rec, "room lock still valid"), nil
	}

	if !eval.Available {
		if rec.LockedRoomID == eval.RoomID {
			rec.ReleaseRoom()
		}
		return h.presentOptions(rec, date, now, fmt.Sprintf(
			"%s is not available for your event on %s.", roomName(h.deps.Policy, eval.RoomID), domain.FormatDate(date))), nil
	}

	rec.LockedRoomID = eval.RoomID
	rec.RoomEval = &eval
	h.deps.Planner.ClearChoice(rec)
	h.deps.Planner.ClearDeferred(rec, shortcut.IntentRoom)
	return resume(rec, "room locked"), nil
}

// presentOptions lists the rooms that fit and keeps the list referable by
// number for the next reply.
func (h *RoomHandler) presentOptions(rec *domain.Record, date, now time.Time, lead string) router.Outcome {
	rooms := h.deps.Rooms.Alternatives(rec, date)
	var b strings.Builder
	if lead != "" {
		b.WriteString(lead)
		b.WriteString(" ")
	}
	if len(rooms) == 0 {
		h.deps.Planner.ClearChoice(rec)
		b.WriteString(fmt.Sprintf("Unfortunately none of our rooms fits %d guests on %s. Would another date or a smaller group work for you?",
			rec.Requirements.Participants, domain.FormatDate(date)))
		return router.Reply(draft(domain.StepRoom, KindRoomOptions, b.String()))
	}

	options := make([]domain.ChoiceOption, 0, len(rooms))
	fmt.Fprintf(&b, "These rooms are available on %s:\n", domain.FormatDate(date))
	for i, room := range rooms {
		options = append(options, domain.ChoiceOption{Kind: shortcut.ChoiceRoom, Value: room.ID, Label: room.Name})
		fmt.Fprintf(&b, "%d. %s (up to %d guests)\n", i+1, room.Name, room.Capacity)
	}
	b.WriteString("Which one would you like?")
	h.deps.Planner.PresentChoice(rec, shortcut.ChoiceRoom, options, now)

	d := draft(domain.StepRoom, KindRoomOptions, b.String())
	d.Summary = map[string]any{"rooms": len(options)}
	return router.Reply(d)
}

// resume continues after a room decision: a detour fast-skips to the earliest
// stale artifact, otherwise the flow moves on to the offer.
func resume(rec *domain.Record, reason string) router.Outcome {
	if next, ok := detour.Resume(rec); ok && next > domain.StepRoom {
		out := router.Advance(next, reason)
		out.Source = domain.SourceFastSkip
		return out
	}
	return router.Advance(domain.StepOffer, reason)
}

func applyRequirements(rec *domain.Record, ent domain.Entities) {
	if ent.Participants <= 0 && ent.Layout == "" && len(ent.Features) == 0 {
		return
	}
	req := rec.Requirements
	if ent.Participants > 0 {
		req.Participants = ent.Participants
	}
	if ent.Layout != "" {
		req.Layout = ent.Layout
	}
	if len(ent.Features) > 0 {
		req.Features = slices.Clone(ent.Features)
	}
	if domain.RequirementsHash(req) != rec.RequirementsHash {
		rec.SetRequirements(req)
	}
}
