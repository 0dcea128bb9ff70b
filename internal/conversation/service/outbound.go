package service

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/repository"
	"venue_booking_backend/internal/conversation/steps"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/internal/hil"
)

type reviewItem struct {
	draft    domain.Draft
	blocking bool
}

// outbound splits the drafts of one run into what is sent now and what waits
// for a reviewer.
type outbound struct {
	send   []domain.Draft
	review []reviewItem
}

func (o outbound) blocking() bool {
	for _, r := range o.review {
		if r.blocking {
			return true
		}
	}
	return false
}

// sort applies the review rules: approval drafts from steps 2 to 5 are held
// until a reviewer decides. Approval drafts from steps 6 and 7 are sent
// directly, with a non-blocking task on record when late-step review is on.
func (s *Service) sort(rec *domain.Record, drafts []domain.Draft) outbound {
	var out outbound
	for _, d := range drafts {
		switch {
		case !d.RequiresApproval:
			out.send = append(out.send, d)
		case d.Step.BlocksOnReview():
			out.review = append(out.review, reviewItem{draft: d, blocking: true})
		default:
			out.send = append(out.send, d)
			s.log.Info("late-step draft sent without blocking review",
				"bookingId", rec.ID.String(), "step", int(d.Step), "kind", d.Kind, "recorded", s.lateStepReview)
			if s.lateStepReview {
				out.review = append(out.review, reviewItem{draft: d})
			}
		}
	}
	return out
}

// persist sets the thread state, saves the record and then brings the review
// queue in line with it: pending tasks the record no longer backs are
// superseded and the new drafts are queued. The queue is not touched when the
// save fails. A queue failure after the save does not fail the caller; the
// drafts are released from the record instead. It returns the first blocking
// task queued.
func (s *Service) persist(ctx context.Context, rec *domain.Record, token repository.LockToken, reviews []reviewItem) (*uuid.UUID, error) {
	pending, err := s.queue.ListPending(ctx, &rec.ID)
	if err != nil {
		return nil, err
	}
	stale := staleTasks(rec, pending, reviews)
	rec.ThreadState = threadState(rec, outbound{review: reviews}.blocking() || blockingLeft(pending, stale))

	if err := s.store.Save(ctx, rec, token); err != nil {
		if errors.Is(err, repository.ErrStaleLock) {
			s.log.Error("turn discarded: booking changed concurrently", "bookingId", rec.ID.String())
		} else {
			s.log.DatabaseError("save booking", err)
		}
		return nil, err
	}

	first, err := s.syncQueue(ctx, stale, rec.ID, reviews)
	if err != nil {
		s.log.Error("review queue out of step with booking", "bookingId", rec.ID.String(), "error", err)
		s.releaseHeld(ctx, rec, token.Next())
		return nil, nil
	}
	return first, nil
}

func (s *Service) syncQueue(ctx context.Context, stale []hil.Task, bookingID uuid.UUID, reviews []reviewItem) (*uuid.UUID, error) {
	for _, t := range stale {
		if _, err := s.queue.Supersede(ctx, t.ID); err != nil && !errors.Is(err, hil.ErrAlreadyDecided) {
			return nil, err
		}
	}

	var first *uuid.UUID
	for _, item := range reviews {
		task, _, err := s.queue.Enqueue(ctx, hil.EnqueueRequest{BookingID: bookingID, Draft: item.draft, Blocking: item.blocking})
		if err != nil {
			return nil, err
		}
		if item.blocking && first == nil {
			id := task.ID
			first = &id
		}
	}
	return first, nil
}

// releaseHeld makes a saved record stop waiting on drafts that never reached
// the queue. An offer without a task goes back to draft so the next turn
// builds it again.
func (s *Service) releaseHeld(ctx context.Context, rec *domain.Record, token repository.LockToken) {
	ctx = context.WithoutCancel(ctx)
	pending, err := s.queue.ListPending(ctx, &rec.ID)
	if err != nil {
		s.log.Warn("pending review tasks unavailable", "bookingId", rec.ID.String(), "error", err)
		pending = nil
	}

	if rec.Offer != nil && rec.Offer.Status == domain.OfferPendingReview && !slices.ContainsFunc(pending, func(t hil.Task) bool {
		return t.Type == steps.KindOffer && offerUnderReview(rec, t)
	}) {
		rec.Offer.Status = domain.OfferDraft
	}
	rec.ThreadState = threadState(rec, blockingLeft(pending, nil))

	if err := s.store.Save(ctx, rec, token); err != nil {
		s.log.DatabaseError("release held drafts", err)
	}
}

// staleTasks lists the pending tasks the record no longer backs: offers other
// than the one under review, and held drafts replaced by a new draft of the
// same kind at the same step.
func staleTasks(rec *domain.Record, pending []hil.Task, reviews []reviewItem) []hil.Task {
	var out []hil.Task
	for _, t := range pending {
		if t.Type == steps.KindOffer && !offerUnderReview(rec, t) {
			out = append(out, t)
			continue
		}
		if !t.Blocking {
			continue
		}
		for _, r := range reviews {
			if !r.blocking || r.draft.Step != t.Step || r.draft.Kind != t.Type {
				continue
			}
			if domain.ReviewSignature(rec.ID, r.draft.Step, domain.ContentHash(r.draft.Text)) != t.Signature {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func blockingLeft(pending, stale []hil.Task) bool {
	for _, t := range pending {
		if t.Blocking && !slices.ContainsFunc(stale, func(s hil.Task) bool { return s.ID == t.ID }) {
			return true
		}
	}
	return false
}

func threadState(rec *domain.Record, waiting bool) domain.ThreadState {
	switch {
	case waiting:
		return domain.ThreadWaitingOnReview
	case rec.Confirmed:
		return domain.ThreadIdle
	default:
		return domain.ThreadAwaitingClient
	}
}

// publishReply announces the joined drafts for delivery and returns the text.
func (s *Service) publishReply(ctx context.Context, rec *domain.Record, drafts []domain.Draft, source string, taskID *uuid.UUID, language string) string {
	text := joinTexts(drafts)
	if text == "" {
		return ""
	}
	last := drafts[len(drafts)-1]
	if s.bus != nil {
		s.bus.Publish(ctx, events.ReplyReady{
			BaseEvent: events.NewBaseEvent(),
			BookingID: rec.ID,
			Step:      int(last.Step),
			Kind:      last.Kind,
			Text:      text,
			Source:    source,
			TaskID:    taskID,
			Recipient: rec.Contact.Email,
			Language:  language,
		})
	}
	return text
}
