package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/lock"
	"venue_booking_backend/internal/conversation/repository"
	"venue_booking_backend/internal/conversation/steps"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/internal/hil"
	"venue_booking_backend/platform/apperr"
	"venue_booking_backend/platform/sanitize"
)

// ContinuationResult describes what a review decision or a payment callback
// set in motion.
type ContinuationResult struct {
	Task *hil.Task `json:"task,omitempty"`
	// Reply is the text sent to the client: the approved draft followed by
	// anything a continuation produced.
	Reply string `json:"reply,omitempty"`
	// Notice is the rejection notice the caller may send to the client.
	Notice          string             `json:"notice,omitempty"`
	NoticeSent      bool               `json:"noticeSent"`
	Continued       bool               `json:"continued"`
	PendingApproval bool               `json:"pendingApproval"`
	Step            domain.Step        `json:"step"`
	ThreadState     domain.ThreadState `json:"threadState"`
	TaskID          *uuid.UUID         `json:"taskId,omitempty"`
}

// ApproveTask approves a pending review task, sends its text (or the
// reviewer's edit) and, when the booking is due for an automatic next step,
// runs it without waiting for the client.
func (s *Service) ApproveTask(ctx context.Context, taskID uuid.UUID, editedText *string, reviewer string) (ContinuationResult, error) {
	ctx, span := tracer.Start(ctx, "approve task", trace.WithAttributes(attribute.String("task.id", taskID.String())))
	defer span.End()

	rec, token, release, err := s.loadForDecision(ctx, taskID)
	if err != nil {
		return ContinuationResult{}, err
	}
	defer release()

	task, err := s.queue.Approve(ctx, taskID, sanitize.TextPtr(editedText), reviewer)
	if err != nil {
		return ContinuationResult{}, err
	}

	now := s.now().UTC()
	applyApproval(rec, task)

	var approved []domain.Draft
	if task.Type != KindEscalation || task.EditedText != nil {
		approved = append(approved, domain.Draft{Step: task.Step, Kind: task.Type, Text: task.OutboundText()})
	}

	var ob outbound
	continued := false
	if continuationDue(rec) {
		ob = s.sort(rec, s.continueFlow(ctx, rec, now))
		continued = true
	}
	rec.UpdatedAt = now

	newTask, err := s.persist(ctx, rec, token, ob.review)
	if err != nil {
		s.undoDecision(ctx, task)
		return ContinuationResult{}, err
	}

	reply := s.publishReply(ctx, rec, approved, events.ReplySourceApproval, &task.ID, "")
	if more := s.publishReply(ctx, rec, ob.send, events.ReplySourceContinuation, nil, ""); more != "" {
		reply = joinTexts([]domain.Draft{{Text: reply}, {Text: more}})
	}

	return ContinuationResult{
		Task:            &task,
		Reply:           reply,
		Continued:       continued,
		PendingApproval: ob.blocking() && newTask != nil,
		Step:            rec.CurrentStep,
		ThreadState:     rec.ThreadState,
		TaskID:          newTask,
	}, nil
}

// RejectTask rejects a pending review task. The booking keeps its step. When
// notify is set the rejection notice is sent to the client; otherwise it is
// only returned.
func (s *Service) RejectTask(ctx context.Context, taskID uuid.UUID, notes, reviewer string, notify bool) (ContinuationResult, error) {
	ctx, span := tracer.Start(ctx, "reject task", trace.WithAttributes(attribute.String("task.id", taskID.String())))
	defer span.End()

	rec, token, release, err := s.loadForDecision(ctx, taskID)
	if err != nil {
		return ContinuationResult{}, err
	}
	defer release()

	task, err := s.queue.Reject(ctx, taskID, sanitize.Text(notes), reviewer)
	if err != nil {
		return ContinuationResult{}, err
	}

	applyRejection(rec, task)
	rec.UpdatedAt = s.now().UTC()
	if _, err := s.persist(ctx, rec, token, nil); err != nil {
		s.undoDecision(ctx, task)
		return ContinuationResult{}, err
	}

	res := ContinuationResult{
		Task:        &task,
		Notice:      s.policy.RejectionNotice,
		Step:        rec.CurrentStep,
		ThreadState: rec.ThreadState,
	}
	if notify && res.Notice != "" {
		s.publishReply(ctx, rec, []domain.Draft{{Step: task.Step, Kind: "rejection_notice", Text: res.Notice}},
			events.ReplySourceRejection, &task.ID, "")
		res.NoticeSent = true
	}
	return res, nil
}

// loadForDecision locks the task's booking and loads it. A pending task the
// booking no longer backs is superseded and reported as a conflict, so an
// outdated draft can never be sent.
func (s *Service) loadForDecision(ctx context.Context, taskID uuid.UUID) (*domain.Record, repository.LockToken, lock.Release, error) {
	task, err := s.queue.Get(ctx, taskID)
	if err != nil {
		return nil, repository.LockToken{}, nil, err
	}
	release, err := s.acquire(ctx, task.BookingID)
	if err != nil {
		return nil, repository.LockToken{}, nil, err
	}

	rec, token, err := s.store.LoadForUpdate(ctx, task.BookingID)
	if err != nil {
		release()
		return nil, repository.LockToken{}, nil, fmt.Errorf("load booking: %w", err)
	}
	// Decided while this call waited for the lock.
	if task, err = s.queue.Get(ctx, taskID); err != nil {
		release()
		return nil, repository.LockToken{}, nil, err
	}
	if task.Status != hil.StatusPending || taskBacked(rec, task) {
		return rec, token, release, nil
	}

	defer release()
	rec.UpdatedAt = s.now().UTC()
	if _, err := s.persist(ctx, rec, token, nil); err != nil {
		return nil, repository.LockToken{}, nil, err
	}
	s.log.Warn("outdated review task superseded", "taskId", taskID.String(), "bookingId", rec.ID.String(), "type", task.Type)
	at := s.now().UTC()
	return nil, repository.LockToken{}, nil, &hil.DecisionConflict{TaskID: taskID, Status: hil.StatusSuperseded, DecidedAt: &at}
}

// undoDecision reopens a task whose decision could not be saved with the
// booking, so the reviewer can decide it again.
func (s *Service) undoDecision(ctx context.Context, task hil.Task) {
	if _, err := s.queue.Reopen(context.WithoutCancel(ctx), task.ID); err != nil {
		s.log.Error("review decision kept without booking update", "taskId", task.ID.String(), "bookingId", task.BookingID.String(), "error", err)
	}
}

// MarkDepositPaid records the deposit payment. A booking waiting at the
// confirmation steps continues right away; otherwise the continuation runs
// after the next approval.
func (s *Service) MarkDepositPaid(ctx context.Context, bookingID uuid.UUID) (ContinuationResult, error) {
	ctx, span := tracer.Start(ctx, "deposit paid", trace.WithAttributes(attribute.String("booking.id", bookingID.String())))
	defer span.End()

	release, err := s.acquire(ctx, bookingID)
	if err != nil {
		return ContinuationResult{}, err
	}
	defer release()

	rec, token, err := s.store.LoadForUpdate(ctx, bookingID)
	if err != nil {
		return ContinuationResult{}, err
	}
	if !rec.Deposit.Required {
		return ContinuationResult{}, apperr.Validation("no deposit is required for this booking")
	}
	if rec.Deposit.Paid {
		return ContinuationResult{}, apperr.Conflict("deposit already recorded as paid")
	}

	now := s.now().UTC()
	rec.Deposit.Paid = true
	rec.Deposit.PaidAt = &now
	rec.Deposit.ContinuationDue = true

	var ob outbound
	continued := false
	if continuationDue(rec) {
		ob = s.sort(rec, s.continueFlow(ctx, rec, now))
		continued = true
	}
	rec.UpdatedAt = now

	taskID, err := s.persist(ctx, rec, token, ob.review)
	if err != nil {
		return ContinuationResult{}, err
	}
	s.log.Info("deposit marked paid", "bookingId", bookingID.String(), "continued", continued)

	return ContinuationResult{
		Reply:           s.publishReply(ctx, rec, ob.send, events.ReplySourceContinuation, nil, ""),
		Continued:       continued,
		PendingApproval: ob.blocking() && taskID != nil,
		Step:            rec.CurrentStep,
		ThreadState:     rec.ThreadState,
		TaskID:          taskID,
	}, nil
}

// continuationDue reports whether the router should run without a client
// message. Only the deposit follow-up at the closing steps qualifies.
func continuationDue(rec *domain.Record) bool {
	return rec.Deposit.ContinuationDue && rec.CurrentStep >= domain.StepTransition
}

// continueFlow runs the router for a turn without a message. A failed run
// is rolled back and yields no drafts.
func (s *Service) continueFlow(ctx context.Context, rec *domain.Record, now time.Time) []domain.Draft {
	turn := domain.NewTurn(rec.ID, "", now)
	turn.Flags.Continuation = true

	snapshot := rec.Clone()
	res, err := s.router.Run(ctx, rec, turn)
	if err != nil {
		*rec = *snapshot
		s.log.Error("continuation failed", "bookingId", rec.ID.String(), "step", int(rec.CurrentStep), "error", err)
		return nil
	}
	appendNotes(res.Drafts, turn.Notes)
	return res.Drafts
}

// applyApproval sends the offer a reviewer approved.
func applyApproval(rec *domain.Record, task hil.Task) {
	if task.Type == steps.KindOffer && offerUnderReview(rec, task) {
		rec.Offer.Status = domain.OfferSent
	}
}

// applyRejection returns a rejected offer to draft so the next turn builds a
// new one.
func applyRejection(rec *domain.Record, task hil.Task) {
	if task.Type == steps.KindOffer && offerUnderReview(rec, task) {
		rec.Offer.Status = domain.OfferDraft
	}
}

// taskBacked reports whether the booking still stands behind a pending task.
// Only offers can fall out from under their task without a new draft.
func taskBacked(rec *domain.Record, task hil.Task) bool {
	return task.Type != steps.KindOffer || offerUnderReview(rec, task)
}

// offerUnderReview reports whether task is the review of the booking's current
// offer: the same offer, still waiting for review and built from the inputs
// the booking holds now.
func offerUnderReview(rec *domain.Record, task hil.Task) bool {
	if rec.Offer == nil || rec.Offer.Status != domain.OfferPendingReview || rec.OfferStale() {
		return false
	}
	id, ok := task.Summary["offerId"].(string)
	return ok && id == rec.Offer.ID.String()
}
