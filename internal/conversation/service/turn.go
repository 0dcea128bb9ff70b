package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/pipeline"
	"venue_booking_backend/internal/conversation/repository"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/internal/nlu"
	"venue_booking_backend/platform/apperr"
	"venue_booking_backend/platform/sanitize"
)

// Draft kinds produced by the service itself.
const (
	KindPlaceholder = "placeholder"
	KindEscalation  = pipeline.KindEscalation
)

// ProcessMessage runs one inbound client message against the booking. A
// booking that does not exist yet is created at intake.
func (s *Service) ProcessMessage(ctx context.Context, bookingID uuid.UUID, message string) (TurnResult, error) {
	ctx, span := tracer.Start(ctx, "process turn", trace.WithAttributes(attribute.String("booking.id", bookingID.String())))
	defer span.End()

	message = sanitize.Message(message)
	if message == "" {
		return TurnResult{}, apperr.Validation("message is required")
	}

	release, err := s.acquire(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, err
	}
	defer release()

	rec, token, err := s.store.LoadForUpdate(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		rec = domain.NewRecord(bookingID, s.now().UTC())
	} else if err != nil {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("load booking: %w", err)
	}

	now := s.now().UTC()
	from := rec.CurrentStep
	turn := domain.NewTurn(bookingID, message, now)
	turn.Signals = s.detector.Detect(ctx, message, s.hints(rec, turn))

	out := s.pipeline.Run(ctx, rec, turn)
	result := TurnResult{BookingID: bookingID, Stage: out.Stage}

	if out.Halt && (out.Stage == pipeline.StageOutOfContext || out.Stage == pipeline.StageDuplicate) {
		// Ignored and repeated messages leave the booking untouched.
		if out.Reply != nil {
			result.Reply = s.publishReply(ctx, rec, []domain.Draft{*out.Reply}, events.ReplySourceTurn, nil, turn.Signals.Language)
		}
		result.Step = rec.CurrentStep
		result.ThreadState = rec.ThreadState
		s.log.TurnCompleted(bookingID.String(), int(rec.CurrentStep), out.Stage, false, 0)
		return result, nil
	}

	var (
		drafts     []domain.Draft
		reviews    []reviewItem
		iterations int
	)
	if out.Halt {
		if out.Reply != nil {
			drafts = append(drafts, *out.Reply)
		}
		if out.Stage == pipeline.StageEscalation {
			reviews = append(reviews, reviewItem{draft: domain.Draft{
				Step:    rec.CurrentStep,
				Kind:    KindEscalation,
				Text:    "The client asked to speak to a person:\n\n" + message,
				Summary: map[string]any{"message": message},
			}})
		}
	} else {
		snapshot := rec.Clone()
		res, err := s.router.Run(ctx, rec, turn)
		iterations = res.Iterations
		if err != nil {
			// A failed cascade leaves nothing half-applied.
			*rec = *snapshot
			span.RecordError(err)
			s.log.Error("routing failed", "bookingId", bookingID.String(), "step", int(rec.CurrentStep), "error", err)
		}
		drafts = res.Drafts
	}

	if len(drafts) == 0 {
		drafts = []domain.Draft{s.placeholder(rec.CurrentStep)}
		result.SafetyNet = true
		s.log.Warn("no reply drafted, sending placeholder", "bookingId", bookingID.String(), "step", int(rec.CurrentStep))
	}
	appendNotes(drafts, turn.Notes)

	rec.LastClientMessage = message
	rec.TurnCount++
	rec.UpdatedAt = now

	ob := s.sort(rec, drafts)
	ob.review = append(ob.review, reviews...)

	taskID, err := s.persist(ctx, rec, token, ob.review)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TurnResult{}, err
	}

	result.PendingApproval = ob.blocking() && taskID != nil
	if ob.blocking() && taskID == nil && len(ob.send) == 0 {
		// The held drafts were released; the client still hears back.
		ob.send = []domain.Draft{s.placeholder(rec.CurrentStep)}
		result.SafetyNet = true
	}
	result.Reply = s.publishReply(ctx, rec, ob.send, events.ReplySourceTurn, nil, turn.Signals.Language)
	result.TaskID = taskID
	result.Step = rec.CurrentStep
	result.ThreadState = rec.ThreadState

	if s.bus != nil {
		s.bus.Publish(ctx, events.TurnProcessed{
			BaseEvent:       events.NewBaseEvent(),
			BookingID:       bookingID,
			FromStep:        int(from),
			ToStep:          int(rec.CurrentStep),
			ThreadState:     string(rec.ThreadState),
			PendingApproval: result.PendingApproval,
			SafetyNet:       result.SafetyNet,
		})
	}

	span.SetAttributes(
		attribute.Int("booking.step", int(rec.CurrentStep)),
		attribute.Bool("turn.pending_approval", result.PendingApproval),
		attribute.Bool("turn.safety_net", result.SafetyNet),
	)
	s.log.TurnCompleted(bookingID.String(), int(rec.CurrentStep), turnOutcome(out, result), result.PendingApproval, iterations)
	return result, nil
}

func (s *Service) hints(rec *domain.Record, turn *domain.TurnContext) nlu.Hints {
	h := nlu.Hints{CurrentStep: rec.CurrentStep, Now: turn.ReceivedAt}
	if rec.Choice != nil && !rec.Choice.Expired(turn.ReceivedAt) {
		h.ChoiceKind = rec.Choice.Kind
	}
	return h
}

func (s *Service) placeholder(step domain.Step) domain.Draft {
	return domain.Draft{Step: step, Kind: KindPlaceholder, Text: s.policy.Placeholder(step)}
}

// appendNotes adds the turn's notes to the last draft.
func appendNotes(drafts []domain.Draft, notes []string) {
	if len(drafts) == 0 || len(notes) == 0 {
		return
	}
	last := &drafts[len(drafts)-1]
	last.Text = strings.TrimSpace(last.Text) + "\n\n" + strings.Join(notes, " ")
}

func turnOutcome(out pipeline.Outcome, res TurnResult) string {
	switch {
	case out.Halt:
		return out.Stage
	case res.SafetyNet:
		return "safety_net"
	case res.PendingApproval:
		return "pending_review"
	default:
		return "reply"
	}
}
