package hil_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/hil"
	"venue_booking_backend/internal/hil/repository"
	"venue_booking_backend/platform/apperr"
	"venue_booking_backend/platform/logger"
)

func newQueue() *hil.Queue {
	return hil.NewQueue(repository.NewMemory(), nil, logger.Discard())
}

func offerDraft(text string) domain.Draft {
	return domain.Draft{Step: domain.StepOffer, Kind: "offer", Text: text, RequiresApproval: true}
}

func TestEnqueue_IdenticalDraftYieldsOnePendingTask(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	booking := uuid.New()

	first, created, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("Offer v1: CHF 900.00"), Blocking: true})
	require.NoError(t, err)
	require.True(t, created)

	// Whitespace differences do not change the content hash.
	second, created, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("Offer v1:  CHF 900.00 "), Blocking: true})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	pending, err := q.ListPending(ctx, &booking)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEnqueue_ConcurrentDuplicatesStayIdempotent(t *testing.T) {
	q := newQueue()
	booking := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := q.Enqueue(context.Background(), hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("same"), Blocking: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pending, err := q.ListPending(context.Background(), &booking)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEnqueue_DifferentStepOrContentCreatesNewTask(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	booking := uuid.New()

	_, _, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("a")})
	require.NoError(t, err)
	_, created, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("b")})
	require.NoError(t, err)
	assert.True(t, created)

	counter := offerDraft("a")
	counter.Step = domain.StepNegotiation
	_, created, err = q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: counter})
	require.NoError(t, err)
	assert.True(t, created)

	all, err := q.ListPending(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestApprove_SecondDecisionConflicts(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	task, _, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: uuid.New(), Draft: offerDraft("Offer"), Blocking: true})
	require.NoError(t, err)

	edited := "Offer, with a note from the manager"
	approved, err := q.Approve(ctx, task.ID, &edited, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, hil.StatusApproved, approved.Status)
	assert.Equal(t, edited, approved.OutboundText())
	require.NotNil(t, approved.DecidedAt)

	_, err = q.Reject(ctx, task.ID, "too late", "reviewer-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, hil.ErrAlreadyDecided))
	assert.Equal(t, apperr.KindConflict, apperr.GetKind(err))

	var conflict *hil.DecisionConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, hil.StatusApproved, conflict.Status)

	stored, err := q.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, hil.StatusApproved, stored.Status, "a second decision must not overwrite the first")
}

func TestApprove_EmptyEditKeepsDraft(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	task, _, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: uuid.New(), Draft: offerDraft("Original")})
	require.NoError(t, err)

	empty := ""
	approved, err := q.Approve(ctx, task.ID, &empty, "")
	require.NoError(t, err)
	assert.Nil(t, approved.EditedText)
	assert.Equal(t, "Original", approved.OutboundText())
}

func TestDecide_UnknownTask(t *testing.T) {
	_, err := newQueue().Approve(context.Background(), uuid.New(), nil, "")
	assert.True(t, errors.Is(err, hil.ErrTaskNotFound))
}

func TestEnqueue_AfterDecisionCreatesNewTask(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	booking := uuid.New()

	task, _, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("Offer"), Blocking: true})
	require.NoError(t, err)
	_, err = q.Reject(ctx, task.ID, "wrong price", "")
	require.NoError(t, err)

	again, created, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("Offer"), Blocking: true})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, task.ID, again.ID)

	pending, err := q.ListPending(ctx, &booking)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Blocking)
}

func TestSupersede_OutdatedTaskCannotBeApproved(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	task, _, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: uuid.New(), Draft: offerDraft("Offer for 7 May"), Blocking: true})
	require.NoError(t, err)

	superseded, err := q.Supersede(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, hil.StatusSuperseded, superseded.Status)

	_, err = q.Approve(ctx, task.ID, nil, "reviewer")
	var conflict *hil.DecisionConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, hil.StatusSuperseded, conflict.Status)

	pending, err := q.ListPending(ctx, &task.BookingID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReopen_ClearsDecision(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	booking := uuid.New()
	task, _, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("Offer"), Blocking: true})
	require.NoError(t, err)

	edited := "Offer, edited"
	_, err = q.Approve(ctx, task.ID, &edited, "reviewer-1")
	require.NoError(t, err)

	reopened, err := q.Reopen(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, hil.StatusPending, reopened.Status)
	assert.Nil(t, reopened.EditedText)
	assert.Nil(t, reopened.DecidedAt)
	assert.Empty(t, reopened.Reviewer)

	approved, err := q.Approve(ctx, task.ID, nil, "reviewer-2")
	require.NoError(t, err)
	assert.Equal(t, "Offer", approved.OutboundText())
}

func TestReopen_RefusedWhileSameDraftIsPending(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	booking := uuid.New()
	task, _, err := q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("Offer"), Blocking: true})
	require.NoError(t, err)
	_, err = q.Reject(ctx, task.ID, "", "")
	require.NoError(t, err)
	_, _, err = q.Enqueue(ctx, hil.EnqueueRequest{BookingID: booking, Draft: offerDraft("Offer"), Blocking: true})
	require.NoError(t, err)

	_, err = q.Reopen(ctx, task.ID)
	require.Error(t, err)

	pending, err := q.ListPending(ctx, &booking)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
