package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/lock"
	"venue_booking_backend/internal/conversation/policy"
	"venue_booking_backend/internal/conversation/repository"
	"venue_booking_backend/internal/conversation/router"
	"venue_booking_backend/internal/conversation/steps"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/internal/hil"
	hilrepo "venue_booking_backend/internal/hil/repository"
	"venue_booking_backend/internal/nlu"
	"venue_booking_backend/platform/logger"
)

var now = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc     *Service
	store   repository.Store
	queue   *hil.Queue
	bus     *events.InMemoryBus
	mu      sync.Mutex
	replies []events.ReplyReady
}

type option func(*Deps)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	log := logger.Discard()
	h := &harness{
		store: repository.NewMemory(),
		bus:   events.NewInMemoryBus(log),
	}
	h.queue = hil.NewQueue(hilrepo.NewMemory(), h.bus, log)
	h.bus.Subscribe(events.ReplyReady{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.replies = append(h.replies, e.(events.ReplyReady))
		return nil
	}))

	deps := Deps{
		Store:    h.store,
		Locker:   lock.NewLocal(),
		Detector: nlu.NewResilient(nlu.NewRules(), time.Second, log),
		Queue:    h.queue,
		Policy:   policy.Default(),
		Bus:      h.bus,
		Log:      log,
		Now:      func() time.Time { return now },
	}
	for _, o := range opts {
		o(&deps)
	}
	svc, err := New(deps)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) sent() []events.ReplyReady {
	h.bus.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.ReplyReady(nil), h.replies...)
}

func (h *harness) record(t *testing.T, id uuid.UUID) *domain.Record {
	t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (h *harness) send(t *testing.T, id uuid.UUID, msg string) TurnResult {
	t.Helper()
	res, err := h.svc.ProcessMessage(context.Background(), id, msg)
	require.NoError(t, err)
	return res
}

func (h *harness) approve(t *testing.T, taskID *uuid.UUID) ContinuationResult {
	t.Helper()
	require.NotNil(t, taskID)
	res, err := h.svc.ApproveTask(context.Background(), *taskID, nil, "reviewer")
	require.NoError(t, err)
	return res
}

func TestProcessMessage_MultiSignalIntakeReachesOffer(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	res := h.send(t, id, "Room B for 25 people on May 7, 2026")

	assert.Equal(t, domain.StepOffer, res.Step)
	assert.True(t, res.PendingApproval)
	assert.Empty(t, res.Reply, "no intermediate prompt may reach the client")
	assert.Equal(t, domain.ThreadWaitingOnReview, res.ThreadState)
	assert.Empty(t, h.sent())

	rec := h.record(t, id)
	assert.Equal(t, "room-b", rec.LockedRoomID)
	require.NotNil(t, rec.Offer)
	assert.Equal(t, domain.OfferPendingReview, rec.Offer.Status)

	tasks, err := h.svc.ListPendingTasks(context.Background(), &id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, steps.KindOffer, tasks[0].Type)
	assert.Contains(t, tasks[0].Text, "07.05.2026")
}

func TestApproveTask_SendsOfferAndAcceptanceOpensBilling(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	first := h.send(t, id, "Room B for 25 people on May 7, 2026. You can reach me at jane@example.com")

	approved := h.approve(t, first.TaskID)
	assert.Contains(t, approved.Reply, "Here is your offer")
	assert.Equal(t, domain.ThreadAwaitingClient, approved.ThreadState)
	assert.Equal(t, domain.OfferSent, h.record(t, id).Offer.Status)

	replies := h.sent()
	require.Len(t, replies, 1)
	assert.Equal(t, events.ReplySourceApproval, replies[0].Source)
	assert.Equal(t, "jane@example.com", replies[0].Recipient)

	res := h.send(t, id, "We accept the offer")
	assert.Equal(t, domain.StepNegotiation, res.Step)
	assert.Contains(t, res.Reply, "billing details")
	assert.True(t, h.record(t, id).BillingCaptureActive())

	_, err := h.svc.ApproveTask(context.Background(), *first.TaskID, nil, "someone else")
	assert.True(t, errors.Is(err, hil.ErrAlreadyDecided))
}

func TestProcessMessage_DateChangeDuringBillingProducesNewOffer(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	first := h.send(t, id, "Room B for 25 people on May 7, 2026")
	h.approve(t, first.TaskID)
	h.send(t, id, "We accept the offer")
	before := h.record(t, id)
	require.True(t, before.BillingCaptureActive())

	res := h.send(t, id, "Actually, change the date to June 25, 2026")

	rec := h.record(t, id)
	assert.False(t, rec.BillingCaptureActive(), "billing capture must be cleared by the detour")
	assert.Equal(t, domain.StepOffer, res.Step)
	assert.True(t, res.PendingApproval)
	assert.Equal(t, "room-b", rec.LockedRoomID, "the room stays locked when it is still valid")
	assert.Equal(t, 2, rec.Offer.Version)
	assert.NotEqual(t, before.Offer.Hash, rec.Offer.Hash)

	tasks, err := h.svc.ListPendingTasks(context.Background(), &id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Contains(t, tasks[0].Text, "25.06.2026")

	h.approve(t, res.TaskID)
	again := h.send(t, id, "We accept the offer")
	assert.Equal(t, domain.StepNegotiation, again.Step)
	assert.Contains(t, again.Reply, "billing details")
}

// cycling moves every step to the next one and never halts.
type cycling struct{}

func (cycling) Handle(_ context.Context, rec *domain.Record, _ *domain.TurnContext) (router.Outcome, error) {
	next := rec.CurrentStep + 1
	if next > domain.LastRoutable {
		next = domain.FirstRoutable
	}
	return router.Advance(next, "cycle"), nil
}

func (cycling) Intercepts(*domain.Record, *domain.TurnContext) bool { return false }

func TestProcessMessage_RunawayHandlersGetPlaceholder(t *testing.T) {
	var c cycling
	handlers, err := router.NewHandlers(c, c, c, c, c, c, c)
	require.NoError(t, err)
	h := newHarness(t, func(d *Deps) { d.Handlers = &handlers })
	id := uuid.New()

	res := h.send(t, id, "Hello, we are planning a company event for 40 people")

	assert.True(t, res.SafetyNet)
	assert.Equal(t, domain.StepDate, res.Step, "the failed cascade is rolled back")
	assert.Equal(t, policy.Default().Placeholder(domain.StepDate), res.Reply)

	rec := h.record(t, id)
	assert.Equal(t, 40, rec.Requirements.Participants, "intake is kept")
	for _, e := range rec.Audit {
		assert.NotEqual(t, "cycle", e.Reason)
	}
}

// staleStore loses every write to a concurrent turn.
type staleStore struct {
	repository.Store
}

func (staleStore) Save(context.Context, *domain.Record, repository.LockToken) error {
	return repository.ErrStaleLock
}

func TestProcessMessage_StaleLockAbortsBeforeReply(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Store = staleStore{Store: repository.NewMemory()} })
	id := uuid.New()

	_, err := h.svc.ProcessMessage(context.Background(), id, "Room B for 25 people on May 7, 2026")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrStaleLock))

	tasks, err := h.queue.ListPending(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tasks, "no review task may exist for a discarded turn")
	assert.Empty(t, h.sent())
}

func TestProcessMessage_EscalationRecordsTaskAndReplies(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()

	res := h.send(t, id, "I want to speak to a manager please")
	assert.Equal(t, policy.Default().EscalationReply, res.Reply)
	assert.False(t, res.PendingApproval)

	tasks, err := h.svc.ListPendingTasks(context.Background(), &id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, KindEscalation, tasks[0].Type)
	assert.False(t, tasks[0].Blocking)

	// Acknowledging the escalation without an answer sends nothing more.
	approved, err := h.svc.ApproveTask(context.Background(), tasks[0].ID, nil, "manager")
	require.NoError(t, err)
	assert.Empty(t, approved.Reply)
	assert.Len(t, h.sent(), 1)
}

func TestRejectTask_KeepsStepAndOffersNotice(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	first := h.send(t, id, "Room B for 25 people on May 7, 2026")
	require.NotNil(t, first.TaskID)

	res, err := h.svc.RejectTask(context.Background(), *first.TaskID, "price is wrong", "reviewer", true)
	require.NoError(t, err)
	assert.Equal(t, domain.StepOffer, res.Step)
	assert.Equal(t, domain.ThreadAwaitingClient, res.ThreadState)
	assert.True(t, res.NoticeSent)
	assert.Equal(t, policy.Default().RejectionNotice, res.Notice)
	assert.Equal(t, domain.OfferDraft, h.record(t, id).Offer.Status)

	replies := h.sent()
	require.Len(t, replies, 1)
	assert.Equal(t, events.ReplySourceRejection, replies[0].Source)
}

// confirming seeds a booking at step 7 waiting for its deposit.
func confirming(t *testing.T, store repository.Store) uuid.UUID {
	t.Helper()
	pol := policy.Default()
	rec := domain.NewRecord(uuid.New(), now)
	rec.SetRequirements(domain.Requirements{Participants: 120})
	date := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)
	rec.Event = domain.EventDetails{RequestedDate: &date, ChosenDate: &date, DateConfirmed: true, DateConfirmedAt: &now}

	eval, ok := steps.NewRoomEvaluator(pol, func() time.Time { return now }).Evaluate(rec, "room-c", date)
	require.True(t, ok && eval.Available)
	rec.LockedRoomID = eval.RoomID
	rec.RoomEval = &eval
	rec.Offer = &domain.Offer{ID: uuid.New(), Status: domain.OfferAccepted, Hash: rec.CurrentOfferHash(), TotalCents: 180000, Version: 1}
	rec.Billing.Details = domain.BillingDetails{Company: "Acme AG", Street: "Bahnhofstrasse 1", PostalCode: "8001", City: "Zurich", Country: "CH"}
	rec.Deposit = domain.DepositState{Required: true, AmountCents: 54000, Requested: true}
	rec.CurrentStep = domain.StepConfirmation

	require.NoError(t, store.Save(context.Background(), rec, repository.LockToken{BookingID: rec.ID}))
	return rec.ID
}

func TestMarkDepositPaid_ContinuesToConfirmation(t *testing.T) {
	h := newHarness(t)
	id := confirming(t, h.store)

	res, err := h.svc.MarkDepositPaid(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Continued)
	assert.False(t, res.PendingApproval, "late-step drafts never block")
	assert.Contains(t, res.Reply, "delighted to confirm")
	assert.Equal(t, domain.ThreadIdle, res.ThreadState)

	rec := h.record(t, id)
	assert.True(t, rec.Confirmed)
	assert.True(t, rec.Deposit.Paid)
	assert.False(t, rec.Deposit.ContinuationDue)

	tasks, err := h.queue.ListPending(context.Background(), &id)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	replies := h.sent()
	require.Len(t, replies, 1)
	assert.Equal(t, events.ReplySourceContinuation, replies[0].Source)

	_, err = h.svc.MarkDepositPaid(context.Background(), id)
	assert.Error(t, err)
}

func TestMarkDepositPaid_LateStepReviewRecordsTask(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.LateStepReview = true })
	id := confirming(t, h.store)

	res, err := h.svc.MarkDepositPaid(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.Reply, "delighted to confirm"))
	assert.Nil(t, res.TaskID)

	tasks, err := h.queue.ListPending(context.Background(), &id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, steps.KindConfirmation, tasks[0].Type)
	assert.False(t, tasks[0].Blocking)
}

func TestProcessMessage_BusyBookingReturnsLocked(t *testing.T) {
	locker := lock.NewLocal()
	h := newHarness(t, func(d *Deps) { d.Locker = locker })
	id := uuid.New()

	release, err := locker.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.svc.ProcessMessage(ctx, id, "Hello")
	assert.True(t, errors.Is(err, ErrBusy))
}

func TestApproveTask_OfferReplacedByDateChangeIsNotSent(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	first := h.send(t, id, "Room B for 25 people on May 7, 2026")
	require.NotNil(t, first.TaskID)

	res := h.send(t, id, "Actually, change the date to May 8, 2026")
	assert.True(t, res.PendingApproval)
	require.NotNil(t, res.TaskID)
	assert.NotEqual(t, *first.TaskID, *res.TaskID)

	tasks, err := h.svc.ListPendingTasks(context.Background(), &id)
	require.NoError(t, err)
	require.Len(t, tasks, 1, "the earlier offer must leave the queue")
	assert.Contains(t, tasks[0].Text, "08.05.2026")

	_, err = h.svc.ApproveTask(context.Background(), *first.TaskID, nil, "reviewer")
	require.Error(t, err)
	assert.True(t, errors.Is(err, hil.ErrAlreadyDecided))
	var conflict *hil.DecisionConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, hil.StatusSuperseded, conflict.Status)
	assert.Empty(t, h.sent(), "the outdated offer must never reach the client")
	assert.Equal(t, domain.OfferPendingReview, h.record(t, id).Offer.Status)

	approved := h.approve(t, res.TaskID)
	assert.Contains(t, approved.Reply, "08.05.2026")
}

func TestApproveTask_OfferTaskWithoutMatchingOfferConflicts(t *testing.T) {
	h := newHarness(t)
	id := uuid.New()
	first := h.send(t, id, "Room B for 25 people on May 7, 2026")

	orphan, _, err := h.queue.Enqueue(context.Background(), hil.EnqueueRequest{
		BookingID: id,
		Draft: domain.Draft{Step: domain.StepOffer, Kind: steps.KindOffer, Text: "Here is your offer for another day",
			Summary: map[string]any{"offerId": uuid.New().String()}},
		Blocking: true,
	})
	require.NoError(t, err)

	_, err = h.svc.ApproveTask(context.Background(), orphan.ID, nil, "reviewer")
	var conflict *hil.DecisionConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, hil.StatusSuperseded, conflict.Status)
	assert.Empty(t, h.sent())

	tasks, err := h.svc.ListPendingTasks(context.Background(), &id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, *first.TaskID, tasks[0].ID)
	assert.Equal(t, domain.ThreadWaitingOnReview, h.record(t, id).ThreadState)
}

// flakyStore fails writes while down is set.
type flakyStore struct {
	repository.Store
	down atomic.Bool
}

func (f *flakyStore) Save(ctx context.Context, rec *domain.Record, token repository.LockToken) error {
	if f.down.Load() {
		return errors.New("connection reset by peer")
	}
	return f.Store.Save(ctx, rec, token)
}

func TestApproveTask_FailedSaveLeavesTaskPending(t *testing.T) {
	store := &flakyStore{Store: repository.NewMemory()}
	h := newHarness(t, func(d *Deps) { d.Store = store })
	h.store = store
	id := uuid.New()
	first := h.send(t, id, "Room B for 25 people on May 7, 2026. You can reach me at jane@example.com")
	require.NotNil(t, first.TaskID)

	store.down.Store(true)
	_, err := h.svc.ApproveTask(context.Background(), *first.TaskID, nil, "reviewer")
	require.Error(t, err)
	_, err = h.svc.RejectTask(context.Background(), *first.TaskID, "", "reviewer", true)
	require.Error(t, err)

	task, err := h.queue.Get(context.Background(), *first.TaskID)
	require.NoError(t, err)
	assert.Equal(t, hil.StatusPending, task.Status, "an unsaved decision must be undone")
	assert.Nil(t, task.DecidedAt)
	assert.Empty(t, h.sent())
	assert.Equal(t, domain.OfferPendingReview, h.record(t, id).Offer.Status)

	store.down.Store(false)
	approved := h.approve(t, first.TaskID)
	assert.Contains(t, approved.Reply, "Here is your offer")
	assert.Equal(t, domain.OfferSent, h.record(t, id).Offer.Status)
}

// refusingQueue stores nothing new.
type refusingQueue struct {
	hil.Store
}

func (refusingQueue) InsertPending(context.Context, hil.Task) (hil.Task, bool, error) {
	return hil.Task{}, false, errors.New("review store unavailable")
}

func TestProcessMessage_QueueFailureReleasesOffer(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Queue = hil.NewQueue(refusingQueue{Store: hilrepo.NewMemory()}, nil, logger.Discard())
	})
	id := uuid.New()

	res := h.send(t, id, "Room B for 25 people on May 7, 2026")
	assert.False(t, res.PendingApproval)
	assert.Nil(t, res.TaskID)
	assert.True(t, res.SafetyNet)
	assert.Equal(t, policy.Default().Placeholder(domain.StepOffer), res.Reply)
	assert.Equal(t, domain.ThreadAwaitingClient, res.ThreadState)

	rec := h.record(t, id)
	require.NotNil(t, rec.Offer)
	assert.Equal(t, domain.OfferDraft, rec.Offer.Status, "an offer nobody reviews must not wait for review")
	assert.Equal(t, domain.ThreadAwaitingClient, rec.ThreadState)
}
