package delivery

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"venue_booking_backend/platform/config"
	"venue_booking_backend/platform/logger"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sender Sender
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sender Sender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		sender: sender,
		log:    log,
	}
	mux.HandleFunc(TaskDeliverReply, w.handleDeliverReply)

	return w, nil
}

func (w *Worker) handleDeliverReply(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDeliverReplyPayload(task)
	if err != nil {
		// A payload that does not decode will never succeed.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.Recipient == "" {
		w.log.Warn("reply dropped: no recipient", "bookingId", payload.BookingID, "kind", payload.Kind)
		return nil
	}
	return w.sender.SendReply(ctx, payload)
}

// Run processes deliveries until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start delivery worker: %w", err)
	}
	w.log.Info("delivery worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("delivery worker stopped")
	return nil
}
