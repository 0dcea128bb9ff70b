package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"venue_booking_backend/internal/delivery"
	"venue_booking_backend/platform/config"
	"venue_booking_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting delivery worker", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := delivery.NewWorker(cfg, delivery.NewSender(cfg, log), log)
	if err != nil {
		log.Error("failed to initialize delivery worker", "error", err)
		panic("failed to initialize delivery worker: " + err.Error())
	}

	if err := worker.Run(ctx); err != nil {
		log.Error("delivery worker failed", "error", err)
		os.Exit(1)
	}
}
