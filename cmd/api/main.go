package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"venue_booking_backend/internal/conversation"
	"venue_booking_backend/internal/conversation/lock"
	"venue_booking_backend/internal/conversation/policy"
	"venue_booking_backend/internal/conversation/repository"
	"venue_booking_backend/internal/conversation/service"
	"venue_booking_backend/internal/delivery"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/internal/hil"
	hilrepo "venue_booking_backend/internal/hil/repository"
	"venue_booking_backend/internal/hil/review"
	apphttp "venue_booking_backend/internal/http"
	"venue_booking_backend/internal/http/router"
	"venue_booking_backend/internal/nlu"
	"venue_booking_backend/platform/ai/moonshot"
	"venue_booking_backend/platform/config"
	"venue_booking_backend/platform/db"
	"venue_booking_backend/platform/logger"
	"venue_booking_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	pol, err := policy.Load(cfg.GetPolicyFile())
	if err != nil {
		panic("failed to load policy: " + err.Error())
	}

	pool := initDatabase(ctx, cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	var (
		bookings repository.Store
		tasks    hil.Store
	)
	if pool != nil {
		bookings = repository.NewPostgres(pool)
		tasks = hilrepo.NewPostgres(pool)
	} else {
		log.Warn("DATABASE_URL not configured; bookings are kept in memory")
		bookings = repository.NewMemory()
		tasks = hilrepo.NewMemory()
	}

	locker, closeLocker := initLocker(cfg, log)
	if closeLocker != nil {
		defer closeLocker()
	}

	detector, err := initDetector(cfg, log)
	if err != nil {
		panic("failed to initialize NLU provider: " + err.Error())
	}

	eventBus := events.NewInMemoryBus(log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	queue := hil.NewQueue(tasks, eventBus, log)
	svc, err := service.New(service.Deps{
		Store:          bookings,
		Locker:         locker,
		Detector:       detector,
		Queue:          queue,
		Policy:         pol,
		Bus:            eventBus,
		Log:            log,
		ChoiceTTL:      cfg.GetChoiceTTL(),
		LateStepReview: cfg.GetHILLateStepReview(),
	})
	if err != nil {
		panic("failed to initialize conversation service: " + err.Error())
	}

	sender := delivery.NewSender(cfg, log)
	deliveryQueue, closeQueue := initDeliveryQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}
	delivery.NewDispatcher(deliveryQueue, sender, log).Subscribe(eventBus)

	val := validator.New()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Modules: []apphttp.Module{
			conversation.NewModule(svc, val),
			review.NewModule(svc, val),
		},
	}
	if pool != nil {
		app.Health = pool
	}

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.DeliveryInProcess && deliveryQueue != nil {
		worker, err := delivery.NewWorker(cfg, sender, log)
		if err != nil {
			panic("failed to initialize delivery worker: " + err.Error())
		}
		g.Go(func() error { return worker.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	eventBus.Wait()
}

// initDatabase connects and migrates when DATABASE_URL is set. It returns nil
// otherwise.
func initDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) *pgxpool.Pool {
	if cfg.GetDatabaseURL() == "" {
		return nil
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		pool.Close()
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")
	return pool
}

func initLocker(cfg *config.Config, log *logger.Logger) (lock.Locker, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; booking lock is process-local")
		return lock.NewLocal(), nil
	}

	client, err := lock.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis lock client", "error", err)
		panic("failed to initialize redis lock client: " + err.Error())
	}
	return lock.NewRedis(client, cfg.GetLockTTL(), log), func() {
		_ = client.Close()
	}
}

func initDetector(cfg *config.Config, log *logger.Logger) (*nlu.Resilient, error) {
	var provider nlu.Provider = nlu.NewRules()
	if cfg.GetNLUProvider() == "llm" {
		llm, err := nlu.NewLLM(moonshot.NewModel(moonshot.Config{
			APIKey:          cfg.GetMoonshotAPIKey(),
			Model:           cfg.GetNLUModel(),
			DisableThinking: true,
		}))
		if err != nil {
			return nil, err
		}
		provider = llm
		log.Info("NLU provider initialized", "provider", "llm", "model", cfg.GetNLUModel())
	}
	return nlu.NewResilient(provider, cfg.GetNLUTimeout(), log), nil
}

// initDeliveryQueue returns a nil Enqueuer without Redis so replies are sent
// inline by the dispatcher.
func initDeliveryQueue(cfg *config.Config, log *logger.Logger) (delivery.Enqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; replies are delivered inline")
		return nil, nil
	}

	client, err := delivery.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize delivery queue client", "error", err)
		return nil, nil
	}
	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
