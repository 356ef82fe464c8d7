package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mantaqc_backend/internal/adapters/storage"
	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/internal/alerts/bitrix"
	"mantaqc_backend/internal/analytics"
	checklistrepo "mantaqc_backend/internal/checklists/repository"
	"mantaqc_backend/internal/notifier"
	"mantaqc_backend/internal/reports"
	"mantaqc_backend/internal/scheduler"
	"mantaqc_backend/platform/config"
	"mantaqc_backend/platform/db"
	"mantaqc_backend/platform/events"
	"mantaqc_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	webhooks := notifier.New(cfg, log)
	webhooks.RegisterHandlers(eventBus)

	artifacts, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize artifact store", "error", err)
		panic("failed to initialize artifact store: " + err.Error())
	}

	checkRepo := checklistrepo.New(pool)
	analyticsSvc := analytics.NewService(analytics.NewRepository(pool), log)

	callLog := bitrix.NewCallLog(pool)
	var sink alerts.TicketSink
	if cfg.GetTicketSinkMode() == "live" {
		sink = bitrix.NewClient(cfg, callLog, log)
	} else {
		sink = bitrix.NewStub(callLog, log)
	}
	dispatcher := alerts.NewProcessor(sink, alerts.DefaultRetryPolicy(),
		alerts.ParseSeverity(cfg.GetAlertSeverityFloor()), cfg.GetAppBaseURL(), log)

	reportRepo := reports.NewRepository(pool)
	pipeline := reports.NewPipeline(reports.PipelineOptions{
		Store:         reportRepo,
		Checks:        checkRepo,
		Scores:        analyticsSvc,
		Dispatcher:    dispatcher,
		Artifacts:     artifacts,
		Bus:           eventBus,
		Logger:        log,
		LowScoreFloor: cfg.GetLowScoreThreshold(),
	})

	spawner, err := scheduler.NewSpawnDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize spawn dispatcher", "error", err)
		panic("failed to initialize spawn dispatcher: " + err.Error())
	}
	defer func() { _ = spawner.Close() }()
	go spawner.Run(ctx)

	enqueuer, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		panic("failed to initialize task client: " + err.Error())
	}
	defer func() { _ = enqueuer.Close() }()
	go scheduler.NewRetrySweeper(enqueuer, reportRepo, log).Run(ctx)

	worker, err := scheduler.NewWorker(cfg, pool, pipeline, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("scheduler stopped")
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
