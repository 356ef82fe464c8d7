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

	"mantaqc_backend/internal/adapters/storage"
	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/internal/alerts/bitrix"
	"mantaqc_backend/internal/analytics"
	analyticshandler "mantaqc_backend/internal/analytics/handler"
	"mantaqc_backend/internal/checklists"
	checklisthandler "mantaqc_backend/internal/checklists/handler"
	checklistrepo "mantaqc_backend/internal/checklists/repository"
	apphttp "mantaqc_backend/internal/http"
	"mantaqc_backend/internal/http/router"
	"mantaqc_backend/internal/notifier"
	"mantaqc_backend/internal/reports"
	reporthandler "mantaqc_backend/internal/reports/handler"
	"mantaqc_backend/internal/schedules"
	schedulehandler "mantaqc_backend/internal/schedules/handler"
	"mantaqc_backend/migrations"
	"mantaqc_backend/platform/config"
	"mantaqc_backend/platform/db"
	"mantaqc_backend/platform/events"
	"mantaqc_backend/platform/logger"
	"mantaqc_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.Files, ".")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Object storage for report artifacts (MinIO)
	artifacts, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize artifact store", "error", err)
		panic("failed to initialize artifact store: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure report bucket", 5, 2*time.Second, func() error {
		return artifacts.EnsureBucketExists(ctx)
	}); err != nil {
		log.Error("failed to ensure report bucket exists", "error", err)
		panic("failed to ensure report bucket exists: " + err.Error())
	}
	log.Info("artifact store initialized", "bucket", cfg.GetMinioBucketReports())

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	checkRepo := checklistrepo.New(pool)
	checklistSvc := checklists.NewService(checkRepo, eventBus, log)

	analyticsRepo := analytics.NewRepository(pool)
	analyticsSvc := analytics.NewService(analyticsRepo, log)

	sink := newTicketSink(cfg, pool, log)
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

	scheduleRepo := schedules.NewRepository(pool)

	// Webhook fan-out subscribes to domain events (not HTTP-facing)
	webhooks := notifier.New(cfg, log)
	webhooks.RegisterHandlers(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Modules: []apphttp.Module{
			checklisthandler.New(checklistSvc, pipeline),
			reporthandler.New(pipeline, reportRepo, artifacts),
			analyticshandler.New(analyticsSvc),
			schedulehandler.New(scheduleRepo, val),
		},
	}

	engine := router.New(app)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// newTicketSink selects the ticketing integration by configuration. The stub
// records would-be tickets in the call log without leaving the process.
func newTicketSink(cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) alerts.TicketSink {
	callLog := bitrix.NewCallLog(pool)
	if cfg.GetTicketSinkMode() == "live" {
		log.Info("ticket sink initialized", "mode", "live", "base_url", cfg.GetTicketSinkBaseURL())
		return bitrix.NewClient(cfg, callLog, log)
	}
	log.Info("ticket sink initialized", "mode", "stub")
	return bitrix.NewStub(callLog, log)
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
