package scheduler

import (
	"context"
	"fmt"

	"mantaqc_backend/internal/reports"
	"mantaqc_backend/internal/schedules"
	"mantaqc_backend/platform/config"
	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReportGenerator runs the report pipeline for a check.
type ReportGenerator interface {
	Generate(ctx context.Context, checkID uuid.UUID, author reports.Author, eventType reports.EventType, triggerAlerts bool) (reports.Report, error)
	Regenerate(ctx context.Context, reportID uuid.UUID, author reports.Author, triggerAlerts bool) (reports.Report, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	pipeline  ReportGenerator
	schedules *schedules.Repository
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, pipeline ReportGenerator, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		pipeline:  pipeline,
		schedules: schedules.NewRepository(pool),
		log:       log,
	}

	mux.HandleFunc(TaskReportGenerate, w.handleReportGenerate)
	mux.HandleFunc(TaskScheduleSpawn, w.handleScheduleSpawn)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleReportGenerate(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReportGeneratePayload(task)
	if err != nil {
		return err
	}

	triggeredBy := payload.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "scheduler"
	}

	if payload.ReportID != "" {
		reportID, err := uuid.Parse(payload.ReportID)
		if err != nil {
			return err
		}
		_, err = w.pipeline.Regenerate(ctx, reportID, reports.Author{Email: triggeredBy}, true)
		return err
	}

	checkID, err := uuid.Parse(payload.CheckID)
	if err != nil {
		return err
	}

	_, err = w.pipeline.Generate(ctx, checkID, reports.Author{Email: triggeredBy}, reports.EventScheduled, true)
	return err
}

func (w *Worker) handleScheduleSpawn(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseScheduleSpawnPayload(task)
	if err != nil {
		return err
	}

	scheduleID, err := uuid.Parse(payload.ScheduleID)
	if err != nil {
		return err
	}

	check, err := w.schedules.SpawnCheck(ctx, scheduleID, nil, nil)
	if err != nil {
		return err
	}

	w.log.Info("scheduled check spawned",
		"schedule_id", scheduleID.String(),
		"check_id", check.ID.String(),
	)
	return nil
}
