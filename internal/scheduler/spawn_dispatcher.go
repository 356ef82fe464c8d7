package scheduler

import (
	"context"
	"fmt"
	"time"

	"mantaqc_backend/internal/schedules"
	"mantaqc_backend/platform/config"
	"mantaqc_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SpawnDispatcher polls for due schedules and enqueues spawn tasks. The
// schedule's next run advances when the task is enqueued, not when it runs,
// so a slow worker cannot cause duplicate enqueues.
type SpawnDispatcher struct {
	client *asynq.Client
	queue  string
	repo   *schedules.Repository
	log    *logger.Logger
}

func NewSpawnDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*SpawnDispatcher, error) {
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

	return &SpawnDispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
		repo:   schedules.NewRepository(pool),
		log:    log,
	}, nil
}

func (d *SpawnDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *SpawnDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		due, err := d.repo.ListDue(ctx, now)
		if err != nil {
			d.log.Warn("due schedule scan failed", "error", err)
			continue
		}

		for _, schedule := range due {
			task, err := NewScheduleSpawnTask(ScheduleSpawnPayload{ScheduleID: schedule.ID.String()})
			if err != nil {
				d.log.Warn("spawn task build failed", "schedule_id", schedule.ID.String(), "error", err)
				continue
			}

			if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue)); err != nil {
				d.log.Warn("spawn task enqueue failed", "schedule_id", schedule.ID.String(), "error", err)
				continue
			}

			if err := d.repo.MarkSpawned(ctx, schedule.ID, now); err != nil {
				d.log.Warn("schedule advance failed", "schedule_id", schedule.ID.String(), "error", err)
			}
		}
	}
}
