package scheduler

import (
	"context"
	"time"

	"mantaqc_backend/internal/reports"
	"mantaqc_backend/platform/logger"
)

const (
	sweepInterval = 5 * time.Minute
	stuckAfter    = 10 * time.Minute
)

// RetrySweeper re-enqueues report runs that were interrupted mid-generation,
// typically by a worker crash. A report counts as stuck once it has sat in
// the generating state past the cutoff; the rerun overwrites the same row.
type RetrySweeper struct {
	enqueuer ReportEnqueuer
	repo     *reports.Repository
	log      *logger.Logger
}

func NewRetrySweeper(enqueuer ReportEnqueuer, repo *reports.Repository, log *logger.Logger) *RetrySweeper {
	return &RetrySweeper{enqueuer: enqueuer, repo: repo, log: log}
}

func (s *RetrySweeper) Run(ctx context.Context) {
	if s == nil || s.enqueuer == nil || s.repo == nil {
		return
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().Add(-stuckAfter)
		stuck, err := s.repo.ListStuckGenerating(ctx, cutoff)
		if err != nil {
			s.log.Warn("stuck report scan failed", "error", err)
			continue
		}

		for _, rep := range stuck {
			payload := ReportGeneratePayload{
				CheckID:     rep.CheckInstanceID.String(),
				ReportID:    rep.ID.String(),
				TriggeredBy: "retry",
			}
			if err := s.enqueuer.EnqueueReportGeneration(ctx, payload); err != nil {
				s.log.Warn("stuck report re-enqueue failed", "report_id", rep.ID.String(), "error", err)
				continue
			}
			s.log.Info("stuck report re-enqueued", "report_id", rep.ID.String(), "check_id", rep.CheckInstanceID.String())
		}
	}
}
