package analytics

import (
	"context"
	"time"

	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
)

// Granularity names the period window size of a summary.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// PeriodSummary is a derived aggregate over a period. Summaries are
// cacheable and recomputable from underlying facts at any time; they are
// never a source of truth.
type PeriodSummary struct {
	Granularity   Granularity        `json:"granularity"`
	PeriodStart   time.Time          `json:"period_start"`
	PeriodEnd     time.Time          `json:"period_end"`
	ReportCount   int                `json:"report_count"`
	AvgScore      *float64           `json:"avg_score"`
	BrigadeScores []DailyScore       `json:"brigade_scores,omitempty"`
	RemarkCount   int                `json:"remark_count"`
	DeltaMetrics  map[string]float64 `json:"delta_metrics"`
}

// Store is the persistence surface the aggregation service needs.
type Store interface {
	UpsertDailyScore(ctx context.Context, brigadeID uuid.UUID, day time.Time, checkID uuid.UUID, score float64) (DailyScore, error)
	CountReadyReports(ctx context.Context, start, end time.Time, authorID *uuid.UUID) (int, error)
	AverageDailyScore(ctx context.Context, start, end time.Time, f Filters) (*float64, error)
	ListBrigadeScores(ctx context.Context, brigadeID uuid.UUID, start, end time.Time) ([]DailyScore, error)
	CountRemarksInRange(ctx context.Context, start, end time.Time, f Filters) (int, error)
}

// Service maintains daily score facts and computes period summaries.
type Service struct {
	store Store
	log   *logger.Logger
}

// NewService creates the aggregation service.
func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// UpsertBrigadeScore reconciles a completed check's score into the brigade's
// fact for the day. Idempotent per check id: re-scoring replaces the prior
// contribution instead of duplicating it.
func (s *Service) UpsertBrigadeScore(ctx context.Context, brigadeID uuid.UUID, day time.Time, checkID uuid.UUID, score float64) (DailyScore, error) {
	fact, err := s.store.UpsertDailyScore(ctx, brigadeID, day, checkID, score)
	if err != nil {
		return DailyScore{}, err
	}
	s.log.Debug("brigade daily score upserted",
		"brigade_id", brigadeID.String(),
		"score_date", fact.ScoreDate.Format("2006-01-02"),
		"score", fact.Score,
		"count", fact.Details.Count,
	)
	return fact, nil
}

// ComputePeriodSummary aggregates reports, daily scores, and remarks
// inside [start, end], and attaches a score delta against the immediately
// preceding period of identical length. The delta key is omitted entirely
// when either period's average is unavailable.
func (s *Service) ComputePeriodSummary(ctx context.Context, granularity Granularity, start, end time.Time, f Filters) (PeriodSummary, error) {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC().Truncate(24 * time.Hour)

	summary := PeriodSummary{
		Granularity:  granularity,
		PeriodStart:  start,
		PeriodEnd:    end,
		DeltaMetrics: map[string]float64{},
	}

	reportCount, err := s.store.CountReadyReports(ctx, start, end, f.AuthorID)
	if err != nil {
		return PeriodSummary{}, err
	}
	summary.ReportCount = reportCount

	avg, err := s.store.AverageDailyScore(ctx, start, end, f)
	if err != nil {
		return PeriodSummary{}, err
	}
	summary.AvgScore = avg

	if f.BrigadeID != nil {
		scores, err := s.store.ListBrigadeScores(ctx, *f.BrigadeID, start, end)
		if err != nil {
			return PeriodSummary{}, err
		}
		summary.BrigadeScores = scores
	}

	remarkCount, err := s.store.CountRemarksInRange(ctx, start, end, f)
	if err != nil {
		return PeriodSummary{}, err
	}
	summary.RemarkCount = remarkCount

	prevStart, prevEnd := precedingPeriod(start, end)
	prevAvg, err := s.store.AverageDailyScore(ctx, prevStart, prevEnd, f)
	if err != nil {
		return PeriodSummary{}, err
	}
	if avg != nil && prevAvg != nil {
		summary.DeltaMetrics["score_delta"] = *avg - *prevAvg
	}

	return summary, nil
}

// precedingPeriod returns the window of identical length ending the day
// before start.
func precedingPeriod(start, end time.Time) (time.Time, time.Time) {
	days := int(end.Sub(start).Hours()/24) + 1
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := start.AddDate(0, 0, -days)
	return prevStart, prevEnd
}
