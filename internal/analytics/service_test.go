package analytics

import (
	"context"
	"testing"
	"time"

	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
)

func testLogger() *logger.Logger {
	return logger.New("development")
}

func TestMergeContribution_ReplacesSameCheck(t *testing.T) {
	checkA := uuid.New()
	checkB := uuid.New()

	details := mergeContribution(ScoreDetails{}, checkA, 80)
	details = mergeContribution(details, checkB, 60)
	if details.Count != 2 || details.Total != 140 {
		t.Fatalf("unexpected details after two checks: %+v", details)
	}
	if details.Average() != 70 {
		t.Fatalf("expected average 70, got %v", details.Average())
	}

	// Re-scoring checkA replaces its contribution; count stays the same.
	details = mergeContribution(details, checkA, 100)
	if details.Count != 2 {
		t.Fatalf("expected count 2 after re-score, got %d", details.Count)
	}
	if details.Total != 160 {
		t.Fatalf("expected total 160 after re-score, got %v", details.Total)
	}
	if details.Average() != 80 {
		t.Fatalf("expected average 80, got %v", details.Average())
	}
}

func TestMergeContribution_InvariantScoreEqualsTotalOverCount(t *testing.T) {
	var details ScoreDetails
	for i := 0; i < 10; i++ {
		details = mergeContribution(details, uuid.New(), float64(i*10))
	}
	var sum float64
	for _, c := range details.Checks {
		sum += c.Score
	}
	if details.Total != sum || details.Count != len(details.Checks) {
		t.Fatalf("details invariant broken: %+v", details)
	}
}

// fakeStore implements Store for summary computations.
type fakeStore struct {
	reportCount int
	remarkCount int
	averages    map[string]*float64 // keyed by "start|end"
	scores      []DailyScore

	avgCalls [][2]time.Time
}

func (f *fakeStore) UpsertDailyScore(_ context.Context, brigadeID uuid.UUID, day time.Time, checkID uuid.UUID, score float64) (DailyScore, error) {
	return DailyScore{BrigadeID: brigadeID, ScoreDate: day, Score: score}, nil
}

func (f *fakeStore) CountReadyReports(context.Context, time.Time, time.Time, *uuid.UUID) (int, error) {
	return f.reportCount, nil
}

func (f *fakeStore) AverageDailyScore(_ context.Context, start, end time.Time, _ Filters) (*float64, error) {
	f.avgCalls = append(f.avgCalls, [2]time.Time{start, end})
	if avg, ok := f.averages[start.Format("2006-01-02")+"|"+end.Format("2006-01-02")]; ok {
		return avg, nil
	}
	return nil, nil
}

func (f *fakeStore) ListBrigadeScores(context.Context, uuid.UUID, time.Time, time.Time) ([]DailyScore, error) {
	return f.scores, nil
}

func (f *fakeStore) CountRemarksInRange(context.Context, time.Time, time.Time, Filters) (int, error) {
	return f.remarkCount, nil
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d.UTC()
}

func ptr(v float64) *float64 { return &v }

func TestComputePeriodSummary_DeltaAgainstPrecedingPeriod(t *testing.T) {
	store := &fakeStore{
		reportCount: 4,
		remarkCount: 2,
		averages: map[string]*float64{
			"2026-08-08|2026-08-14": ptr(85.5),
			"2026-08-01|2026-08-07": ptr(80.0),
		},
	}
	svc := NewService(store, testLogger())

	summary, err := svc.ComputePeriodSummary(context.Background(), GranularityWeek, day("2026-08-08"), day("2026-08-14"), Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.ReportCount != 4 || summary.RemarkCount != 2 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.AvgScore == nil || *summary.AvgScore != 85.5 {
		t.Fatalf("unexpected avg: %v", summary.AvgScore)
	}
	delta, ok := summary.DeltaMetrics["score_delta"]
	if !ok {
		t.Fatal("expected score_delta to be present")
	}
	if delta != 5.5 {
		t.Fatalf("expected delta 5.5, got %v", delta)
	}
}

func TestComputePeriodSummary_OmitsDeltaWithoutBaseline(t *testing.T) {
	store := &fakeStore{
		averages: map[string]*float64{
			"2026-08-08|2026-08-14": ptr(85.5),
			// no preceding-period average
		},
	}
	svc := NewService(store, testLogger())

	summary, err := svc.ComputePeriodSummary(context.Background(), GranularityWeek, day("2026-08-08"), day("2026-08-14"), Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := summary.DeltaMetrics["score_delta"]; ok {
		t.Fatal("delta must be omitted when the baseline average is missing")
	}
}

func TestComputePeriodSummary_PrecedingWindowHasIdenticalLength(t *testing.T) {
	store := &fakeStore{averages: map[string]*float64{}}
	svc := NewService(store, testLogger())

	_, err := svc.ComputePeriodSummary(context.Background(), GranularityMonth, day("2026-08-01"), day("2026-08-31"), Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.avgCalls) != 2 {
		t.Fatalf("expected 2 average queries, got %d", len(store.avgCalls))
	}
	prev := store.avgCalls[1]
	if got := prev[0].Format("2006-01-02"); got != "2026-07-01" {
		t.Fatalf("expected preceding start 2026-07-01, got %s", got)
	}
	if got := prev[1].Format("2006-01-02"); got != "2026-07-31" {
		t.Fatalf("expected preceding end 2026-07-31, got %s", got)
	}
}

func TestComputePeriodSummary_BrigadeFilterFetchesScores(t *testing.T) {
	brigadeID := uuid.New()
	store := &fakeStore{
		averages: map[string]*float64{},
		scores: []DailyScore{
			{BrigadeID: brigadeID, ScoreDate: day("2026-08-08"), Score: 90},
		},
	}
	svc := NewService(store, testLogger())

	summary, err := svc.ComputePeriodSummary(context.Background(), GranularityDay, day("2026-08-08"), day("2026-08-08"), Filters{BrigadeID: &brigadeID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.BrigadeScores) != 1 || summary.BrigadeScores[0].Score != 90 {
		t.Fatalf("unexpected brigade scores: %+v", summary.BrigadeScores)
	}
}
