// Package analytics maintains per-brigade daily score facts and computes
// period summaries with period-over-period deltas.
package analytics

import (
	"time"

	"github.com/google/uuid"
)

// Contribution is one check's score inside a daily fact.
type Contribution struct {
	CheckID uuid.UUID `json:"check_id"`
	Score   float64   `json:"score"`
}

// ScoreDetails is the structured payload of a BrigadeDailyScore row.
// Invariant: Total is the sum of contribution scores and Count their number,
// so the row score is always Total/Count.
type ScoreDetails struct {
	Checks []Contribution `json:"checks"`
	Total  float64        `json:"total"`
	Count  int            `json:"count"`
}

// DailyScore is one (brigade, calendar day) score fact.
type DailyScore struct {
	ID        uuid.UUID
	BrigadeID uuid.UUID
	ScoreDate time.Time
	Score     float64
	Details   ScoreDetails
	UpdatedAt time.Time
}

// mergeContribution reconciles a check's score into the details payload.
// A prior contribution tagged with the same check id is replaced, never
// duplicated, which makes re-scoring the same check idempotent.
func mergeContribution(details ScoreDetails, checkID uuid.UUID, score float64) ScoreDetails {
	checks := make([]Contribution, 0, len(details.Checks)+1)
	for _, c := range details.Checks {
		if c.CheckID != checkID {
			checks = append(checks, c)
		}
	}
	checks = append(checks, Contribution{CheckID: checkID, Score: score})

	var total float64
	for _, c := range checks {
		total += c.Score
	}

	return ScoreDetails{
		Checks: checks,
		Total:  total,
		Count:  len(checks),
	}
}

// Average returns Total/Count, the value stored in the row's score column.
func (d ScoreDetails) Average() float64 {
	if d.Count == 0 {
		return 0
	}
	return d.Total / float64(d.Count)
}
