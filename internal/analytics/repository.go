package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Filters narrows period queries to a brigade, department, or author.
type Filters struct {
	BrigadeID    *uuid.UUID
	DepartmentID *string
	AuthorID     *uuid.UUID
}

// Repository provides data access for daily score facts and period queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertDailyScore reconciles a check's score into the (brigade, day) fact
// under row-level serialization. The uniqueness constraint on
// (brigade_id, score_date) plus SELECT FOR UPDATE guarantees concurrent
// upserts for the same key reconcile against the latest persisted state.
func (r *Repository) UpsertDailyScore(ctx context.Context, brigadeID uuid.UUID, day time.Time, checkID uuid.UUID, score float64) (DailyScore, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return DailyScore{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	day = day.UTC().Truncate(24 * time.Hour)

	var (
		rowID      uuid.UUID
		detailsRaw []byte
	)
	err = tx.QueryRow(ctx,
		`SELECT id, details FROM brigade_daily_scores
		 WHERE brigade_id = $1 AND score_date = $2
		 FOR UPDATE`,
		brigadeID, day,
	).Scan(&rowID, &detailsRaw)

	if errors.Is(err, pgx.ErrNoRows) {
		// Insert a fresh fact. A concurrent insert for the same key loses the
		// ON CONFLICT race and falls through to the locked-row merge path.
		inserted, insErr := r.insertDailyScore(ctx, tx, brigadeID, day, checkID, score)
		if insErr != nil {
			return DailyScore{}, insErr
		}
		if inserted != nil {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return DailyScore{}, commitErr
			}
			return *inserted, nil
		}

		err = tx.QueryRow(ctx,
			`SELECT id, details FROM brigade_daily_scores
			 WHERE brigade_id = $1 AND score_date = $2
			 FOR UPDATE`,
			brigadeID, day,
		).Scan(&rowID, &detailsRaw)
	}
	if err != nil {
		return DailyScore{}, err
	}

	var details ScoreDetails
	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &details); err != nil {
			return DailyScore{}, err
		}
	}
	details = mergeContribution(details, checkID, score)

	payload, err := json.Marshal(details)
	if err != nil {
		return DailyScore{}, err
	}

	updated := DailyScore{
		ID:        rowID,
		BrigadeID: brigadeID,
		ScoreDate: day,
		Score:     details.Average(),
		Details:   details,
	}
	err = tx.QueryRow(ctx,
		`UPDATE brigade_daily_scores
		 SET score = $2, details = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		rowID, updated.Score, payload,
	).Scan(&updated.UpdatedAt)
	if err != nil {
		return DailyScore{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DailyScore{}, err
	}
	return updated, nil
}

// insertDailyScore attempts the first-contribution insert. It returns nil
// (no error) when another transaction created the row concurrently.
func (r *Repository) insertDailyScore(ctx context.Context, tx pgx.Tx, brigadeID uuid.UUID, day time.Time, checkID uuid.UUID, score float64) (*DailyScore, error) {
	details := mergeContribution(ScoreDetails{}, checkID, score)
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}

	fact := DailyScore{
		ID:        uuid.New(),
		BrigadeID: brigadeID,
		ScoreDate: day,
		Score:     details.Average(),
		Details:   details,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO brigade_daily_scores (id, brigade_id, score_date, score, details)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (brigade_id, score_date) DO NOTHING
		 RETURNING updated_at`,
		fact.ID, brigadeID, day, fact.Score, payload,
	).Scan(&fact.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fact, nil
}

// GetDailyScore fetches the fact for a (brigade, day) key, if present.
func (r *Repository) GetDailyScore(ctx context.Context, brigadeID uuid.UUID, day time.Time) (*DailyScore, error) {
	day = day.UTC().Truncate(24 * time.Hour)

	var (
		fact       DailyScore
		detailsRaw []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, brigade_id, score_date, score, details, updated_at
		 FROM brigade_daily_scores
		 WHERE brigade_id = $1 AND score_date = $2`,
		brigadeID, day,
	).Scan(&fact.ID, &fact.BrigadeID, &fact.ScoreDate, &fact.Score, &detailsRaw, &fact.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &fact.Details); err != nil {
			return nil, err
		}
	}
	return &fact, nil
}

// CountReadyReports counts ready reports created inside the period.
func (r *Repository) CountReadyReports(ctx context.Context, start, end time.Time, authorID *uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports
		 WHERE status = 'ready'
		   AND created_at >= $1 AND created_at < $2
		   AND ($3::uuid IS NULL OR author_id = $3)`,
		start, end.Add(24*time.Hour), authorID,
	).Scan(&count)
	return count, err
}

// AverageDailyScore averages daily fact scores in range, nil when no facts match.
func (r *Repository) AverageDailyScore(ctx context.Context, start, end time.Time, f Filters) (*float64, error) {
	var avg *float64
	err := r.pool.QueryRow(ctx,
		`SELECT AVG(s.score) FROM brigade_daily_scores s
		 LEFT JOIN brigades b ON b.id = s.brigade_id
		 WHERE s.score_date >= $1 AND s.score_date <= $2
		   AND ($3::uuid IS NULL OR s.brigade_id = $3)
		   AND ($4::text IS NULL OR b.department_id = $4)`,
		start, end, f.BrigadeID, f.DepartmentID,
	).Scan(&avg)
	return avg, err
}

// ListBrigadeScores returns a brigade's daily facts inside the period.
func (r *Repository) ListBrigadeScores(ctx context.Context, brigadeID uuid.UUID, start, end time.Time) ([]DailyScore, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, brigade_id, score_date, score, details, updated_at
		 FROM brigade_daily_scores
		 WHERE brigade_id = $1 AND score_date >= $2 AND score_date <= $3
		 ORDER BY score_date`,
		brigadeID, start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []DailyScore
	for rows.Next() {
		var (
			fact       DailyScore
			detailsRaw []byte
		)
		if err := rows.Scan(&fact.ID, &fact.BrigadeID, &fact.ScoreDate, &fact.Score, &detailsRaw, &fact.UpdatedAt); err != nil {
			return nil, err
		}
		if len(detailsRaw) > 0 {
			if err := json.Unmarshal(detailsRaw, &fact.Details); err != nil {
				return nil, err
			}
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// CountRemarksInRange counts remark entries raised inside the period.
func (r *Repository) CountRemarksInRange(ctx context.Context, start, end time.Time, f Filters) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM remark_entries
		 WHERE raised_at >= $1 AND raised_at < $2
		   AND ($3::uuid IS NULL OR brigade_id = $3)
		   AND ($4::text IS NULL OR department_id = $4)`,
		start, end.Add(24*time.Hour), f.BrigadeID, f.DepartmentID,
	).Scan(&count)
	return count, err
}
