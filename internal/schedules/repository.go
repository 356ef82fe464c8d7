package schedules

import (
	"context"
	"errors"
	"time"

	checklistrepo "mantaqc_backend/internal/checklists/repository"
	"mantaqc_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schedule is an automation definition with rotation pools and their
// persisted cursors. Cursors only ever advance inside the same transaction
// that creates the spawned check instance.
type Schedule struct {
	ID                 uuid.UUID
	Name               string
	TemplateID         *uuid.UUID
	InspectorPool      []uuid.UUID
	BrigadePool        []uuid.UUID
	AssignedUserIDs    []uuid.UUID // legacy single pool, used when InspectorPool is empty
	LastInspectorIndex int
	LastBrigadeIndex   int
	IntervalDays       int
	NextRunAt          *time.Time
	Enabled            bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Repository provides schedule data access.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a schedule repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const scheduleColumns = `id, name, template_id, inspector_pool, brigade_pool, assigned_user_ids,
	last_inspector_index, last_brigade_index, interval_days, next_run_at, enabled, created_at, updated_at`

func scanSchedule(row pgx.Row) (Schedule, error) {
	var s Schedule
	err := row.Scan(&s.ID, &s.Name, &s.TemplateID, &s.InspectorPool, &s.BrigadePool,
		&s.AssignedUserIDs, &s.LastInspectorIndex, &s.LastBrigadeIndex, &s.IntervalDays,
		&s.NextRunAt, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Schedule{}, apperr.NotFound("schedule not found")
	}
	return s, err
}

// Create inserts a new schedule and returns it with generated fields.
func (r *Repository) Create(ctx context.Context, s Schedule) (Schedule, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.InspectorPool == nil {
		s.InspectorPool = []uuid.UUID{}
	}
	if s.BrigadePool == nil {
		s.BrigadePool = []uuid.UUID{}
	}
	if s.AssignedUserIDs == nil {
		s.AssignedUserIDs = []uuid.UUID{}
	}
	return scanSchedule(r.pool.QueryRow(ctx,
		`INSERT INTO schedules (id, name, template_id, inspector_pool, brigade_pool, assigned_user_ids,
			last_inspector_index, last_brigade_index, interval_days, next_run_at, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8, $9)
		 RETURNING `+scheduleColumns,
		s.ID, s.Name, s.TemplateID, s.InspectorPool, s.BrigadePool, s.AssignedUserIDs,
		s.IntervalDays, s.NextRunAt, s.Enabled))
}

// Get fetches a schedule by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Schedule, error) {
	return scanSchedule(r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
}

// ListEnabled returns all enabled schedules.
func (r *Repository) ListEnabled(ctx context.Context) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SpawnCheck creates a check instance from a schedule's rotation state.
// The advanced cursors commit atomically with the new check, so a crash
// between reading and persisting the cursor cannot duplicate or skip an
// assignment.
func (r *Repository) SpawnCheck(ctx context.Context, scheduleID uuid.UUID, inspectorOverride, brigadeOverride *uuid.UUID) (checklistrepo.CheckInstance, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return checklistrepo.CheckInstance{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	schedule, err := scanSchedule(tx.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, scheduleID))
	if err != nil {
		return checklistrepo.CheckInstance{}, err
	}

	if schedule.TemplateID == nil {
		return checklistrepo.CheckInstance{}, apperr.NotFound("schedule is missing template assignment")
	}

	var templateVersion int
	err = tx.QueryRow(ctx,
		`SELECT current_version FROM checklist_templates WHERE id = $1`, *schedule.TemplateID,
	).Scan(&templateVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return checklistrepo.CheckInstance{}, apperr.NotFound("template referenced by schedule not found")
	}
	if err != nil {
		return checklistrepo.CheckInstance{}, err
	}

	inspectorID := inspectorOverride
	if inspectorID == nil {
		pool := schedule.InspectorPool
		if len(pool) == 0 {
			pool = schedule.AssignedUserIDs
		}
		if chosen, next, ok := PickNext(pool, schedule.LastInspectorIndex); ok {
			inspectorID = &chosen
			schedule.LastInspectorIndex = next
		}
	}

	brigadeID := brigadeOverride
	if brigadeID == nil {
		if chosen, next, ok := PickNext(schedule.BrigadePool, schedule.LastBrigadeIndex); ok {
			brigadeID = &chosen
			schedule.LastBrigadeIndex = next
		}
	}

	now := time.Now().UTC()
	check := checklistrepo.CheckInstance{
		ID:              uuid.New(),
		TemplateID:      *schedule.TemplateID,
		TemplateVersion: templateVersion,
		InspectorID:     inspectorID,
		BrigadeID:       brigadeID,
		Status:          checklistrepo.CheckInProgress,
		StartedAt:       &now,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO check_instances (id, template_id, template_version, inspector_id, brigade_id, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		check.ID, check.TemplateID, check.TemplateVersion, check.InspectorID, check.BrigadeID,
		string(check.Status), check.StartedAt,
	).Scan(&check.CreatedAt)
	if err != nil {
		return checklistrepo.CheckInstance{}, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE schedules
		 SET last_inspector_index = $2, last_brigade_index = $3, updated_at = now()
		 WHERE id = $1`,
		schedule.ID, schedule.LastInspectorIndex, schedule.LastBrigadeIndex,
	)
	if err != nil {
		return checklistrepo.CheckInstance{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return checklistrepo.CheckInstance{}, err
	}
	return check, nil
}

// ListDue returns enabled schedules whose next run is at or before now.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM schedules
		 WHERE enabled AND next_run_at IS NOT NULL AND next_run_at <= $1
		 ORDER BY next_run_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkSpawned advances the schedule's next run by its interval. Schedules
// without an interval are one-shot: their next run is cleared.
func (r *Repository) MarkSpawned(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE schedules
		 SET next_run_at = CASE
		       WHEN interval_days > 0 THEN $2::timestamptz + make_interval(days => interval_days)
		       ELSE NULL
		     END,
		     updated_at = now()
		 WHERE id = $1`,
		id, now)
	return err
}
