package reports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mantaqc_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists reports and their generation events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reportColumns = `id, check_instance_id, format, file_key, status, author_id,
	generated_by, metadata, created_at, updated_at`

func scanReport(row pgx.Row) (Report, error) {
	var rep Report
	var status string
	err := row.Scan(&rep.ID, &rep.CheckInstanceID, &rep.Format, &rep.FileKey, &status,
		&rep.AuthorID, &rep.GeneratedBy, &rep.Metadata, &rep.CreatedAt, &rep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Report{}, apperr.NotFound("report not found")
	}
	rep.Status = ReportStatus(status)
	return rep, err
}

// GetReport fetches a report by id.
func (r *Repository) GetReport(ctx context.Context, id uuid.UUID) (Report, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
}

// CreateReport inserts a new ready report row.
func (r *Repository) CreateReport(ctx context.Context, rep Report) (Report, error) {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	if rep.Format == "" {
		rep.Format = FormatXLSX
	}
	return scanReport(r.pool.QueryRow(ctx,
		`INSERT INTO reports (id, check_instance_id, format, file_key, status, author_id, generated_by, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+reportColumns,
		rep.ID, rep.CheckInstanceID, rep.Format, rep.FileKey, string(rep.Status),
		rep.AuthorID, rep.GeneratedBy, rep.Metadata))
}

// UpdateReportStatus moves a report to the given status.
func (r *Repository) UpdateReportStatus(ctx context.Context, id uuid.UUID, status ReportStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reports SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("report not found")
	}
	return nil
}

// OverwriteReport replaces a report's artifact in place after a successful
// regeneration. The row id is stable across regenerations.
func (r *Repository) OverwriteReport(ctx context.Context, id uuid.UUID, fileKey string, metadata json.RawMessage, authorID *uuid.UUID) (Report, error) {
	return scanReport(r.pool.QueryRow(ctx,
		`UPDATE reports
		 SET file_key = $2, status = $3, metadata = $4, author_id = $5, generated_by = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+reportColumns,
		id, fileKey, string(ReportReady), metadata, authorID))
}

// ListStuckGenerating returns reports that have sat in the generating state
// since before the cutoff. These are runs interrupted by a crash; a sweep
// re-enqueues them.
func (r *Repository) ListStuckGenerating(ctx context.Context, cutoff time.Time) ([]Report, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reportColumns+`
		 FROM reports
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at`, string(ReportGenerating), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

const eventColumns = `id, report_id, check_instance_id, event_type, status,
	triggered_by, error_message, created_at, completed_at`

func scanEvent(row pgx.Row) (GenerationEvent, error) {
	var ev GenerationEvent
	var eventType, status string
	err := row.Scan(&ev.ID, &ev.ReportID, &ev.CheckInstanceID, &eventType, &status,
		&ev.TriggeredBy, &ev.ErrorMessage, &ev.CreatedAt, &ev.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenerationEvent{}, apperr.NotFound("generation event not found")
	}
	ev.EventType = EventType(eventType)
	ev.Status = EventStatus(status)
	return ev, err
}

// CreateEvent records a new pending generation event.
func (r *Repository) CreateEvent(ctx context.Context, checkID uuid.UUID, reportID *uuid.UUID, eventType EventType, triggeredBy string) (GenerationEvent, error) {
	return scanEvent(r.pool.QueryRow(ctx,
		`INSERT INTO report_generation_events (id, report_id, check_instance_id, event_type, status, triggered_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+eventColumns,
		uuid.New(), reportID, checkID, string(eventType), string(EventPending), triggeredBy))
}

// MarkEventRunning transitions an event to running.
func (r *Repository) MarkEventRunning(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE report_generation_events SET status = $2 WHERE id = $1`,
		id, string(EventRunning))
	return err
}

// MarkEventSuccess completes an event, linking it to the produced report.
func (r *Repository) MarkEventSuccess(ctx context.Context, id uuid.UUID, reportID uuid.UUID, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE report_generation_events
		 SET status = $2, report_id = $3, completed_at = $4
		 WHERE id = $1`,
		id, string(EventSuccess), reportID, completedAt)
	return err
}

// MarkEventFailed completes an event with the failure message.
func (r *Repository) MarkEventFailed(ctx context.Context, id uuid.UUID, message string, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE report_generation_events
		 SET status = $2, error_message = $3, completed_at = $4
		 WHERE id = $1`,
		id, string(EventFailed), message, completedAt)
	return err
}

// ListEventsForCheck returns the generation history of a check, newest first.
func (r *Repository) ListEventsForCheck(ctx context.Context, checkID uuid.UUID) ([]GenerationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM report_generation_events
		 WHERE check_instance_id = $1
		 ORDER BY created_at DESC`, checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []GenerationEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
