// Package repository provides data access for checklist templates and
// check instances.
package repository

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

// CheckStatus enumerates the check instance lifecycle.
type CheckStatus string

const (
	CheckInProgress CheckStatus = "in_progress"
	CheckCompleted  CheckStatus = "completed"
	CheckCancelled  CheckStatus = "cancelled"
)

// Template is a named question schema with a current version pointer.
// Editing the schema creates a new immutable version.
type Template struct {
	ID             uuid.UUID
	Name           string
	CurrentVersion int
	Schema         json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TemplateVersion is one immutable snapshot of a template schema.
type TemplateVersion struct {
	ID         uuid.UUID
	TemplateID uuid.UUID
	Version    int
	Schema     json.RawMessage
	Diff       json.RawMessage
	CreatedBy  string
	CreatedAt  time.Time
}

// CheckInstance is one inspection occurrence. TemplateVersion is frozen at
// creation time and never changes afterwards, even if the template is edited.
type CheckInstance struct {
	ID              uuid.UUID
	TemplateID      uuid.UUID
	TemplateVersion int
	InspectorID     *uuid.UUID
	BrigadeID       *uuid.UUID
	DepartmentID    *string
	Answers         json.RawMessage
	Comments        json.RawMessage
	Status          CheckStatus
	StartedAt       *time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
}

// DecodedAnswers unmarshals the stored answer document.
func (c CheckInstance) DecodedAnswers() (map[string]any, error) {
	if len(c.Answers) == 0 {
		return map[string]any{}, nil
	}
	var answers map[string]any
	if err := json.Unmarshal(c.Answers, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// Repository provides checklist data access.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a checklist repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, name, current_version, schema, created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Name, &t.CurrentVersion, &t.Schema, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, apperr.NotFound("template not found")
	}
	return t, err
}

// GetTemplate fetches a template with its current schema.
func (r *Repository) GetTemplate(ctx context.Context, id uuid.UUID) (Template, error) {
	return scanTemplate(r.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM checklist_templates WHERE id = $1`, id))
}

// GetSchemaForVersion returns the schema a check was frozen against.
// Historical versions live in checklist_template_versions; the current
// version is read from the template row itself.
func (r *Repository) GetSchemaForVersion(ctx context.Context, templateID uuid.UUID, version int) (json.RawMessage, error) {
	var schema json.RawMessage
	err := r.pool.QueryRow(ctx,
		`SELECT schema FROM checklist_template_versions
		 WHERE template_id = $1 AND version = $2`,
		templateID, version,
	).Scan(&schema)
	if err == nil {
		return schema, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	tmpl, err := r.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.CurrentVersion != version {
		return nil, apperr.NotFound("template version not found")
	}
	return tmpl.Schema, nil
}

// CreateVersion freezes the template's prior schema, stores the new one as
// the next immutable version, and advances the current version pointer.
// The version row and the pointer update commit atomically.
func (r *Repository) CreateVersion(ctx context.Context, templateID uuid.UUID, newSchema json.RawMessage, createdBy string) (TemplateVersion, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return TemplateVersion{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tmpl, err := scanTemplate(tx.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM checklist_templates WHERE id = $1 FOR UPDATE`, templateID))
	if err != nil {
		return TemplateVersion{}, err
	}

	diff, err := json.Marshal(map[string]json.RawMessage{
		"old": tmpl.Schema,
		"new": newSchema,
	})
	if err != nil {
		return TemplateVersion{}, err
	}

	version := TemplateVersion{
		ID:         uuid.New(),
		TemplateID: templateID,
		Version:    tmpl.CurrentVersion + 1,
		Schema:     newSchema,
		Diff:       diff,
		CreatedBy:  createdBy,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO checklist_template_versions (id, template_id, version, schema, diff, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		version.ID, version.TemplateID, version.Version, version.Schema, version.Diff, version.CreatedBy,
	).Scan(&version.CreatedAt)
	if err != nil {
		return TemplateVersion{}, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE checklist_templates
		 SET current_version = $2, schema = $3, updated_at = now()
		 WHERE id = $1`,
		templateID, version.Version, newSchema,
	)
	if err != nil {
		return TemplateVersion{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TemplateVersion{}, err
	}
	return version, nil
}

const checkColumns = `id, template_id, template_version, inspector_id, brigade_id, department_id,
	answers, comments, status, started_at, finished_at, created_at`

func scanCheck(row pgx.Row) (CheckInstance, error) {
	var c CheckInstance
	var status string
	err := row.Scan(&c.ID, &c.TemplateID, &c.TemplateVersion, &c.InspectorID, &c.BrigadeID,
		&c.DepartmentID, &c.Answers, &c.Comments, &status, &c.StartedAt, &c.FinishedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CheckInstance{}, apperr.NotFound("check instance not found")
	}
	c.Status = CheckStatus(status)
	return c, err
}

// GetCheck fetches a check instance by id.
func (r *Repository) GetCheck(ctx context.Context, id uuid.UUID) (CheckInstance, error) {
	return scanCheck(r.pool.QueryRow(ctx,
		`SELECT `+checkColumns+` FROM check_instances WHERE id = $1`, id))
}

// CompleteCheck transitions an in-progress check to completed and stamps
// finished_at. Completing a terminal check is a conflict.
func (r *Repository) CompleteCheck(ctx context.Context, id uuid.UUID, finishedAt time.Time) (CheckInstance, error) {
	check, err := scanCheck(r.pool.QueryRow(ctx,
		`UPDATE check_instances
		 SET status = $2, finished_at = $3
		 WHERE id = $1 AND status = $4
		 RETURNING `+checkColumns,
		id, string(CheckCompleted), finishedAt, string(CheckInProgress)))
	if apperr.Is(err, apperr.KindNotFound) {
		// Distinguish a missing check from an already-terminal one.
		existing, getErr := r.GetCheck(ctx, id)
		if getErr != nil {
			return CheckInstance{}, getErr
		}
		return CheckInstance{}, apperr.Conflict("check instance already " + string(existing.Status))
	}
	return check, err
}

// CountRemarks counts remark entries raised against a check instance.
func (r *Repository) CountRemarks(ctx context.Context, checkID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM remark_entries WHERE check_instance_id = $1`, checkID,
	).Scan(&count)
	return count, err
}
