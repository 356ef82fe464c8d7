package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mantaqc_backend/internal/adapters/storage"
	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/internal/analytics"
	"mantaqc_backend/internal/checklists"
	checklistrepo "mantaqc_backend/internal/checklists/repository"
	"mantaqc_backend/platform/apperr"
	"mantaqc_backend/platform/events"
	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
)

// Author identifies who triggered a generation run.
type Author struct {
	ID    uuid.UUID
	Email string
}

// CheckReader is the checklist data access the pipeline needs.
type CheckReader interface {
	GetCheck(ctx context.Context, id uuid.UUID) (checklistrepo.CheckInstance, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (checklistrepo.Template, error)
	GetSchemaForVersion(ctx context.Context, templateID uuid.UUID, version int) (json.RawMessage, error)
	CountRemarks(ctx context.Context, checkID uuid.UUID) (int, error)
}

// ScoreWriter reconciles a completed check's score into the brigade's
// daily fact.
type ScoreWriter interface {
	UpsertBrigadeScore(ctx context.Context, brigadeID uuid.UUID, day time.Time, checkID uuid.UUID, score float64) (analytics.DailyScore, error)
}

// AlertDispatcher sends an alert batch to the ticket sink.
type AlertDispatcher interface {
	Process(ctx context.Context, batch []*alerts.Alert, dedupe bool) map[string]alerts.DispatchResult
}

// Store is the report persistence surface of the pipeline.
type Store interface {
	GetReport(ctx context.Context, id uuid.UUID) (Report, error)
	CreateReport(ctx context.Context, rep Report) (Report, error)
	UpdateReportStatus(ctx context.Context, id uuid.UUID, status ReportStatus) error
	OverwriteReport(ctx context.Context, id uuid.UUID, fileKey string, metadata json.RawMessage, authorID *uuid.UUID) (Report, error)
	CreateEvent(ctx context.Context, checkID uuid.UUID, reportID *uuid.UUID, eventType EventType, triggeredBy string) (GenerationEvent, error)
	MarkEventRunning(ctx context.Context, id uuid.UUID) error
	MarkEventSuccess(ctx context.Context, id uuid.UUID, reportID uuid.UUID, completedAt time.Time) error
	MarkEventFailed(ctx context.Context, id uuid.UUID, message string, completedAt time.Time) error
}

// Pipeline generates report artifacts for completed checks. A run computes
// the analytics snapshot, renders the workbook, uploads it, optionally
// dispatches alerts, and records the report row plus an audit event.
type Pipeline struct {
	store         Store
	checks        CheckReader
	scores        ScoreWriter
	dispatcher    AlertDispatcher
	artifacts     storage.ArtifactStore
	renderer      *Renderer
	engine        *checklists.Engine
	bus           events.Bus
	log           *logger.Logger
	lowScoreFloor float64
	now           func() time.Time
}

// PipelineOptions configures pipeline construction.
type PipelineOptions struct {
	Store         Store
	Checks        CheckReader
	Scores        ScoreWriter
	Dispatcher    AlertDispatcher
	Artifacts     storage.ArtifactStore
	Bus           events.Bus
	Logger        *logger.Logger
	LowScoreFloor float64
	Clock         func() time.Time
}

// NewPipeline creates the report generation pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		store:         opts.Store,
		checks:        opts.Checks,
		scores:        opts.Scores,
		dispatcher:    opts.Dispatcher,
		artifacts:     opts.Artifacts,
		renderer:      NewRenderer(),
		engine:        checklists.NewEngine(),
		bus:           opts.Bus,
		log:           opts.Logger,
		lowScoreFloor: opts.LowScoreFloor,
		now:           clock,
	}
}

// Generate runs the full pipeline for a check and creates a new report row.
// The generation event transitions pending, running, then success or failed.
// On any failure the event carries the error message and no report row is
// written.
func (p *Pipeline) Generate(ctx context.Context, checkID uuid.UUID, author Author, eventType EventType, triggerAlerts bool) (Report, error) {
	check, err := p.checks.GetCheck(ctx, checkID)
	if err != nil {
		return Report{}, err
	}

	event, err := p.store.CreateEvent(ctx, check.ID, nil, eventType, author.Email)
	if err != nil {
		return Report{}, err
	}
	if err := p.store.MarkEventRunning(ctx, event.ID); err != nil {
		return Report{}, err
	}

	report, err := p.run(ctx, check, triggerAlerts, func(fileKey string, metadata []byte) (Report, error) {
		authorID := author.ID
		return p.store.CreateReport(ctx, Report{
			CheckInstanceID: check.ID,
			Format:          FormatXLSX,
			FileKey:         &fileKey,
			Status:          ReportReady,
			AuthorID:        &authorID,
			GeneratedBy:     &authorID,
			Metadata:        metadata,
		})
	})
	if err != nil {
		p.failEvent(ctx, event.ID, err)
		return Report{}, err
	}

	if err := p.store.MarkEventSuccess(ctx, event.ID, report.ID, p.now()); err != nil {
		return Report{}, err
	}

	p.publishReady(ctx, report)
	p.log.Info("report generated",
		"report_id", report.ID.String(),
		"check_id", check.ID.String(),
		"event_type", string(eventType),
	)
	return report, nil
}

// Regenerate reruns the pipeline for an existing report, overwriting its
// artifact, metadata, and status in place. The report id is stable across
// regenerations. On failure the report is left failed.
func (p *Pipeline) Regenerate(ctx context.Context, reportID uuid.UUID, author Author, triggerAlerts bool) (Report, error) {
	existing, err := p.store.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	check, err := p.checks.GetCheck(ctx, existing.CheckInstanceID)
	if err != nil {
		return Report{}, err
	}

	if err := p.store.UpdateReportStatus(ctx, existing.ID, ReportGenerating); err != nil {
		return Report{}, err
	}

	event, err := p.store.CreateEvent(ctx, check.ID, &existing.ID, EventRetry, author.Email)
	if err != nil {
		return Report{}, err
	}
	if err := p.store.MarkEventRunning(ctx, event.ID); err != nil {
		return Report{}, err
	}

	report, err := p.run(ctx, check, triggerAlerts, func(fileKey string, metadata []byte) (Report, error) {
		authorID := author.ID
		return p.store.OverwriteReport(ctx, existing.ID, fileKey, metadata, &authorID)
	})
	if err != nil {
		if statusErr := p.store.UpdateReportStatus(ctx, existing.ID, ReportFailed); statusErr != nil {
			p.log.Error("failed to mark report failed", "report_id", existing.ID.String(), "error", statusErr)
		}
		p.failEvent(ctx, event.ID, err)
		return Report{}, err
	}

	if err := p.store.MarkEventSuccess(ctx, event.ID, report.ID, p.now()); err != nil {
		return Report{}, err
	}

	p.publishReady(ctx, report)
	p.log.Info("report regenerated",
		"report_id", report.ID.String(),
		"check_id", check.ID.String(),
	)
	return report, nil
}

// run executes the shared inner pipeline and hands the artifact key and
// metadata document to persist, which differs between create and overwrite.
func (p *Pipeline) run(ctx context.Context, check checklistrepo.CheckInstance, triggerAlerts bool, persist func(fileKey string, metadata []byte) (Report, error)) (Report, error) {
	snapshot, input, err := p.computeAnalytics(ctx, check)
	if err != nil {
		return Report{}, err
	}

	workbook, err := p.renderer.Render(input)
	if err != nil {
		return Report{}, apperr.Wrap(apperr.KindInternal, "render report workbook", err)
	}

	fileKey := ArtifactKey(check.ID)
	if err := p.artifacts.Upload(ctx, fileKey, workbook, XLSXContentType); err != nil {
		return Report{}, apperr.Wrap(apperr.KindInternal, "upload report artifact", err)
	}

	var tickets map[string]alerts.DispatchResult
	if triggerAlerts && len(snapshot.Alerts) > 0 {
		tickets = p.dispatcher.Process(ctx, snapshot.Alerts, true)
	}

	metadata, err := buildMetadata(snapshot, tickets, p.now())
	if err != nil {
		return Report{}, apperr.Wrap(apperr.KindInternal, "encode report metadata", err)
	}

	return persist(fileKey, metadata)
}

// computeAnalytics builds the snapshot a report is rendered from: the
// check's score against its frozen schema version, critical violations,
// the reconciled brigade daily score, remark count, and derived alerts.
func (p *Pipeline) computeAnalytics(ctx context.Context, check checklistrepo.CheckInstance) (*Analytics, renderInput, error) {
	raw, err := p.checks.GetSchemaForVersion(ctx, check.TemplateID, check.TemplateVersion)
	if err != nil {
		return nil, renderInput{}, err
	}
	schema, err := checklists.ParseSchema(raw)
	if err != nil {
		return nil, renderInput{}, apperr.Wrap(apperr.KindInternal, "parse template schema", err)
	}

	answers, err := check.DecodedAnswers()
	if err != nil {
		return nil, renderInput{}, apperr.Wrap(apperr.KindInternal, "decode check answers", err)
	}

	score := p.engine.Score(schema, answers)
	violations := p.engine.FindCriticalViolations(schema, answers)

	var brigadeScore *analytics.DailyScore
	if check.BrigadeID != nil && check.FinishedAt != nil {
		fact, err := p.scores.UpsertBrigadeScore(ctx, *check.BrigadeID, *check.FinishedAt, check.ID, score)
		if err != nil {
			return nil, renderInput{}, err
		}
		brigadeScore = &fact
	}

	remarkCount, err := p.checks.CountRemarks(ctx, check.ID)
	if err != nil {
		return nil, renderInput{}, err
	}

	snapshot := &Analytics{
		CheckInstanceID:    check.ID,
		Score:              score,
		BrigadeScore:       brigadeScore,
		RemarkCount:        remarkCount,
		CriticalViolations: violations,
		Alerts:             p.deriveAlerts(check, violations, brigadeScore),
	}

	templateName := "Template"
	if tmpl, err := p.checks.GetTemplate(ctx, check.TemplateID); err == nil {
		templateName = tmpl.Name
	}

	input := renderInput{
		check:        check,
		schema:       schema,
		answers:      answers,
		comments:     decodeComments(check),
		analytics:    snapshot,
		templateName: templateName,
	}
	return snapshot, input, nil
}

// deriveAlerts converts the analytics snapshot into the outbound batch:
// one CRITICAL failed_check alert per violation, plus a WARNING low_score
// alert when the brigade's daily score sits below the configured floor.
func (p *Pipeline) deriveAlerts(check checklistrepo.CheckInstance, violations []checklists.Violation, brigadeScore *analytics.DailyScore) []*alerts.Alert {
	var batch []*alerts.Alert
	checkID := check.ID

	for _, v := range violations {
		text := v.QuestionText
		if text == "" {
			text = v.QuestionID
		}
		batch = append(batch, &alerts.Alert{
			Severity:        alerts.SeverityCritical,
			Category:        alerts.CategoryFailedCheck,
			Message:         "Critical violation: " + text,
			CheckInstanceID: &checkID,
			BrigadeID:       check.BrigadeID,
			DepartmentID:    check.DepartmentID,
			Metadata: map[string]any{
				"question_id": v.QuestionID,
				"answer":      v.Answer,
			},
		})
	}

	if brigadeScore != nil && brigadeScore.Score < p.lowScoreFloor {
		batch = append(batch, &alerts.Alert{
			Severity:     alerts.SeverityWarning,
			Category:     alerts.CategoryLowScore,
			Message:      fmt.Sprintf("Brigade score below threshold: %.2f", brigadeScore.Score),
			BrigadeID:    check.BrigadeID,
			DepartmentID: check.DepartmentID,
			Metadata:     map[string]any{"score": brigadeScore.Score},
		})
	}

	return batch
}

func (p *Pipeline) failEvent(ctx context.Context, eventID uuid.UUID, cause error) {
	if err := p.store.MarkEventFailed(ctx, eventID, cause.Error(), p.now()); err != nil {
		p.log.Error("failed to record generation failure", "event_id", eventID.String(), "error", err)
	}
}

func (p *Pipeline) publishReady(ctx context.Context, report Report) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, ReportReadyEvent{
		BaseEvent: events.NewBaseEvent(),
		ReportID:  report.ID,
		CheckID:   report.CheckInstanceID,
		FileKey:   derefOrEmpty(report.FileKey),
	})
}

func decodeComments(check checklistrepo.CheckInstance) map[string]string {
	comments := map[string]string{}
	if len(check.Comments) == 0 {
		return comments
	}
	var raw map[string]any
	if err := json.Unmarshal(check.Comments, &raw); err != nil {
		return comments
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			comments[k] = s
		}
	}
	return comments
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
