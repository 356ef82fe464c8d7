// Package reports orchestrates report generation for completed checks:
// analytics computation, xlsx rendering, artifact upload, alert dispatch,
// and the persisted report/event lifecycle.
package reports

import (
	"encoding/json"
	"time"

	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/internal/analytics"
	"mantaqc_backend/internal/checklists"

	"github.com/google/uuid"
)

// ReportStatus tracks the report artifact lifecycle.
type ReportStatus string

const (
	ReportGenerating ReportStatus = "generating"
	ReportReady      ReportStatus = "ready"
	ReportFailed     ReportStatus = "failed"
)

// FormatXLSX is the only supported report format.
const FormatXLSX = "xlsx"

// EventType names what triggered a generation run.
type EventType string

const (
	EventManual    EventType = "manual"
	EventScheduled EventType = "scheduled"
	EventRetry     EventType = "retry"
	EventAlert     EventType = "alert"
)

// EventStatus tracks a single generation run.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventRunning EventStatus = "running"
	EventSuccess EventStatus = "success"
	EventFailed  EventStatus = "failed"
)

// Report is a generated artifact for one check instance. Regeneration
// reuses the row: file_key, metadata, and status are overwritten in place.
type Report struct {
	ID              uuid.UUID       `json:"id"`
	CheckInstanceID uuid.UUID       `json:"check_instance_id"`
	Format          string          `json:"format"`
	FileKey         *string         `json:"file_key"`
	Status          ReportStatus    `json:"status"`
	AuthorID        *uuid.UUID      `json:"author_id"`
	GeneratedBy     *uuid.UUID      `json:"generated_by"`
	Metadata        json.RawMessage `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// GenerationEvent is the audit record of one pipeline run. Events are
// append-only; reruns of the same report produce new events.
type GenerationEvent struct {
	ID              uuid.UUID   `json:"id"`
	ReportID        *uuid.UUID  `json:"report_id"`
	CheckInstanceID uuid.UUID   `json:"check_instance_id"`
	EventType       EventType   `json:"event_type"`
	Status          EventStatus `json:"status"`
	TriggeredBy     string      `json:"triggered_by"`
	ErrorMessage    *string     `json:"error_message"`
	CreatedAt       time.Time   `json:"created_at"`
	CompletedAt     *time.Time  `json:"completed_at"`
}

// Analytics is the computed snapshot a single report is rendered from.
type Analytics struct {
	CheckInstanceID    uuid.UUID
	Score              float64
	BrigadeScore       *analytics.DailyScore
	RemarkCount        int
	CriticalViolations []checklists.Violation
	Alerts             []*alerts.Alert
}

// metadataSnapshot is the document persisted on the report row. It captures
// what the artifact was rendered from without requiring a re-read of the
// workbook itself.
type metadataSnapshot struct {
	Analytics struct {
		AvgScore                float64 `json:"avg_score"`
		RemarkCount             int     `json:"remark_count"`
		CriticalViolationsCount int     `json:"critical_violations_count"`
		AlertsCount             int     `json:"alerts_count"`
	} `json:"analytics"`
	BrigadeScore *struct {
		Score float64 `json:"score"`
		Count int     `json:"count"`
	} `json:"brigade_score,omitempty"`
	Tickets     map[string]alerts.DispatchResult `json:"tickets,omitempty"`
	GeneratedAt time.Time                        `json:"generated_at"`
}

func buildMetadata(a *Analytics, tickets map[string]alerts.DispatchResult, now time.Time) (json.RawMessage, error) {
	var snap metadataSnapshot
	snap.Analytics.AvgScore = a.Score
	snap.Analytics.RemarkCount = a.RemarkCount
	snap.Analytics.CriticalViolationsCount = len(a.CriticalViolations)
	snap.Analytics.AlertsCount = len(a.Alerts)
	if a.BrigadeScore != nil {
		snap.BrigadeScore = &struct {
			Score float64 `json:"score"`
			Count int     `json:"count"`
		}{Score: a.BrigadeScore.Score, Count: a.BrigadeScore.Details.Count}
	}
	if len(tickets) > 0 {
		snap.Tickets = tickets
	}
	snap.GeneratedAt = now.UTC()
	return json.Marshal(snap)
}

// ArtifactKey is the storage location for a check's xlsx artifact. One key
// per check: regeneration overwrites the previous object.
func ArtifactKey(checkID uuid.UUID) string {
	return "reports/" + checkID.String() + "/" + checkID.String() + ".xlsx"
}

// XLSXContentType is the MIME type for uploaded workbooks.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
