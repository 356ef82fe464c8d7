package reports

import (
	"mantaqc_backend/platform/events"

	"github.com/google/uuid"
)

// EventReportReady is published after a report row reaches ready.
const EventReportReady = "report.ready"

// ReportReadyEvent notifies subscribers that a report artifact is available.
type ReportReadyEvent struct {
	events.BaseEvent
	ReportID uuid.UUID `json:"report_id"`
	CheckID  uuid.UUID `json:"check_id"`
	FileKey  string    `json:"file_key"`
}

// EventName returns the event type identifier.
func (ReportReadyEvent) EventName() string { return EventReportReady }
