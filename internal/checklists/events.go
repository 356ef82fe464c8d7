package checklists

import (
	"time"

	"mantaqc_backend/platform/events"

	"github.com/google/uuid"
)

// EventCheckCompleted is published when a check transitions to completed.
const EventCheckCompleted = "check.completed"

// CheckCompletedEvent notifies subscribers that an inspection finished.
type CheckCompletedEvent struct {
	events.BaseEvent
	CheckID    uuid.UUID  `json:"check_id"`
	TemplateID uuid.UUID  `json:"template_id"`
	BrigadeID  *uuid.UUID `json:"brigade_id,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
}

// EventName returns the event type identifier.
func (CheckCompletedEvent) EventName() string { return EventCheckCompleted }
