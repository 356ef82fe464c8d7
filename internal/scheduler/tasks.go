// Package scheduler runs the asynq task queue: report generation jobs and
// rotation-based check spawning.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskReportGenerate = "reports.generate"

const TaskScheduleSpawn = "schedules.spawn"

type ReportGeneratePayload struct {
	CheckID     string `json:"checkId"`
	TriggeredBy string `json:"triggeredBy"`
	// ReportID, when set, reruns an existing report in place instead of
	// creating a new row.
	ReportID string `json:"reportId,omitempty"`
}

type ScheduleSpawnPayload struct {
	ScheduleID string `json:"scheduleId"`
}

func NewReportGenerateTask(payload ReportGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportGenerate, data), nil
}

func ParseReportGeneratePayload(task *asynq.Task) (ReportGeneratePayload, error) {
	var payload ReportGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReportGeneratePayload{}, err
	}
	return payload, nil
}

func NewScheduleSpawnTask(payload ScheduleSpawnPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScheduleSpawn, data), nil
}

func ParseScheduleSpawnPayload(task *asynq.Task) (ScheduleSpawnPayload, error) {
	var payload ScheduleSpawnPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ScheduleSpawnPayload{}, err
	}
	return payload, nil
}
