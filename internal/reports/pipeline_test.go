package reports

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/internal/analytics"
	checklistrepo "mantaqc_backend/internal/checklists/repository"
	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
)

const testSchema = `{
	"sections": [
		{
			"title": "Safety",
			"questions": [
				{"id": "q1", "text": "Helmets on", "type": "boolean", "required": true,
				 "meta": {"critical": true, "requires_ok": true}},
				{"id": "q2", "text": "Area clean", "type": "boolean", "required": true}
			]
		}
	]
}`

type fakeChecks struct {
	check   checklistrepo.CheckInstance
	remarks int
}

func (f *fakeChecks) GetCheck(ctx context.Context, id uuid.UUID) (checklistrepo.CheckInstance, error) {
	if id != f.check.ID {
		return checklistrepo.CheckInstance{}, errors.New("check not found")
	}
	return f.check, nil
}

func (f *fakeChecks) GetTemplate(ctx context.Context, id uuid.UUID) (checklistrepo.Template, error) {
	return checklistrepo.Template{ID: id, Name: "Daily walkthrough"}, nil
}

func (f *fakeChecks) GetSchemaForVersion(ctx context.Context, templateID uuid.UUID, version int) (json.RawMessage, error) {
	return json.RawMessage(testSchema), nil
}

func (f *fakeChecks) CountRemarks(ctx context.Context, checkID uuid.UUID) (int, error) {
	return f.remarks, nil
}

type fakeScores struct {
	fact analytics.DailyScore
}

func (f *fakeScores) UpsertBrigadeScore(ctx context.Context, brigadeID uuid.UUID, day time.Time, checkID uuid.UUID, score float64) (analytics.DailyScore, error) {
	f.fact = analytics.DailyScore{
		BrigadeID: brigadeID,
		ScoreDate: day,
		Score:     score,
		Details: analytics.ScoreDetails{
			Checks: []analytics.Contribution{{CheckID: checkID, Score: score}},
			Total:  score,
			Count:  1,
		},
	}
	return f.fact, nil
}

type fakeDispatcher struct {
	batches [][]*alerts.Alert
}

func (f *fakeDispatcher) Process(ctx context.Context, batch []*alerts.Alert, dedupe bool) map[string]alerts.DispatchResult {
	f.batches = append(f.batches, batch)
	results := make(map[string]alerts.DispatchResult)
	for i, a := range batch {
		results[a.Hash()] = alerts.DispatchResult{OK: true, ExternalID: "stub_task_" + string(rune('1'+i))}
	}
	return results
}

type fakeArtifacts struct {
	uploads   map[string][]byte
	uploadErr error
}

func (f *fakeArtifacts) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeArtifacts) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.test/" + key, nil
}

func (f *fakeArtifacts) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.uploads[key]
	return ok, nil
}

type fakeStore struct {
	reports      map[uuid.UUID]Report
	events       map[uuid.UUID]GenerationEvent
	transitions  map[uuid.UUID][]EventStatus
	reportStates map[uuid.UUID][]ReportStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reports:      map[uuid.UUID]Report{},
		events:       map[uuid.UUID]GenerationEvent{},
		transitions:  map[uuid.UUID][]EventStatus{},
		reportStates: map[uuid.UUID][]ReportStatus{},
	}
}

func (f *fakeStore) GetReport(ctx context.Context, id uuid.UUID) (Report, error) {
	rep, ok := f.reports[id]
	if !ok {
		return Report{}, errors.New("report not found")
	}
	return rep, nil
}

func (f *fakeStore) CreateReport(ctx context.Context, rep Report) (Report, error) {
	rep.ID = uuid.New()
	rep.CreatedAt = time.Now()
	rep.UpdatedAt = rep.CreatedAt
	f.reports[rep.ID] = rep
	f.reportStates[rep.ID] = append(f.reportStates[rep.ID], rep.Status)
	return rep, nil
}

func (f *fakeStore) UpdateReportStatus(ctx context.Context, id uuid.UUID, status ReportStatus) error {
	rep, ok := f.reports[id]
	if !ok {
		return errors.New("report not found")
	}
	rep.Status = status
	f.reports[id] = rep
	f.reportStates[id] = append(f.reportStates[id], status)
	return nil
}

func (f *fakeStore) OverwriteReport(ctx context.Context, id uuid.UUID, fileKey string, metadata json.RawMessage, authorID *uuid.UUID) (Report, error) {
	rep, ok := f.reports[id]
	if !ok {
		return Report{}, errors.New("report not found")
	}
	rep.FileKey = &fileKey
	rep.Status = ReportReady
	rep.Metadata = metadata
	rep.AuthorID = authorID
	rep.GeneratedBy = authorID
	f.reports[id] = rep
	f.reportStates[id] = append(f.reportStates[id], ReportReady)
	return rep, nil
}

func (f *fakeStore) CreateEvent(ctx context.Context, checkID uuid.UUID, reportID *uuid.UUID, eventType EventType, triggeredBy string) (GenerationEvent, error) {
	ev := GenerationEvent{
		ID:              uuid.New(),
		ReportID:        reportID,
		CheckInstanceID: checkID,
		EventType:       eventType,
		Status:          EventPending,
		TriggeredBy:     triggeredBy,
		CreatedAt:       time.Now(),
	}
	f.events[ev.ID] = ev
	f.transitions[ev.ID] = append(f.transitions[ev.ID], EventPending)
	return ev, nil
}

func (f *fakeStore) MarkEventRunning(ctx context.Context, id uuid.UUID) error {
	ev := f.events[id]
	ev.Status = EventRunning
	f.events[id] = ev
	f.transitions[id] = append(f.transitions[id], EventRunning)
	return nil
}

func (f *fakeStore) MarkEventSuccess(ctx context.Context, id uuid.UUID, reportID uuid.UUID, completedAt time.Time) error {
	ev := f.events[id]
	ev.Status = EventSuccess
	ev.ReportID = &reportID
	ev.CompletedAt = &completedAt
	f.events[id] = ev
	f.transitions[id] = append(f.transitions[id], EventSuccess)
	return nil
}

func (f *fakeStore) MarkEventFailed(ctx context.Context, id uuid.UUID, message string, completedAt time.Time) error {
	ev := f.events[id]
	ev.Status = EventFailed
	ev.ErrorMessage = &message
	ev.CompletedAt = &completedAt
	f.events[id] = ev
	f.transitions[id] = append(f.transitions[id], EventFailed)
	return nil
}

func (f *fakeStore) soleEvent(t *testing.T) GenerationEvent {
	t.Helper()
	if len(f.events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(f.events))
	}
	for _, ev := range f.events {
		return ev
	}
	panic("unreachable")
}

func testCheck() checklistrepo.CheckInstance {
	brigadeID := uuid.New()
	finished := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)
	started := finished.Add(-time.Hour)
	dept := "north"
	return checklistrepo.CheckInstance{
		ID:              uuid.New(),
		TemplateID:      uuid.New(),
		TemplateVersion: 1,
		BrigadeID:       &brigadeID,
		DepartmentID:    &dept,
		Answers:         json.RawMessage(`{"q1": true, "q2": true}`),
		Status:          checklistrepo.CheckCompleted,
		StartedAt:       &started,
		FinishedAt:      &finished,
	}
}

func newTestPipeline(store *fakeStore, checks *fakeChecks, artifacts *fakeArtifacts, dispatcher *fakeDispatcher) *Pipeline {
	return NewPipeline(PipelineOptions{
		Store:         store,
		Checks:        checks,
		Scores:        &fakeScores{},
		Dispatcher:    dispatcher,
		Artifacts:     artifacts,
		Logger:        logger.New("development"),
		LowScoreFloor: 70,
	})
}

func TestGenerateSuccess(t *testing.T) {
	store := newFakeStore()
	checks := &fakeChecks{check: testCheck()}
	artifacts := &fakeArtifacts{}
	p := newTestPipeline(store, checks, artifacts, &fakeDispatcher{})

	author := Author{ID: uuid.New(), Email: "inspector@example.com"}
	report, err := p.Generate(context.Background(), checks.check.ID, author, EventManual, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if report.Status != ReportReady {
		t.Fatalf("report status = %s, want ready", report.Status)
	}
	if report.FileKey == nil {
		t.Fatal("report file_key is nil")
	}
	wantKey := "reports/" + checks.check.ID.String() + "/" + checks.check.ID.String() + ".xlsx"
	if *report.FileKey != wantKey {
		t.Fatalf("file_key = %s, want %s", *report.FileKey, wantKey)
	}
	if _, ok := artifacts.uploads[wantKey]; !ok {
		t.Fatal("artifact was not uploaded")
	}

	ev := store.soleEvent(t)
	if ev.EventType != EventManual {
		t.Fatalf("event type = %s, want manual", ev.EventType)
	}
	if ev.TriggeredBy != author.Email {
		t.Fatalf("triggered_by = %s, want %s", ev.TriggeredBy, author.Email)
	}
	want := []EventStatus{EventPending, EventRunning, EventSuccess}
	got := store.transitions[ev.ID]
	if len(got) != len(want) {
		t.Fatalf("event transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event transitions = %v, want %v", got, want)
		}
	}
	if ev.ReportID == nil || *ev.ReportID != report.ID {
		t.Fatal("event not linked to the produced report")
	}
}

func TestGenerateFailureLeavesNoReport(t *testing.T) {
	store := newFakeStore()
	checks := &fakeChecks{check: testCheck()}
	artifacts := &fakeArtifacts{uploadErr: errors.New("bucket unavailable")}
	p := newTestPipeline(store, checks, artifacts, &fakeDispatcher{})

	_, err := p.Generate(context.Background(), checks.check.ID, Author{Email: "x@example.com"}, EventManual, false)
	if err == nil {
		t.Fatal("expected error from failed upload")
	}
	if len(store.reports) != 0 {
		t.Fatalf("expected no report rows, got %d", len(store.reports))
	}

	ev := store.soleEvent(t)
	if ev.Status != EventFailed {
		t.Fatalf("event status = %s, want failed", ev.Status)
	}
	if ev.ErrorMessage == nil || !strings.Contains(*ev.ErrorMessage, "bucket unavailable") {
		t.Fatalf("event error message = %v, want upload failure", ev.ErrorMessage)
	}
	if ev.CompletedAt == nil {
		t.Fatal("failed event has no completion time")
	}
}

func TestRegenerateFailedReport(t *testing.T) {
	store := newFakeStore()
	checks := &fakeChecks{check: testCheck()}
	artifacts := &fakeArtifacts{}
	p := newTestPipeline(store, checks, artifacts, &fakeDispatcher{})

	failed := Report{
		ID:              uuid.New(),
		CheckInstanceID: checks.check.ID,
		Format:          FormatXLSX,
		Status:          ReportFailed,
	}
	store.reports[failed.ID] = failed

	author := Author{ID: uuid.New(), Email: "retry@example.com"}
	report, err := p.Regenerate(context.Background(), failed.ID, author, false)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	if report.ID != failed.ID {
		t.Fatalf("regenerated report id = %s, want original %s", report.ID, failed.ID)
	}
	if report.Status != ReportReady {
		t.Fatalf("report status = %s, want ready", report.Status)
	}
	if report.FileKey == nil {
		t.Fatal("regenerated report has no file_key")
	}

	ev := store.soleEvent(t)
	if ev.EventType != EventRetry {
		t.Fatalf("event type = %s, want retry", ev.EventType)
	}
	if ev.Status != EventSuccess {
		t.Fatalf("event status = %s, want success", ev.Status)
	}

	states := store.reportStates[failed.ID]
	if len(states) < 2 || states[0] != ReportGenerating || states[len(states)-1] != ReportReady {
		t.Fatalf("report state transitions = %v, want generating then ready", states)
	}
}

func TestRegenerateFailureLeavesReportFailed(t *testing.T) {
	store := newFakeStore()
	checks := &fakeChecks{check: testCheck()}
	artifacts := &fakeArtifacts{uploadErr: errors.New("storage down")}
	p := newTestPipeline(store, checks, artifacts, &fakeDispatcher{})

	existing := Report{
		ID:              uuid.New(),
		CheckInstanceID: checks.check.ID,
		Format:          FormatXLSX,
		Status:          ReportReady,
	}
	store.reports[existing.ID] = existing

	_, err := p.Regenerate(context.Background(), existing.ID, Author{Email: "x@example.com"}, false)
	if err == nil {
		t.Fatal("expected error from failed upload")
	}
	if store.reports[existing.ID].Status != ReportFailed {
		t.Fatalf("report status = %s, want failed", store.reports[existing.ID].Status)
	}
	ev := store.soleEvent(t)
	if ev.Status != EventFailed {
		t.Fatalf("event status = %s, want failed", ev.Status)
	}
}

func TestGenerateDispatchesDerivedAlerts(t *testing.T) {
	store := newFakeStore()
	check := testCheck()
	// q1 is critical with requires_ok, so a false answer is a violation.
	check.Answers = json.RawMessage(`{"q1": false, "q2": false}`)
	checks := &fakeChecks{check: check}
	dispatcher := &fakeDispatcher{}
	p := newTestPipeline(store, checks, &fakeArtifacts{}, dispatcher)

	report, err := p.Generate(context.Background(), check.ID, Author{Email: "x@example.com"}, EventManual, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(dispatcher.batches) != 1 {
		t.Fatalf("dispatcher batches = %d, want 1", len(dispatcher.batches))
	}
	batch := dispatcher.batches[0]
	// Both answers false: score 0 is below the floor, so the critical
	// violation alert is joined by a low_score warning.
	if len(batch) != 2 {
		t.Fatalf("alert batch size = %d, want 2", len(batch))
	}
	if batch[0].Severity != alerts.SeverityCritical || batch[0].Category != alerts.CategoryFailedCheck {
		t.Fatalf("first alert = %s/%s, want CRITICAL/failed_check", batch[0].Severity, batch[0].Category)
	}
	if batch[1].Severity != alerts.SeverityWarning || batch[1].Category != alerts.CategoryLowScore {
		t.Fatalf("second alert = %s/%s, want WARNING/low_score", batch[1].Severity, batch[1].Category)
	}

	var meta metadataSnapshot
	if err := json.Unmarshal(report.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Analytics.CriticalViolationsCount != 1 {
		t.Fatalf("critical violations in metadata = %d, want 1", meta.Analytics.CriticalViolationsCount)
	}
	if len(meta.Tickets) != 2 {
		t.Fatalf("tickets in metadata = %d, want 2", len(meta.Tickets))
	}
}

func TestGenerateSkipsDispatchWhenDisabled(t *testing.T) {
	store := newFakeStore()
	check := testCheck()
	check.Answers = json.RawMessage(`{"q1": false, "q2": true}`)
	checks := &fakeChecks{check: check}
	dispatcher := &fakeDispatcher{}
	p := newTestPipeline(store, checks, &fakeArtifacts{}, dispatcher)

	if _, err := p.Generate(context.Background(), check.ID, Author{Email: "x@example.com"}, EventScheduled, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(dispatcher.batches) != 0 {
		t.Fatalf("dispatcher was called %d times, want 0", len(dispatcher.batches))
	}
}
