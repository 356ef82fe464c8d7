package alerts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mantaqc_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeSink fails the first failures calls with the given error, then succeeds.
type fakeSink struct {
	calls    int
	failures int
	err      error
}

func (f *fakeSink) CreateTicket(context.Context, TicketPayload) (TicketResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return TicketResult{}, f.err
	}
	return TicketResult{OK: true, ExternalID: fmt.Sprintf("ticket-%d", f.calls)}, nil
}

func (f *fakeSink) UpdateTicket(_ context.Context, id string, _ TicketPayload) (TicketResult, error) {
	return TicketResult{OK: true, ExternalID: id}, nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func newProcessor(sink TicketSink) *Processor {
	return NewProcessor(sink, fastRetry(), SeverityWarning, "http://qc.local", logger.New("development"))
}

func warningAlert(msg string) *Alert {
	return &Alert{Severity: SeverityWarning, Category: CategoryLowScore, Message: msg}
}

func TestHash_StableForIdenticalAlerts(t *testing.T) {
	checkID := uuid.New()
	brigadeID := uuid.New()

	build := func() *Alert {
		return &Alert{
			Severity:        SeverityCritical,
			Category:        CategoryFailedCheck,
			Message:         "Critical violation: fire exit blocked",
			CheckInstanceID: &checkID,
			BrigadeID:       &brigadeID,
		}
	}

	if build().Hash() != build().Hash() {
		t.Fatal("identical alerts must hash identically")
	}
	if len(build().Hash()) != 16 {
		t.Fatalf("expected 16-char hash, got %q", build().Hash())
	}
}

func TestHash_OnlyFirst100MessageCharsCount(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}
	a := &Alert{Severity: SeverityError, Category: CategoryDataQuality, Message: string(long)}
	b := &Alert{Severity: SeverityError, Category: CategoryDataQuality, Message: string(long[:100]) + "different tail"}
	if a.Hash() != b.Hash() {
		t.Fatal("hashes must agree when the first 100 message chars agree")
	}
}

func TestProcess_DeduplicatesWithinBatch(t *testing.T) {
	sink := &fakeSink{}
	p := newProcessor(sink)

	batch := []*Alert{warningAlert("same message"), warningAlert("same message")}
	results := p.Process(context.Background(), batch, true)

	if sink.calls != 1 {
		t.Fatalf("expected a single dispatch, got %d", sink.calls)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result entry, got %d", len(results))
	}
	res := results[batch[0].Hash()]
	if res.Skipped || !res.OK {
		t.Fatalf("expected first alert dispatched, got %+v", res)
	}
}

func TestProcess_DedupeDisabledDispatchesAll(t *testing.T) {
	sink := &fakeSink{}
	p := newProcessor(sink)

	batch := []*Alert{warningAlert("same message"), warningAlert("same message")}
	p.Process(context.Background(), batch, false)

	if sink.calls != 2 {
		t.Fatalf("expected 2 dispatches with dedupe off, got %d", sink.calls)
	}
}

func TestProcess_DropsBelowSeverityFloor(t *testing.T) {
	sink := &fakeSink{}
	p := newProcessor(sink)

	batch := []*Alert{
		{Severity: SeverityInfo, Category: CategoryDataQuality, Message: "informational only"},
		warningAlert("real problem"),
	}
	results := p.Process(context.Background(), batch, true)

	if sink.calls != 1 {
		t.Fatalf("expected only the warning dispatched, got %d calls", sink.calls)
	}
	if len(results) != 1 {
		t.Fatalf("info alerts must not appear in results: %v", results)
	}
}

func TestProcess_RetriesTransientFailures(t *testing.T) {
	sink := &fakeSink{failures: 2, err: Transient(errors.New("gateway timeout"))}
	p := newProcessor(sink)

	alert := warningAlert("flaky sink")
	results := p.Process(context.Background(), []*Alert{alert}, true)

	if sink.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sink.calls)
	}
	res := results[alert.Hash()]
	if !res.OK {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	if alert.Metadata[MetadataTicketID] != "ticket-3" {
		t.Fatalf("expected ticket id written back, got %v", alert.Metadata)
	}
}

func TestProcess_TerminalFailureNotRetried(t *testing.T) {
	sink := &fakeSink{failures: 10, err: errors.New("payload rejected")}
	p := newProcessor(sink)

	alert := warningAlert("bad payload")
	results := p.Process(context.Background(), []*Alert{alert}, true)

	if sink.calls != 1 {
		t.Fatalf("terminal errors must not be retried, got %d calls", sink.calls)
	}
	if results[alert.Hash()].Error == "" {
		t.Fatal("expected the error recorded")
	}
}

func TestProcess_FailingAlertDoesNotAbortBatch(t *testing.T) {
	sink := &fakeSink{failures: 3, err: Transient(errors.New("still down"))}
	p := newProcessor(sink)

	failing := warningAlert("first alert")
	succeeding := warningAlert("second alert")
	results := p.Process(context.Background(), []*Alert{failing, succeeding}, true)

	if results[failing.Hash()].Error == "" {
		t.Fatal("expected first alert recorded as failed")
	}
	if !results[succeeding.Hash()].OK {
		t.Fatalf("expected second alert dispatched despite first failing: %+v", results)
	}
}

func TestRetryPolicy_BackoffSchedule(t *testing.T) {
	p := DefaultRetryPolicy()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestRetryPolicy_HonorsContextCancellation(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return Transient(errors.New("down"))
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}
