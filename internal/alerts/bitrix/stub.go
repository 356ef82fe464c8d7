package bitrix

import (
	"context"
	"fmt"
	"sync"

	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/platform/logger"
)

// Stub is the offline TicketSink: it answers every call with a deterministic
// fake ticket id and records the exchange in the call log, so environments
// without a live portal still exercise the full dispatch path.
type Stub struct {
	mu      sync.Mutex
	counter int
	callLog *CallLog
	log     *logger.Logger
}

// NewStub creates a stub ticket sink.
func NewStub(callLog *CallLog, log *logger.Logger) *Stub {
	return &Stub{callLog: callLog, log: log}
}

func (s *Stub) nextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return fmt.Sprintf("stub_task_%d", s.counter)
}

// CreateTicket answers with a fresh stub ticket id.
func (s *Stub) CreateTicket(ctx context.Context, payload alerts.TicketPayload) (alerts.TicketResult, error) {
	result := alerts.TicketResult{OK: true, ExternalID: s.nextID()}
	s.record(ctx, payload, result)
	return result, nil
}

// UpdateTicket acknowledges the update against the given id.
func (s *Stub) UpdateTicket(ctx context.Context, externalID string, payload alerts.TicketPayload) (alerts.TicketResult, error) {
	result := alerts.TicketResult{OK: true, ExternalID: externalID}
	s.record(ctx, payload, result)
	return result, nil
}

func (s *Stub) record(ctx context.Context, payload alerts.TicketPayload, result alerts.TicketResult) {
	if s.callLog == nil {
		return
	}
	if err := s.callLog.Record(ctx, payload, result, ModeStub); err != nil && s.log != nil {
		s.log.Warn("ticket call log write failed", "error", err)
	}
}

var _ alerts.TicketSink = (*Stub)(nil)
