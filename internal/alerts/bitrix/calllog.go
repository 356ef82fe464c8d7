package bitrix

import (
	"context"
	"encoding/json"

	"mantaqc_backend/internal/alerts"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Mode identifies which sink variant produced a call log entry.
type Mode string

const (
	ModeStub Mode = "stub"
	ModeLive Mode = "live"
)

// CallLog persists every ticket sink exchange for audit and debugging.
type CallLog struct {
	pool *pgxpool.Pool
}

// NewCallLog creates the call log repository.
func NewCallLog(pool *pgxpool.Pool) *CallLog {
	return &CallLog{pool: pool}
}

// Record appends one exchange. Failures are the caller's to swallow; the
// call log must never fail a dispatch.
func (l *CallLog) Record(ctx context.Context, payload any, result alerts.TicketResult, mode Mode) error {
	if l == nil || l.pool == nil {
		return nil
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = l.pool.Exec(ctx,
		`INSERT INTO ticket_call_logs (payload, response, mode)
		 VALUES ($1, $2, $3)`,
		payloadJSON, resultJSON, string(mode),
	)
	return err
}
