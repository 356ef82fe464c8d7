package alerts

import (
	"context"

	"mantaqc_backend/platform/logger"
)

// DispatchResult records the outcome for a single alert in a batch.
type DispatchResult struct {
	OK         bool   `json:"ok"`
	ExternalID string `json:"external_id,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Processor deduplicates alert batches and dispatches them to the ticket
// sink. Deduplication is scoped to a single batch; there is no cross-run
// memory of previously created tickets.
type Processor struct {
	sink    TicketSink
	retry   RetryPolicy
	floor   Severity
	baseURL string
	log     *logger.Logger
}

// NewProcessor creates the alert processor.
func NewProcessor(sink TicketSink, retry RetryPolicy, floor Severity, baseURL string, log *logger.Logger) *Processor {
	return &Processor{
		sink:    sink,
		retry:   retry,
		floor:   floor,
		baseURL: baseURL,
		log:     log,
	}
}

// Process dispatches the batch and returns per-hash results. Alerts below
// the severity floor are dropped. With dedupe enabled, an alert whose hash
// was already seen in this batch is recorded as skipped and not dispatched.
// Delivery failures are recorded per alert and never abort the batch.
// Successful dispatches write the external ticket id into the alert's
// metadata for downstream reference.
func (p *Processor) Process(ctx context.Context, batch []*Alert, dedupe bool) map[string]DispatchResult {
	results := make(map[string]DispatchResult)
	seen := make(map[string]struct{})

	for _, alert := range batch {
		if !alert.Severity.AtLeast(p.floor) {
			continue
		}

		hash := alert.Hash()
		if dedupe {
			if _, dup := seen[hash]; dup {
				results[hash] = DispatchResult{Skipped: true, Reason: "duplicate"}
				continue
			}
		}
		seen[hash] = struct{}{}

		payload := BuildTicketPayload(alert, p.baseURL)

		var ticket TicketResult
		err := p.retry.Do(ctx, func(ctx context.Context) error {
			var callErr error
			ticket, callErr = p.sink.CreateTicket(ctx, payload)
			return callErr
		})
		if err != nil {
			p.log.Error("alert dispatch failed",
				"hash", hash,
				"category", alert.Category,
				"error", err,
			)
			results[hash] = DispatchResult{Error: err.Error()}
			continue
		}

		results[hash] = DispatchResult{OK: ticket.OK, ExternalID: ticket.ExternalID}

		if ticket.OK && ticket.ExternalID != "" {
			if alert.Metadata == nil {
				alert.Metadata = map[string]any{}
			}
			alert.Metadata[MetadataTicketID] = ticket.ExternalID
		}
	}

	return results
}
