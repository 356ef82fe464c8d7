package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TicketPayload is the sink-facing representation of an alert.
type TicketPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	Status      string `json:"status"`
}

// TicketResult is the sink's answer for a create or update call.
type TicketResult struct {
	OK         bool   `json:"ok"`
	ExternalID string `json:"external_id"`
}

// TicketSink is the external ticketing capability. A stub implementation is
// swappable for a live one by configuration without touching pipeline code.
type TicketSink interface {
	CreateTicket(ctx context.Context, payload TicketPayload) (TicketResult, error)
	UpdateTicket(ctx context.Context, externalID string, payload TicketPayload) (TicketResult, error)
}

// TransientError marks a delivery failure worth retrying (timeouts, 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient delivery error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a retryable delivery failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// BuildTicketPayload renders an alert into a sink payload. The description
// carries the identifying context and any metadata not already consumed.
func BuildTicketPayload(alert *Alert, baseURL string) TicketPayload {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: %s\n\n", alert.Severity, alert.Message)
	fmt.Fprintf(&b, "Category: %s\n", alert.Category)

	if alert.CheckInstanceID != nil {
		fmt.Fprintf(&b, "Check ID: %s\n", alert.CheckInstanceID)
		if baseURL != "" {
			fmt.Fprintf(&b, "Link: %s/checks/%s\n", strings.TrimRight(baseURL, "/"), alert.CheckInstanceID)
		}
	}
	if alert.BrigadeID != nil {
		fmt.Fprintf(&b, "Brigade ID: %s\n", alert.BrigadeID)
	}
	if alert.DepartmentID != nil {
		fmt.Fprintf(&b, "Department: %s\n", *alert.DepartmentID)
	}

	if len(alert.Metadata) > 0 {
		b.WriteString("\nAdditional information:\n")
		for key, value := range alert.Metadata {
			if key == MetadataTicketID {
				continue
			}
			fmt.Fprintf(&b, "- %s: %v\n", key, value)
		}
	}

	tags := []string{"MantaQC", string(alert.Severity), alert.Category}
	if alert.DepartmentID != nil {
		tags = append(tags, *alert.DepartmentID)
	}

	return TicketPayload{
		Title:       fmt.Sprintf("[MantaQC] %s: %s", alert.Category, truncate(alert.Message, 50)),
		Description: b.String(),
		Tags:        strings.Join(tags, ", "),
		Status:      "PENDING",
	}
}
