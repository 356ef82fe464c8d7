// Package alerts converts analytics anomalies into deduplicated outbound
// tickets, with bounded-retry delivery to an external ticket sink.
package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Severity orders alert importance. Alerts below the configured floor are
// dropped before dispatch.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast reports whether s ranks at or above the floor.
func (s Severity) AtLeast(floor Severity) bool {
	return severityRank[s] >= severityRank[floor]
}

// ParseSeverity maps a config string to a Severity, defaulting to WARNING.
func ParseSeverity(v string) Severity {
	s := Severity(strings.ToUpper(strings.TrimSpace(v)))
	if _, ok := severityRank[s]; !ok {
		return SeverityWarning
	}
	return s
}

// Alert categories.
const (
	CategoryFailedCheck = "failed_check"
	CategoryLowScore    = "low_score"
	CategoryDataQuality = "data_quality"
)

// MetadataTicketID is the metadata key holding the external ticket id
// written back after a successful dispatch.
const MetadataTicketID = "ticket_id"

// Alert is one analytics anomaly bound for the external ticket sink.
type Alert struct {
	Severity        Severity       `json:"severity"`
	Category        string         `json:"category"`
	Message         string         `json:"message"`
	CheckInstanceID *uuid.UUID     `json:"check_instance_id,omitempty"`
	BrigadeID       *uuid.UUID     `json:"brigade_id,omitempty"`
	DepartmentID    *string        `json:"department_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Hash fingerprints the alert's identifying fields. Logically identical
// alerts always produce the same hash, which drives in-batch deduplication.
func (a *Alert) Hash() string {
	parts := []string{
		string(a.Severity),
		a.Category,
		uuidOrEmpty(a.CheckInstanceID),
		uuidOrEmpty(a.BrigadeID),
		truncate(a.Message, 100),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

func uuidOrEmpty(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
