// Package audit records query registry operations for later review: who
// submitted, canceled, or fetched a query, what it cost, and whether it
// succeeded.
package audit

import (
	"context"
	"time"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event Event) error

	// Query retrieves audit events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Close releases resources.
	Close() error
}

// Event represents one audited query registry operation.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Operation    EventType      `json:"operation"`
	QueryID      string         `json:"query_id,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	SQL          string         `json:"sql,omitempty"`
	Status       string         `json:"status,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	QueryID   string
	UserID    string
	Operation EventType
	Success   *bool
	Limit     int
	Offset    int
}

// Config configures audit logging.
type Config struct {
	Enabled       bool
	RetentionDays int
}
