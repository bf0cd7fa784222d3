package audit

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// EventType categorizes the query registry operation an Event records.
type EventType string

const (
	// EventExecuteQuery records a call to ExecuteQuery.
	EventExecuteQuery EventType = "execute_query"

	// EventCancelQuery records a call to Cancel.
	EventCancelQuery EventType = "cancel_query"

	// EventFetchResult records a call to FetchResult.
	EventFetchResult EventType = "fetch_query_result"

	// EventPruneExpired records one TTL sweep removing expired queries.
	EventPruneExpired EventType = "prune_expired"
)

// NewEvent creates a new audit event for operation.
func NewEvent(operation EventType) *Event {
	return &Event{
		ID:        generateEventID(),
		Timestamp: time.Now(),
		Operation: operation,
	}
}

// WithQuery adds the query id and, for execute_query events, the SQL text.
func (e *Event) WithQuery(queryID, sqlText string) *Event {
	e.QueryID = queryID
	e.SQL = sqlText
	return e
}

// WithUser adds the caller's user id, when known.
func (e *Event) WithUser(userID string) *Event {
	e.UserID = userID
	return e
}

// WithStatus adds the query's resulting lifecycle status.
func (e *Event) WithStatus(status string) *Event {
	e.Status = status
	return e
}

// WithParameters adds free-form parameters to the event.
func (e *Event) WithParameters(params map[string]any) *Event {
	e.Parameters = params
	return e
}

// WithResult adds result information to the event.
func (e *Event) WithResult(success bool, errorMsg string, durationMS int64) *Event {
	e.Success = success
	e.ErrorMessage = errorMsg
	e.DurationMS = durationMS
	return e
}

// WithRequestID adds a request ID to the event.
func (e *Event) WithRequestID(requestID string) *Event {
	e.RequestID = requestID
	return e
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// SanitizeParameters removes sensitive parameters from the event.
func SanitizeParameters(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	sensitiveKeys := map[string]bool{
		"password":      true,
		"secret":        true,
		"token":         true,
		"api_key":       true,
		"authorization": true,
		"credentials":   true,
	}

	sanitized := make(map[string]any)
	for k, v := range params {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}
