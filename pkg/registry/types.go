// Package registry implements the in-process asynchronous query registry:
// a concurrent state machine that tracks Snowflake queries submitted in
// async mode from creation through a terminal status, polls each one on
// its own goroutine, and serves paginated results back to callers.
package registry

import (
	"context"
	"time"
)

// QueryStatus is the lifecycle state of a tracked query.
type QueryStatus string

const (
	StatusPending   QueryStatus = "pending"
	StatusRunning   QueryStatus = "running"
	StatusSucceeded QueryStatus = "succeeded"
	StatusFailed    QueryStatus = "failed"
	StatusCanceled  QueryStatus = "canceled"
	StatusTimeout   QueryStatus = "timeout"
)

// IsTerminal reports whether the status will never change again.
func (s QueryStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled, StatusTimeout:
		return true
	default:
		return false
	}
}

// Defaults for QueryOptions, matching the external interface contract.
const (
	DefaultMaxInlineRows = 1000
	DefaultPollInterval  = time.Second
	DefaultTTL           = 24 * time.Hour
)

// Error taxonomy tags carried verbatim in ErrorInfo.Kind.
const (
	ErrorKindConnect     = "connect"
	ErrorKindSubmit      = "submit"
	ErrorKindExecution   = "execution"
	ErrorKindTimeout     = "timeout"
	ErrorKindInternal    = "internal"
	ErrorKindParseResult = "parse_result"
)

// QueryOptions customizes how a single query is executed and tracked.
type QueryOptions struct {
	// QueryTimeout bounds how long a query may remain RUNNING before it is
	// forced into the TIMEOUT status. Nil means no timeout.
	QueryTimeout *time.Duration
	// MaxInlineRows caps how many result rows are held in memory for this
	// query. Nil means DefaultMaxInlineRows; an explicit 0 is a real cap
	// (no rows held inline, only the server-side row count is reported).
	MaxInlineRows *int
	// PollInterval is the delay between status checks while RUNNING. Zero
	// means DefaultPollInterval.
	PollInterval time.Duration
}

// withDefaults returns a copy of o with unset fields replaced by defaults.
// MaxInlineRows is only defaulted when nil, so an explicit 0 survives.
func (o QueryOptions) withDefaults() QueryOptions {
	if o.MaxInlineRows == nil {
		rows := DefaultMaxInlineRows
		o.MaxInlineRows = &rows
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// ColumnMeta describes one column of a result set.
type ColumnMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResultMeta summarizes a completed query's result set without carrying
// the rows themselves.
type ResultMeta struct {
	RowCount int          `json:"row_count"`
	Columns  []ColumnMeta `json:"columns"`
}

// ErrorInfo carries a terminal failure in a JSON-friendly shape.
type ErrorInfo struct {
	Kind    string  `json:"kind"`
	Message string  `json:"message"`
	Code    *string `json:"code,omitempty"`
}

// SnowflakeInfo surfaces the Snowflake-side query identifier, once known.
type SnowflakeInfo struct {
	SFQID string `json:"sfqid,omitempty"`
}

// QueryRuntime holds the live, non-serializable state of a query that is
// still being executed: its driver connection, the cancellation hook for
// its poller goroutine, and the channel that goroutine closes on exit.
//
// Runtime is nil before execution starts, and stays nil for a query whose
// connect or submit step failed. Once a query is finalized, Runtime is
// kept with Connection set to nil, so its SFQID remains visible in
// snapshots; Cancel and Done are not cleared.
type QueryRuntime struct {
	SFQID      string
	Connection Connection
	Cancel     context.CancelFunc
	Done       chan struct{}
	Canceled   bool
}

// QueryRecord is the registry's internal, mutable record for one query.
// All access to a QueryRecord must happen while the registry's mutex is
// held, except for the registry's own blocking driver calls, which are
// deliberately made outside the lock.
type QueryRecord struct {
	QueryID string
	SQL     string
	Status  QueryStatus

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	Options QueryOptions

	ResultMeta   *ResultMeta
	ResultInline []map[string]any
	Error        *ErrorInfo

	TTLExpiresAt time.Time

	CancelRequested bool

	Runtime *QueryRuntime
}

func (r *QueryRecord) markRunning(sfqid string) {
	r.Status = StatusRunning
	r.StartedAt = time.Now()
	if r.Runtime != nil {
		r.Runtime.SFQID = sfqid
	}
}

func (r *QueryRecord) markSucceeded(rows []map[string]any, columns []ColumnMeta, rowCount int) {
	r.Status = StatusSucceeded
	r.FinishedAt = time.Now()
	if rows == nil {
		rows = []map[string]any{}
	}
	r.ResultInline = rows
	r.ResultMeta = &ResultMeta{RowCount: rowCount, Columns: columns}
}

func (r *QueryRecord) markFailed(errInfo ErrorInfo) {
	r.Status = StatusFailed
	r.FinishedAt = time.Now()
	r.Error = &errInfo
}

func (r *QueryRecord) markCanceled() {
	r.Status = StatusCanceled
	r.FinishedAt = time.Now()
}

func (r *QueryRecord) markTimeout() {
	r.Status = StatusTimeout
	r.FinishedAt = time.Now()
	r.Error = &ErrorInfo{Kind: ErrorKindTimeout, Message: "query execution exceeded timeout limit"}
}

func (r *QueryRecord) requestCancellation() {
	r.CancelRequested = true
	if r.Runtime != nil {
		r.Runtime.Canceled = true
	}
}

func (r *QueryRecord) isCompleted() bool {
	return r.Status.IsTerminal()
}

func (r *QueryRecord) canBeCanceled() bool {
	return !r.isCompleted()
}

// QuerySnapshot is the read-only, externally-serializable view of a query
// returned by GetSnapshot and ListQueries.
type QuerySnapshot struct {
	QueryID              string         `json:"query_id"`
	SQL                  string         `json:"sql"`
	Status               QueryStatus    `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	FinishedAt           *time.Time     `json:"finished_at,omitempty"`
	UpdatedAt            time.Time      `json:"updated_at"`
	ExecutionTimeSeconds *float64       `json:"execution_time_seconds,omitempty"`
	ResultMeta           *ResultMeta    `json:"result_meta,omitempty"`
	Error                *ErrorInfo     `json:"error,omitempty"`
	Snowflake            *SnowflakeInfo `json:"snowflake,omitempty"`
}

// QueryPage is one page of a query's inline results.
type QueryPage struct {
	QueryID   string           `json:"query_id"`
	Rows      []map[string]any `json:"rows"`
	Columns   []ColumnMeta     `json:"columns"`
	TotalRows int              `json:"total_rows"`
	Offset    int              `json:"offset"`
	Limit     int              `json:"limit,omitempty"`
	HasMore   bool             `json:"has_more"`
}

func snapshotFrom(rec *QueryRecord) *QuerySnapshot {
	snap := &QuerySnapshot{
		QueryID:   rec.QueryID,
		SQL:       rec.SQL,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.CreatedAt,
	}
	if !rec.StartedAt.IsZero() {
		t := rec.StartedAt
		snap.StartedAt = &t
		snap.UpdatedAt = t
	}
	if !rec.FinishedAt.IsZero() {
		t := rec.FinishedAt
		snap.FinishedAt = &t
		snap.UpdatedAt = t
	}
	if !rec.StartedAt.IsZero() {
		end := time.Now()
		if !rec.FinishedAt.IsZero() {
			end = rec.FinishedAt
		}
		secs := end.Sub(rec.StartedAt).Seconds()
		snap.ExecutionTimeSeconds = &secs
	}
	snap.ResultMeta = rec.ResultMeta
	snap.Error = rec.Error
	if rec.Runtime != nil && rec.Runtime.SFQID != "" {
		snap.Snowflake = &SnowflakeInfo{SFQID: rec.Runtime.SFQID}
	}
	return snap
}
