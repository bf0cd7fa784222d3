package registry

import (
	"context"
	"fmt"
	"time"
)

// runPoller drives one query from RUNNING to a terminal status. It is
// always started as its own goroutine by ExecuteQuery and always closes
// done on exit, regardless of outcome, so Cancel/Close/PruneExpired can
// join it deterministically.
func (r *QueryRegistry) runPoller(ctx context.Context, queryID string, done chan struct{}) {
	defer close(done)
	r.pollUntilDone(ctx, queryID)
}

func (r *QueryRegistry) pollUntilDone(ctx context.Context, queryID string) {
	for {
		r.mu.Lock()
		rec, ok := r.store[queryID]
		if !ok {
			r.mu.Unlock()
			return
		}
		if rec.Runtime != nil && rec.Runtime.Canceled {
			r.mu.Unlock()
			return
		}
		startedAt := rec.StartedAt
		timeout := rec.Options.QueryTimeout
		pollInterval := rec.Options.PollInterval
		sfqid := ""
		if rec.Runtime != nil {
			sfqid = rec.Runtime.SFQID
		}
		conn := Connection(nil)
		if rec.Runtime != nil {
			conn = rec.Runtime.Connection
		}
		r.mu.Unlock()

		if isTimeoutExceeded(startedAt, timeout) {
			r.handleTimeout(queryID)
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		outcome, err := r.checkStatus(ctx, conn, sfqid)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("checking query status failed", "query_id", queryID, "sfqid", sfqid, "op", "check_status", "err", err)
			r.setFailed(queryID, ErrorKindInternal, fmt.Errorf("checking query status: %w", err))
			return
		}
		if outcome.Failed {
			r.setExecutionFailed(queryID, outcome)
			return
		}
		if !outcome.Running {
			r.handleCompletion(ctx, queryID)
			return
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *QueryRegistry) checkStatus(ctx context.Context, conn Connection, sfqid string) (StatusOutcome, error) {
	var outcome StatusOutcome
	err := r.executor.Run(ctx, func() error {
		var statusErr error
		outcome, statusErr = r.driver.CheckStatus(ctx, conn, sfqid)
		return statusErr
	})
	return outcome, err
}

// isTimeoutExceeded reports whether a RUNNING query has exceeded its
// configured timeout. A query that has not started yet (startedAt is
// zero) can never time out here.
func isTimeoutExceeded(startedAt time.Time, timeout *time.Duration) bool {
	if timeout == nil || startedAt.IsZero() {
		return false
	}
	return time.Since(startedAt) > *timeout
}

func (r *QueryRegistry) handleTimeout(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.store[queryID]
	if !ok {
		return
	}
	rec.markTimeout()
	r.closeConnectionLocked(rec)
}

func (r *QueryRegistry) setFailed(queryID string, kind string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.store[queryID]
	if !ok {
		return
	}
	rec.markFailed(toErrorInfo(kind, err))
	r.closeConnectionLocked(rec)
}

// setExecutionFailed finalizes queryID as a FAILED, kind="execution"
// record from a terminal error Snowflake itself reported, preserving the
// driver's message and code verbatim rather than an error encountered
// fetching or parsing a result set.
func (r *QueryRegistry) setExecutionFailed(queryID string, outcome StatusOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.store[queryID]
	if !ok {
		return
	}
	errInfo := ErrorInfo{Kind: ErrorKindExecution, Message: outcome.FailureMessage}
	if outcome.FailureCode != "" {
		code := outcome.FailureCode
		errInfo.Code = &code
	}
	rec.markFailed(errInfo)
	r.closeConnectionLocked(rec)
}

func (r *QueryRegistry) handleCompletion(ctx context.Context, queryID string) {
	r.mu.Lock()
	rec, ok := r.store[queryID]
	if !ok {
		r.mu.Unlock()
		return
	}
	sfqid := ""
	var conn Connection
	maxRows := DefaultMaxInlineRows
	if rec.Runtime != nil {
		sfqid = rec.Runtime.SFQID
		conn = rec.Runtime.Connection
	}
	if rec.Options.MaxInlineRows != nil {
		maxRows = *rec.Options.MaxInlineRows
	}
	r.mu.Unlock()

	var rows []map[string]any
	var columns []ColumnMeta
	var rowCount int
	err := r.executor.Run(ctx, func() error {
		var fetchErr error
		rows, columns, rowCount, fetchErr = r.driver.FetchResults(ctx, conn, sfqid, maxRows)
		return fetchErr
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok = r.store[queryID]
	if !ok {
		return
	}
	if err != nil {
		rec.markFailed(toErrorInfo(ErrorKindParseResult, fmt.Errorf("fetching results: %w", err)))
	} else {
		rec.markSucceeded(rows, columns, rowCount)
	}
	r.closeConnectionLocked(rec)
}
