package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrSQLEmpty is returned by ExecuteQuery when sql is empty or whitespace.
var ErrSQLEmpty = errors.New("sql must not be empty")

// QueryRegistry tracks every in-flight and recently-completed query
// submitted through ExecuteQuery. One mutex protects the entire store;
// it is held only for O(1) critical sections — every blocking driver
// call happens outside the lock.
type QueryRegistry struct {
	mu    sync.Mutex
	store map[string]*QueryRecord

	driver   Driver
	executor *BlockingExecutor
	logger   *slog.Logger

	defaultTTL time.Duration
	closed     bool
}

// NewRegistry builds a QueryRegistry. executor bounds concurrent blocking
// driver calls; if nil, a default-sized executor is created.
func NewRegistry(driver Driver, executor *BlockingExecutor, logger *slog.Logger) *QueryRegistry {
	if executor == nil {
		executor = NewBlockingExecutor(DefaultMaxConcurrentBlockingCalls)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryRegistry{
		store:      make(map[string]*QueryRecord),
		driver:     driver,
		executor:   executor,
		logger:     logger,
		defaultTTL: DefaultTTL,
	}
}

// ExecuteQuery submits sql for asynchronous execution and returns a
// query id immediately, before the query finishes running.
//
// A failure to connect or submit never surfaces as a returned error once
// the record exists: the record is marked FAILED and its id is returned,
// so callers read every failure mode uniformly through GetSnapshot and
// FetchResult. ExecuteQuery only returns an error for a precondition it
// can check before any record or connection is created.
func (r *QueryRegistry) ExecuteQuery(ctx context.Context, sql string, options *QueryOptions) (string, error) {
	if isBlank(sql) {
		return "", ErrSQLEmpty
	}

	opts := QueryOptions{}
	if options != nil {
		opts = *options
	}
	opts = opts.withDefaults()

	queryID := uuid.NewString()
	now := time.Now()
	rec := &QueryRecord{
		QueryID:      queryID,
		SQL:          sql,
		Status:       StatusPending,
		CreatedAt:    now,
		Options:      opts,
		TTLExpiresAt: now.Add(r.defaultTTL),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", errors.New("registry is closed")
	}
	r.store[queryID] = rec
	r.mu.Unlock()

	conn, sfqid, kind, err := r.startExecution(ctx, sql)
	if err != nil {
		info := toErrorInfo(kind, err)
		if info.Kind == ErrorKindInternal {
			r.logger.Error("starting query failed", "query_id", queryID, "op", "start_execution", "err", err)
		}
		r.mu.Lock()
		rec.markFailed(info)
		r.mu.Unlock()
		return queryID, nil
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	rec.Runtime = &QueryRuntime{
		SFQID:      sfqid,
		Connection: conn,
		Cancel:     cancel,
		Done:       done,
	}
	rec.markRunning(sfqid)
	r.mu.Unlock()

	go r.runPoller(pollCtx, queryID, done)

	return queryID, nil
}

// startExecution connects and submits sql off the registry's lock, using
// the bounded blocking executor. kind identifies which step failed
// (ErrorKindConnect or ErrorKindSubmit), so the caller can classify the
// resulting ErrorInfo correctly; it is empty when err is nil.
func (r *QueryRegistry) startExecution(ctx context.Context, sql string) (conn Connection, sfqid string, kind string, err error) {
	err = r.executor.Run(ctx, func() error {
		c, connErr := r.driver.Connect(ctx)
		if connErr != nil {
			kind = ErrorKindConnect
			return fmt.Errorf("connecting: %w", connErr)
		}
		id, submitErr := r.driver.SubmitAsync(ctx, c, sql)
		if submitErr != nil {
			kind = ErrorKindSubmit
			_ = c.Close()
			return fmt.Errorf("submitting query: %w", submitErr)
		}
		conn = c
		sfqid = id
		return nil
	})
	return conn, sfqid, kind, err
}

// Cancel requests cancellation of queryID. It returns false if the query
// is unknown or already in a terminal state. Cancellation joins the
// poller goroutine before the record's original connection is closed, so
// the poller never observes a closed connection underneath it.
func (r *QueryRegistry) Cancel(ctx context.Context, queryID string) (bool, error) {
	r.mu.Lock()
	rec, ok := r.store[queryID]
	if !ok || rec.isCompleted() {
		r.mu.Unlock()
		return false, nil
	}
	rec.requestCancellation()
	rt := rec.Runtime
	r.mu.Unlock()

	if rt != nil && rt.Cancel != nil {
		rt.Cancel()
	}
	if rt != nil && rt.Done != nil {
		select {
		case <-rt.Done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	sfqid := ""
	if rt != nil {
		sfqid = rt.SFQID
	}
	if sfqid != "" {
		err := r.executor.Run(ctx, func() error { return r.driver.CancelQuery(ctx, sfqid) })
		if err != nil {
			r.logger.Error("cancel query on snowflake failed", "query_id", queryID, "sfqid", sfqid, "err", err)
			return false, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !rec.isCompleted() {
		rec.markCanceled()
	}
	r.closeConnectionLocked(rec)
	return true, nil
}

// GetSnapshot returns a point-in-time, read-only view of queryID.
func (r *QueryRegistry) GetSnapshot(queryID string) (*QuerySnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.store[queryID]
	if !ok {
		return nil, false
	}
	return snapshotFrom(rec), true
}

// FetchResult returns a page of queryID's inline results. It returns
// false if the query is unknown, still pending/running, or otherwise has
// no inline result set yet (e.g. it failed before producing one).
func (r *QueryRegistry) FetchResult(queryID string, offset, limit int) (*QueryPage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.store[queryID]
	if !ok {
		return nil, false
	}
	if rec.Status == StatusPending || rec.Status == StatusRunning {
		return nil, false
	}
	if rec.ResultMeta == nil {
		return nil, false
	}

	// stored is how many rows the poller actually cached in memory
	// (capped at the query's max_inline_rows); total is the true
	// server-side row count, which can exceed stored.
	stored := len(rec.ResultInline)
	total := rec.ResultMeta.RowCount

	if offset < 0 {
		offset = 0
	}
	if offset > stored {
		offset = stored
	}

	var rows []map[string]any
	hasMore := false
	if limit <= 0 {
		rows = rec.ResultInline[offset:]
	} else {
		end := offset + limit
		if end > stored {
			end = stored
		}
		rows = rec.ResultInline[offset:end]
		hasMore = end < stored
	}

	return &QueryPage{
		QueryID:   queryID,
		Rows:      rows,
		Columns:   rec.ResultMeta.Columns,
		TotalRows: total,
		Offset:    offset,
		Limit:     limit,
		HasMore:   hasMore,
	}, true
}

// ListQueries returns snapshots of every tracked query, optionally
// filtered to a single status.
func (r *QueryRegistry) ListQueries(statusFilter *QueryStatus) []*QuerySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]*QuerySnapshot, 0, len(r.store))
	for _, rec := range r.store {
		if statusFilter != nil && rec.Status != *statusFilter {
			continue
		}
		snapshots = append(snapshots, snapshotFrom(rec))
	}
	return snapshots
}

// PruneExpired removes every record whose TTL has elapsed, canceling any
// poller still running for it first, and returns how many were removed.
func (r *QueryRegistry) PruneExpired(ctx context.Context) int {
	now := time.Now()

	r.mu.Lock()
	var expired []*QueryRecord
	for id, rec := range r.store {
		if !rec.TTLExpiresAt.IsZero() && !rec.TTLExpiresAt.After(now) {
			expired = append(expired, rec)
			_ = id
		}
	}
	for _, rec := range expired {
		if rec.Runtime != nil && rec.Runtime.Cancel != nil {
			rec.Runtime.Cancel()
		}
	}
	r.mu.Unlock()

	for _, rec := range expired {
		if rec.Runtime != nil && rec.Runtime.Done != nil {
			<-rec.Runtime.Done
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range expired {
		r.closeConnectionLocked(rec)
		delete(r.store, rec.QueryID)
	}
	return len(expired)
}

// Close cancels every in-flight poller, waits for all of them to exit,
// closes every remaining connection, and empties the registry. It is
// safe to call more than once.
func (r *QueryRegistry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	var dones []chan struct{}
	for _, rec := range r.store {
		if rec.Runtime == nil {
			continue
		}
		if rec.Runtime.Cancel != nil {
			rec.Runtime.Cancel()
		}
		if rec.Runtime.Done != nil {
			dones = append(dones, rec.Runtime.Done)
		}
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, done := range dones {
		d := done
		g.Go(func() error {
			select {
			case <-d:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.store {
		r.closeConnectionLocked(rec)
	}
	r.store = make(map[string]*QueryRecord)
	return nil
}

// closeConnectionLocked closes rec's connection, if any. Callers must
// hold r.mu.
func (r *QueryRegistry) closeConnectionLocked(rec *QueryRecord) {
	if rec.Runtime == nil || rec.Runtime.Connection == nil {
		return
	}
	if err := rec.Runtime.Connection.Close(); err != nil {
		r.logger.Warn("closing connection", "query_id", rec.QueryID, "err", err)
	}
	rec.Runtime.Connection = nil
}

// toErrorInfo builds an ErrorInfo tagged with one of the six taxonomy
// kinds (see the ErrorKind* constants), carrying err's message verbatim.
func toErrorInfo(kind string, err error) ErrorInfo {
	if kind == "" {
		kind = ErrorKindInternal
	}
	return ErrorInfo{Kind: kind, Message: err.Error()}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
