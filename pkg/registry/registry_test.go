package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(d Driver) *QueryRegistry {
	return NewRegistry(d, NewBlockingExecutor(4), nil)
}

func waitForStatus(t *testing.T, reg *QueryRegistry, queryID string, want QueryStatus, timeout time.Duration) *QuerySnapshot {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap, ok := reg.GetSnapshot(queryID)
		if ok && snap.Status == want {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("query %s never reached status %s", queryID, want)
	return nil
}

func TestExecuteQuery_RejectsEmptySQL(t *testing.T) {
	reg := newTestRegistry(&fakeDriver{})
	_, err := reg.ExecuteQuery(context.Background(), "   ", nil)
	if !errors.Is(err, ErrSQLEmpty) {
		t.Fatalf("expected ErrSQLEmpty, got %v", err)
	}
}

func TestExecuteQuery_SuccessLifecycle(t *testing.T) {
	var calls int
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) {
			calls++
			return StatusOutcome{Running: calls < 2}, nil
		},
		fetchFn: func(_ context.Context, _ Connection, _ string, _ int) ([]map[string]any, []ColumnMeta, int, error) {
			rows := []map[string]any{{"a": 1}, {"a": 2}}
			cols := []ColumnMeta{{Name: "a", Type: "NUMBER"}}
			return rows, cols, len(rows), nil
		},
	}
	opts := &QueryOptions{PollInterval: time.Millisecond}
	reg := newTestRegistry(d)

	queryID, err := reg.ExecuteQuery(context.Background(), "select 1", opts)
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}

	snap := waitForStatus(t, reg, queryID, StatusSucceeded, time.Second)
	if snap.ResultMeta == nil || snap.ResultMeta.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %+v", snap.ResultMeta)
	}
	if snap.Snowflake == nil || snap.Snowflake.SFQID != "sfqid-1" {
		t.Fatalf("expected sfqid recorded, got %+v", snap.Snowflake)
	}
	if snap.ExecutionTimeSeconds == nil {
		t.Fatal("expected execution time to be set")
	}

	page, ok := reg.FetchResult(queryID, 0, 0)
	if !ok {
		t.Fatal("expected FetchResult to succeed")
	}
	if page.TotalRows != 2 || len(page.Rows) != 2 || page.HasMore {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestExecuteQuery_ConnectFailureRetainsFailedRecord(t *testing.T) {
	d := &fakeDriver{
		connectFn: func(_ context.Context) (Connection, error) {
			return nil, errors.New("boom")
		},
	}
	reg := newTestRegistry(d)

	queryID, err := reg.ExecuteQuery(context.Background(), "select 1", nil)
	if err != nil {
		t.Fatalf("ExecuteQuery should not return an error on startup failure, got %v", err)
	}

	snap, ok := reg.GetSnapshot(queryID)
	if !ok {
		t.Fatal("expected the failed record to be retained")
	}
	if snap.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", snap.Status)
	}
	if snap.Error == nil || snap.Error.Message == "" {
		t.Fatalf("expected error info, got %+v", snap.Error)
	}
	if snap.Error.Kind != ErrorKindConnect {
		t.Fatalf("expected kind=%q, got %q", ErrorKindConnect, snap.Error.Kind)
	}
}

func TestExecuteQuery_SubmitFailureClosesConnection(t *testing.T) {
	conn := &fakeConn{}
	d := &fakeDriver{
		connectFn: func(_ context.Context) (Connection, error) { return conn, nil },
		submitFn: func(_ context.Context, _ Connection, _ string) (string, error) {
			return "", errors.New("submit failed")
		},
	}
	reg := newTestRegistry(d)

	queryID, err := reg.ExecuteQuery(context.Background(), "select 1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := reg.GetSnapshot(queryID)
	if snap.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", snap.Status)
	}
	if !conn.closed.Load() {
		t.Fatal("expected connection to be closed after a failed submit")
	}
	if snap.Error == nil || snap.Error.Kind != ErrorKindSubmit {
		t.Fatalf("expected kind=%q, got %+v", ErrorKindSubmit, snap.Error)
	}
}

func TestCancel_UnknownOrCompletedReturnsFalse(t *testing.T) {
	reg := newTestRegistry(&fakeDriver{})
	ok, err := reg.Cancel(context.Background(), "does-not-exist")
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestCancel_JoinsPollerThenClosesConnection(t *testing.T) {
	statusGate := make(chan struct{})
	var conn *fakeConn
	d := &fakeDriver{
		connectFn: func(_ context.Context) (Connection, error) {
			conn = &fakeConn{}
			return conn, nil
		},
		statusFn: func(ctx context.Context, _ Connection, _ string) (StatusOutcome, error) {
			select {
			case <-statusGate:
			case <-ctx.Done():
			}
			return StatusOutcome{Running: true}, nil
		},
	}
	reg := newTestRegistry(d)
	queryID, err := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	waitForStatus(t, reg, queryID, StatusRunning, time.Second)

	cancelDone := make(chan bool, 1)
	go func() {
		ok, _ := reg.Cancel(context.Background(), queryID)
		cancelDone <- ok
	}()

	// Give Cancel a moment to call requestCancellation and block on join.
	time.Sleep(20 * time.Millisecond)
	if conn != nil && conn.closed.Load() {
		t.Fatal("connection was closed before the poller observed cancellation")
	}
	close(statusGate)

	select {
	case ok := <-cancelDone:
		if !ok {
			t.Fatal("expected Cancel to return true")
		}
	case <-time.After(time.Second):
		t.Fatal("Cancel never returned")
	}

	if conn != nil && !conn.closed.Load() {
		t.Fatal("expected connection to be closed after Cancel completes")
	}
	if d.cancelCalls.Load() != 1 {
		t.Fatalf("expected exactly one CancelQuery call, got %d", d.cancelCalls.Load())
	}
	snap, _ := reg.GetSnapshot(queryID)
	if snap.Status != StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", snap.Status)
	}
}

func TestFetchResult_NotReadyWhilePending(t *testing.T) {
	statusGate := make(chan struct{})
	d := &fakeDriver{
		statusFn: func(ctx context.Context, _ Connection, _ string) (StatusOutcome, error) {
			<-statusGate
			return StatusOutcome{Running: true}, nil
		},
	}
	reg := newTestRegistry(d)
	queryID, _ := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{PollInterval: time.Millisecond})

	if _, ok := reg.FetchResult(queryID, 0, 0); ok {
		t.Fatal("expected FetchResult to report not-ready while running")
	}
	close(statusGate)
	_, _ = reg.Cancel(context.Background(), queryID)
}

func TestFetchResult_Pagination(t *testing.T) {
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) { return StatusOutcome{}, nil },
		fetchFn: func(_ context.Context, _ Connection, _ string, _ int) ([]map[string]any, []ColumnMeta, int, error) {
			rows := make([]map[string]any, 5)
			for i := range rows {
				rows[i] = map[string]any{"n": i}
			}
			return rows, []ColumnMeta{{Name: "n", Type: "NUMBER"}}, 5, nil
		},
	}
	reg := newTestRegistry(d)
	queryID, _ := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{PollInterval: time.Millisecond})
	waitForStatus(t, reg, queryID, StatusSucceeded, time.Second)

	page, ok := reg.FetchResult(queryID, 2, 2)
	if !ok {
		t.Fatal("expected page")
	}
	if len(page.Rows) != 2 || !page.HasMore || page.TotalRows != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}

	last, ok := reg.FetchResult(queryID, 4, 2)
	if !ok || last.HasMore || len(last.Rows) != 1 {
		t.Fatalf("unexpected last page: %+v", last)
	}
}

func TestExecuteQuery_SnowflakeExecutionFailurePreservesMessage(t *testing.T) {
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) {
			return StatusOutcome{
				Failed:         true,
				FailureMessage: "SQL compilation error: invalid identifier 'FOO'",
				FailureCode:    "001003",
			}, nil
		},
	}
	reg := newTestRegistry(d)
	queryID, err := reg.ExecuteQuery(context.Background(), "select foo", &QueryOptions{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}

	snap := waitForStatus(t, reg, queryID, StatusFailed, time.Second)
	if snap.Error == nil {
		t.Fatal("expected error info")
	}
	if snap.Error.Kind != ErrorKindExecution {
		t.Fatalf("expected kind=%q, got %q", ErrorKindExecution, snap.Error.Kind)
	}
	if snap.Error.Message != "SQL compilation error: invalid identifier 'FOO'" {
		t.Fatalf("expected driver message preserved verbatim, got %q", snap.Error.Message)
	}
	if snap.Error.Code == nil || *snap.Error.Code != "001003" {
		t.Fatalf("expected failure code preserved, got %+v", snap.Error.Code)
	}
}

func TestExecuteQuery_TimeoutUsesTaxonomyTag(t *testing.T) {
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) {
			return StatusOutcome{Running: true}, nil
		},
	}
	reg := newTestRegistry(d)
	timeout := time.Millisecond
	queryID, err := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{
		PollInterval: time.Millisecond,
		QueryTimeout: &timeout,
	})
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}

	snap := waitForStatus(t, reg, queryID, StatusTimeout, time.Second)
	if snap.Error == nil || snap.Error.Kind != ErrorKindTimeout {
		t.Fatalf("expected kind=%q, got %+v", ErrorKindTimeout, snap.Error)
	}
}

func TestFetchResult_ExplicitZeroMaxInlineRowsKeepsTrueTotal(t *testing.T) {
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) { return StatusOutcome{}, nil },
		fetchFn: func(_ context.Context, _ Connection, _ string, maxRows int) ([]map[string]any, []ColumnMeta, int, error) {
			if maxRows != 0 {
				t.Fatalf("expected the driver to receive maxRows=0, got %d", maxRows)
			}
			// Mirrors the real driver: the true row count survives the
			// caller-requested truncation to zero rows.
			return nil, []ColumnMeta{{Name: "n", Type: "NUMBER"}}, 5, nil
		},
	}
	reg := newTestRegistry(d)
	zero := 0
	queryID, _ := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{
		PollInterval:  time.Millisecond,
		MaxInlineRows: &zero,
	})
	waitForStatus(t, reg, queryID, StatusSucceeded, time.Second)

	page, ok := reg.FetchResult(queryID, 0, 0)
	if !ok {
		t.Fatal("expected page")
	}
	if len(page.Rows) != 0 {
		t.Fatalf("expected result_inline to be empty, got %d rows", len(page.Rows))
	}
	if page.TotalRows != 5 {
		t.Fatalf("expected total_rows to reflect the server-side count, got %d", page.TotalRows)
	}
}

func TestFetchResult_TotalRowsReflectsServerCountBeyondCap(t *testing.T) {
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) { return StatusOutcome{}, nil },
		fetchFn: func(_ context.Context, _ Connection, _ string, maxRows int) ([]map[string]any, []ColumnMeta, int, error) {
			// The server has 100 rows, but the cap truncates the in-memory
			// slice the driver returns to maxRows.
			rows := make([]map[string]any, maxRows)
			for i := range rows {
				rows[i] = map[string]any{"n": i}
			}
			return rows, []ColumnMeta{{Name: "n", Type: "NUMBER"}}, 100, nil
		},
	}
	reg := newTestRegistry(d)
	inlineCap := 10
	queryID, _ := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{
		PollInterval:  time.Millisecond,
		MaxInlineRows: &inlineCap,
	})
	waitForStatus(t, reg, queryID, StatusSucceeded, time.Second)

	page, ok := reg.FetchResult(queryID, 0, 0)
	if !ok {
		t.Fatal("expected page")
	}
	if len(page.Rows) != 10 {
		t.Fatalf("expected result_inline capped at 10, got %d", len(page.Rows))
	}
	if page.TotalRows != 100 {
		t.Fatalf("expected total_rows to report the true server-side count of 100, got %d", page.TotalRows)
	}
}

func TestExecuteQuery_FetchFailureUsesParseResultTag(t *testing.T) {
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) { return StatusOutcome{}, nil },
		fetchFn: func(_ context.Context, _ Connection, _ string, _ int) ([]map[string]any, []ColumnMeta, int, error) {
			return nil, nil, 0, errors.New("malformed result set")
		},
	}
	reg := newTestRegistry(d)
	queryID, err := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}

	snap := waitForStatus(t, reg, queryID, StatusFailed, time.Second)
	if snap.Error == nil || snap.Error.Kind != ErrorKindParseResult {
		t.Fatalf("expected kind=%q, got %+v", ErrorKindParseResult, snap.Error)
	}
}

func TestListQueries_FiltersByStatus(t *testing.T) {
	d := &fakeDriver{
		statusFn: func(_ context.Context, _ Connection, _ string) (StatusOutcome, error) { return StatusOutcome{}, nil },
	}
	reg := newTestRegistry(d)
	id1, _ := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{PollInterval: time.Millisecond})
	waitForStatus(t, reg, id1, StatusSucceeded, time.Second)

	failingDriver := &fakeDriver{connectFn: func(_ context.Context) (Connection, error) { return nil, errors.New("x") }}
	reg2 := newTestRegistry(failingDriver)
	id2, _ := reg2.ExecuteQuery(context.Background(), "select 1", nil)

	succeeded := StatusSucceeded
	all := reg.ListQueries(nil)
	if len(all) != 1 {
		t.Fatalf("expected 1 query in reg, got %d", len(all))
	}
	filtered := reg.ListQueries(&succeeded)
	if len(filtered) != 1 || filtered[0].QueryID != id1 {
		t.Fatalf("unexpected filtered result: %+v", filtered)
	}

	failed := StatusFailed
	filtered2 := reg2.ListQueries(&failed)
	if len(filtered2) != 1 || filtered2[0].QueryID != id2 {
		t.Fatalf("unexpected filtered result: %+v", filtered2)
	}
}

func TestPruneExpired_CancelsPollerAndRemovesRecord(t *testing.T) {
	statusGate := make(chan struct{})
	var conn *fakeConn
	d := &fakeDriver{
		connectFn: func(_ context.Context) (Connection, error) {
			conn = &fakeConn{}
			return conn, nil
		},
		statusFn: func(ctx context.Context, _ Connection, _ string) (StatusOutcome, error) {
			select {
			case <-statusGate:
			case <-ctx.Done():
			}
			return StatusOutcome{Running: true}, nil
		},
	}
	reg := newTestRegistry(d)
	queryID, _ := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{PollInterval: time.Millisecond})
	waitForStatus(t, reg, queryID, StatusRunning, time.Second)

	reg.mu.Lock()
	reg.store[queryID].TTLExpiresAt = time.Now().Add(-time.Minute)
	reg.mu.Unlock()

	removed := reg.PruneExpired(context.Background())
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := reg.GetSnapshot(queryID); ok {
		t.Fatal("expected record to be gone after pruning")
	}
	if conn != nil && !conn.closed.Load() {
		t.Fatal("expected connection to be closed after pruning")
	}
}

func TestClose_DrainsAllInFlightQueries(t *testing.T) {
	statusGate := make(chan struct{})
	d := &fakeDriver{
		statusFn: func(ctx context.Context, _ Connection, _ string) (StatusOutcome, error) {
			select {
			case <-statusGate:
			case <-ctx.Done():
			}
			return StatusOutcome{Running: true}, nil
		},
	}
	reg := newTestRegistry(d)
	id1, _ := reg.ExecuteQuery(context.Background(), "select 1", &QueryOptions{PollInterval: time.Millisecond})
	id2, _ := reg.ExecuteQuery(context.Background(), "select 2", &QueryOptions{PollInterval: time.Millisecond})
	waitForStatus(t, reg, id1, StatusRunning, time.Second)
	waitForStatus(t, reg, id2, StatusRunning, time.Second)

	err := reg.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := reg.ExecuteQuery(context.Background(), "select 1", nil); err == nil {
		t.Fatal("expected ExecuteQuery to fail on a closed registry")
	}
}
