package registry

import (
	"context"
	"sync/atomic"
)

// fakeConn is a Connection whose closed state can be observed by tests.
type fakeConn struct {
	closed atomic.Bool
	id     string
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// fakeDriver implements Driver by delegating to optional function fields,
// so each test can describe only the behavior it cares about.
type fakeDriver struct {
	connectFn func(ctx context.Context) (Connection, error)
	submitFn  func(ctx context.Context, conn Connection, sql string) (string, error)
	statusFn  func(ctx context.Context, conn Connection, sfqid string) (StatusOutcome, error)
	fetchFn   func(ctx context.Context, conn Connection, sfqid string, maxRows int) ([]map[string]any, []ColumnMeta, int, error)
	cancelFn  func(ctx context.Context, sfqid string) error

	cancelCalls atomic.Int32
}

func (d *fakeDriver) Connect(ctx context.Context) (Connection, error) {
	if d.connectFn != nil {
		return d.connectFn(ctx)
	}
	return &fakeConn{id: "conn"}, nil
}

func (d *fakeDriver) SubmitAsync(ctx context.Context, conn Connection, sql string) (string, error) {
	if d.submitFn != nil {
		return d.submitFn(ctx, conn, sql)
	}
	return "sfqid-1", nil
}

func (d *fakeDriver) CheckStatus(ctx context.Context, conn Connection, sfqid string) (StatusOutcome, error) {
	if d.statusFn != nil {
		return d.statusFn(ctx, conn, sfqid)
	}
	return StatusOutcome{}, nil
}

func (d *fakeDriver) FetchResults(ctx context.Context, conn Connection, sfqid string, maxRows int) ([]map[string]any, []ColumnMeta, int, error) {
	if d.fetchFn != nil {
		return d.fetchFn(ctx, conn, sfqid, maxRows)
	}
	return []map[string]any{}, []ColumnMeta{}, 0, nil
}

func (d *fakeDriver) CancelQuery(ctx context.Context, sfqid string) error {
	d.cancelCalls.Add(1)
	if d.cancelFn != nil {
		return d.cancelFn(ctx, sfqid)
	}
	return nil
}

var _ Driver = (*fakeDriver)(nil)
