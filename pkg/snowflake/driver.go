package snowflake

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/snowflakedb/gosnowflake"

	"github.com/mcp-snowflake/server/pkg/registry"
)

// Driver is the registry.Driver implementation backed by a pooled
// database/sql connection to one Snowflake account. One Driver is shared
// by every query the registry tracks; each query still gets its own
// dedicated *sql.Conn checked out of the pool for the duration it runs.
type Driver struct {
	db  *sql.DB
	cfg Config
}

// Open validates cfg, opens a connection pool, and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.applyDefaults()

	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snowflake pool: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging snowflake: %w", err)
	}
	return &Driver{db: db, cfg: cfg}, nil
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error {
	return d.db.Close()
}

// conn wraps a *sql.Conn checked out of the pool so it satisfies
// registry.Connection.
type conn struct {
	c *sql.Conn
}

func (c *conn) Close() error {
	return c.c.Close()
}

// Connect checks out a dedicated connection for one query, mirroring the
// "new connection per query, no layer-level pooling" rationale of the
// original connection provider — database/sql's pool plays that role
// here instead.
func (d *Driver) Connect(ctx context.Context) (registry.Connection, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking out connection: %w", err)
	}
	return &conn{c: c}, nil
}

// SubmitAsync starts sqlText in Snowflake's asynchronous execution mode
// and returns the Snowflake query id (sfqid) assigned to it.
func (d *Driver) SubmitAsync(ctx context.Context, rc registry.Connection, sqlText string) (string, error) {
	c, ok := rc.(*conn)
	if !ok {
		return "", fmt.Errorf("snowflake driver: unexpected connection type %T", rc)
	}

	// WithAsyncMode starts sqlText without blocking for completion; the
	// resulting rows carry the assigned query id immediately.
	asyncCtx := gosnowflake.WithAsyncMode(ctx)
	rows, err := c.c.QueryContext(asyncCtx, sqlText)
	if err != nil {
		return "", fmt.Errorf("submitting async query: %w", err)
	}
	defer rows.Close()

	sfqid := gosnowflake.GetQueryID(rows)
	if sfqid == "" {
		return "", fmt.Errorf("snowflake did not return a query id for the submitted statement")
	}
	return sfqid, nil
}

// CheckStatus reports whether sfqid is still running, or — if it has
// finished — whether it finished successfully or with a server-side
// error. A non-nil error here means the status lookup itself failed, not
// that the query failed.
func (d *Driver) CheckStatus(ctx context.Context, rc registry.Connection, sfqid string) (registry.StatusOutcome, error) {
	c, ok := rc.(*conn)
	if !ok {
		return registry.StatusOutcome{}, fmt.Errorf("snowflake driver: unexpected connection type %T", rc)
	}

	var outcome registry.StatusOutcome
	err := c.c.Raw(func(driverConn any) error {
		sfConn, ok := driverConn.(gosnowflake.SnowflakeConnection)
		if !ok {
			return fmt.Errorf("snowflake driver: connection does not support query status lookups")
		}
		status, statusErr := sfConn.QueryStatus(ctx, sfqid)
		if statusErr != nil {
			return fmt.Errorf("checking query status: %w", statusErr)
		}
		switch {
		case gosnowflake.IsStillRunning(status.ErrorCode):
			outcome.Running = true
		case gosnowflake.IsAnError(status.ErrorCode):
			outcome.Failed = true
			outcome.FailureMessage = status.ErrorMessage
			outcome.FailureCode = status.ErrorCode
		}
		return nil
	})
	if err != nil {
		return registry.StatusOutcome{}, err
	}
	return outcome, nil
}

// FetchResults reads up to maxRows of sfqid's result set using
// Snowflake's RESULT_SCAN table function, which re-attaches to a
// previously-run query's results from any session.
func (d *Driver) FetchResults(ctx context.Context, rc registry.Connection, sfqid string, maxRows int) ([]map[string]any, []registry.ColumnMeta, int, error) {
	c, ok := rc.(*conn)
	if !ok {
		return nil, nil, 0, fmt.Errorf("snowflake driver: unexpected connection type %T", rc)
	}

	rows, err := c.c.QueryContext(ctx, `SELECT * FROM TABLE(RESULT_SCAN(?))`, sfqid)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("fetching query results: %w", err)
	}
	defer rows.Close()

	results, columns, err := scanRows(rows)
	if err != nil {
		return nil, nil, 0, err
	}

	// rowCount is the true server-side count, captured before maxRows
	// truncates the slice held in memory — an explicit maxRows of 0 must
	// still report the real count with zero rows returned.
	rowCount := len(results)
	if maxRows >= 0 && rowCount > maxRows {
		results = results[:maxRows]
	}
	return results, columns, rowCount, nil
}

// CancelQuery runs SYSTEM$CANCEL_QUERY over a fresh connection,
// independent from whatever connection the query's own poller is using.
// This mirrors the original implementation's rationale: the connection
// blocked inside an async status poll cannot itself issue a cancel.
func (d *Driver) CancelQuery(ctx context.Context, sfqid string) error {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("opening cancel connection: %w", err)
	}
	defer c.Close()

	_, err = c.ExecContext(ctx, fmt.Sprintf(`SELECT SYSTEM$CANCEL_QUERY('%s')`, sfqid))
	if err != nil {
		return fmt.Errorf("canceling query %s: %w", sfqid, err)
	}
	return nil
}

var _ registry.Driver = (*Driver)(nil)
