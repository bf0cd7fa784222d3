package registry

import (
	"context"
)

// Connection is a single Snowflake connection checked out for one query's
// lifetime. It is never shared between queries or between a query's
// poller and a concurrent cancellation.
type Connection interface {
	Close() error
}

// StatusOutcome is the classification CheckStatus returns for one poll.
// At most one of Running or Failed is true once the call succeeds; when
// both are false the query has finished successfully and the poller
// should move on to FetchResults. Failed carries the server's own
// message and code verbatim, so the registry can classify the terminal
// record as kind="execution" without losing the original text.
type StatusOutcome struct {
	Running        bool
	Failed         bool
	FailureMessage string
	FailureCode    string
}

// Driver performs the blocking, Snowflake-specific operations the
// registry needs. pkg/snowflake provides the real implementation over
// database/sql and gosnowflake; tests substitute a fake.
//
// Every method here is a blocking call and is always invoked through a
// BlockingExecutor, never directly from registry code holding the lock.
type Driver interface {
	// Connect checks out a fresh connection dedicated to one query.
	Connect(ctx context.Context) (Connection, error)

	// SubmitAsync starts sql in asynchronous mode on conn and returns the
	// Snowflake query id (sfqid) assigned to it.
	SubmitAsync(ctx context.Context, conn Connection, sql string) (sfqid string, err error)

	// CheckStatus reports sfqid's progress on conn. A non-nil error means
	// the status check itself failed (a connectivity/driver problem, not
	// a query-level failure); StatusOutcome.Failed means Snowflake itself
	// reported sfqid ended in error.
	CheckStatus(ctx context.Context, conn Connection, sfqid string) (StatusOutcome, error)

	// FetchResults reads up to maxRows of sfqid's result set from conn.
	// rowCount is the true server-side row count, even when it exceeds
	// maxRows and the returned rows are truncated.
	FetchResults(ctx context.Context, conn Connection, sfqid string, maxRows int) (rows []map[string]any, columns []ColumnMeta, rowCount int, err error)

	// CancelQuery issues SYSTEM$CANCEL_QUERY for sfqid over a connection
	// of its own, independent from the connection any poller is using.
	CancelQuery(ctx context.Context, sfqid string) error
}
