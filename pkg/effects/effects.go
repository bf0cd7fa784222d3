// Package effects implements the read-only Snowflake introspection and
// query operations exposed as MCP tools alongside the query registry.
// Every method here shares the same pooled connection pkg/snowflake
// manages for the registry's async queries.
package effects

import (
	"context"
	"fmt"

	"github.com/mcp-snowflake/server/pkg/registry"
	"github.com/mcp-snowflake/server/pkg/sqlguard"
)

// Querier is the subset of *snowflake.Driver that effects depends on,
// so tests can substitute a fake without an account.
type Querier interface {
	Query(ctx context.Context, sqlText string, args ...any) ([]map[string]any, []registry.ColumnMeta, error)
}

// Effects implements the read-only collaborator operations.
type Effects struct {
	q Querier
}

// New builds an Effects backed by q.
func New(q Querier) *Effects {
	return &Effects{q: q}
}

// ErrWriteQuery is returned when ExecuteReadOnlyQuery is asked to run a
// statement sqlguard classifies as a write.
var ErrWriteQuery = fmt.Errorf("write operations are not allowed through this tool")

// ListSchemas returns every schema name in database, optionally filtered.
func (e *Effects) ListSchemas(ctx context.Context, database string, filter *NameFilter) ([]string, error) {
	rows, _, err := e.q.Query(ctx, fmt.Sprintf("SHOW SCHEMAS IN DATABASE %s", quoteIdent(database)))
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	names := columnStrings(rows, "name")
	return filter.Apply(names), nil
}

// ListTables returns every table name in database.schema, optionally
// filtered.
func (e *Effects) ListTables(ctx context.Context, database, schema string, filter *NameFilter) ([]string, error) {
	rows, _, err := e.q.Query(ctx, fmt.Sprintf("SHOW TABLES IN SCHEMA %s.%s", quoteIdent(database), quoteIdent(schema)))
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	names := columnStrings(rows, "name")
	return filter.Apply(names), nil
}

// ListViews returns every view name in database.schema, optionally
// filtered.
func (e *Effects) ListViews(ctx context.Context, database, schema string, filter *NameFilter) ([]string, error) {
	rows, _, err := e.q.Query(ctx, fmt.Sprintf("SHOW VIEWS IN SCHEMA %s.%s", quoteIdent(database), quoteIdent(schema)))
	if err != nil {
		return nil, fmt.Errorf("listing views: %w", err)
	}
	names := columnStrings(rows, "name")
	return filter.Apply(names), nil
}

// TableColumn describes one column reported by DESCRIBE TABLE.
type TableColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Kind     string `json:"kind"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// DescribeTable returns the column layout of database.schema.table.
func (e *Effects) DescribeTable(ctx context.Context, database, schema, table string) ([]TableColumn, error) {
	rows, _, err := e.q.Query(ctx, fmt.Sprintf(
		"DESCRIBE TABLE %s.%s.%s", quoteIdent(database), quoteIdent(schema), quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("describing table: %w", err)
	}

	cols := make([]TableColumn, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, TableColumn{
			Name:     stringValue(row["name"]),
			Type:     stringValue(row["type"]),
			Kind:     stringValue(row["kind"]),
			Nullable: stringValue(row["null?"]) == "Y",
			Default:  stringValue(row["default"]),
			Comment:  stringValue(row["comment"]),
		})
	}
	return cols, nil
}

// SampleTableData returns up to limit rows from database.schema.table.
func (e *Effects) SampleTableData(ctx context.Context, database, schema, table string, limit int) ([]map[string]any, []registry.ColumnMeta, error) {
	if limit <= 0 {
		limit = 100
	}
	sqlText := fmt.Sprintf(
		"SELECT * FROM %s.%s.%s SAMPLE (%d ROWS)",
		quoteIdent(database), quoteIdent(schema), quoteIdent(table), limit)
	rows, cols, err := e.q.Query(ctx, sqlText)
	if err != nil {
		return nil, nil, fmt.Errorf("sampling table: %w", err)
	}
	return rows, cols, nil
}

// ColumnStatistics summarizes one numeric or string column.
type ColumnStatistics struct {
	Column     string `json:"column"`
	NonNull    int64  `json:"non_null_count"`
	NullCount  int64  `json:"null_count"`
	DistinctN  int64  `json:"distinct_count"`
	Min        any    `json:"min,omitempty"`
	Max        any    `json:"max,omitempty"`
}

// AnalyzeTableStatistics computes basic per-column statistics for table.
func (e *Effects) AnalyzeTableStatistics(ctx context.Context, database, schema, table string, columns []string) ([]ColumnStatistics, error) {
	stats := make([]ColumnStatistics, 0, len(columns))
	for _, col := range columns {
		sqlText := fmt.Sprintf(
			`SELECT COUNT(%[1]s) AS non_null, COUNT(*) - COUNT(%[1]s) AS nulls,
			        COUNT(DISTINCT %[1]s) AS distinct_n, MIN(%[1]s) AS min_v, MAX(%[1]s) AS max_v
			 FROM %[2]s.%[3]s.%[4]s`,
			quoteIdent(col), quoteIdent(database), quoteIdent(schema), quoteIdent(table))
		rows, _, err := e.q.Query(ctx, sqlText)
		if err != nil {
			return nil, fmt.Errorf("analyzing column %s: %w", col, err)
		}
		if len(rows) == 0 {
			continue
		}
		row := rows[0]
		stats = append(stats, ColumnStatistics{
			Column:    col,
			NonNull:   int64Value(row["non_null"]),
			NullCount: int64Value(row["nulls"]),
			DistinctN: int64Value(row["distinct_n"]),
			Min:       row["min_v"],
			Max:       row["max_v"],
		})
	}
	return stats, nil
}

// SemiStructuredProfile summarizes the key shapes observed in a VARIANT,
// OBJECT, or ARRAY column by sampling rows.
type SemiStructuredProfile struct {
	Column      string   `json:"column"`
	SampledRows int      `json:"sampled_rows"`
	TopLevelKeys []string `json:"top_level_keys"`
}

// ProfileSemiStructuredColumns inspects up to sampleSize rows of each
// column and reports the distinct top-level object keys observed.
func (e *Effects) ProfileSemiStructuredColumns(ctx context.Context, database, schema, table string, columns []string, sampleSize int) ([]SemiStructuredProfile, error) {
	if sampleSize <= 0 {
		sampleSize = 50
	}
	profiles := make([]SemiStructuredProfile, 0, len(columns))
	for _, col := range columns {
		sqlText := fmt.Sprintf(
			"SELECT OBJECT_KEYS(%[1]s) AS keys FROM %[2]s.%[3]s.%[4]s WHERE %[1]s IS NOT NULL LIMIT %[5]d",
			quoteIdent(col), quoteIdent(database), quoteIdent(schema), quoteIdent(table), sampleSize)
		rows, _, err := e.q.Query(ctx, sqlText)
		if err != nil {
			return nil, fmt.Errorf("profiling column %s: %w", col, err)
		}
		seen := map[string]bool{}
		for _, row := range rows {
			for _, k := range stringSlice(row["keys"]) {
				seen[k] = true
			}
		}
		keys := make([]string, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		profiles = append(profiles, SemiStructuredProfile{
			Column:       col,
			SampledRows:  len(rows),
			TopLevelKeys: keys,
		})
	}
	return profiles, nil
}

// ListWarehouses returns every warehouse visible to the current role.
func (e *Effects) ListWarehouses(ctx context.Context, filter *NameFilter) ([]string, error) {
	rows, _, err := e.q.Query(ctx, "SHOW WAREHOUSES")
	if err != nil {
		return nil, fmt.Errorf("listing warehouses: %w", err)
	}
	return filter.Apply(columnStrings(rows, "name")), nil
}

// ListRoles returns every role visible to the current role.
func (e *Effects) ListRoles(ctx context.Context, filter *NameFilter) ([]string, error) {
	rows, _, err := e.q.Query(ctx, "SHOW ROLES")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	return filter.Apply(columnStrings(rows, "name")), nil
}

// ExecuteReadOnlyQuery runs sqlText to completion and returns its full
// result set. It refuses anything sqlguard classifies as a write.
func (e *Effects) ExecuteReadOnlyQuery(ctx context.Context, sqlText string) ([]map[string]any, []registry.ColumnMeta, error) {
	if sqlguard.IsWriteMultiStatement(sqlText) {
		return nil, nil, ErrWriteQuery
	}
	rows, cols, err := e.q.Query(ctx, sqlText)
	if err != nil {
		return nil, nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, cols, nil
}
