package snowflake

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mcp-snowflake/server/pkg/registry"
)

// Query runs a synchronous, read-only query to completion and returns
// its full result set. It is used by pkg/effects for introspection
// queries (SHOW SCHEMAS, DESCRIBE TABLE, and similar) that don't need
// the async submit/poll machinery the registry uses for user-submitted
// SQL.
func (d *Driver) Query(ctx context.Context, sqlText string, args ...any) ([]map[string]any, []registry.ColumnMeta, error) {
	rows, err := d.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("running query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]map[string]any, []registry.ColumnMeta, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("reading result columns: %w", err)
	}
	columns := make([]registry.ColumnMeta, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = registry.ColumnMeta{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(colTypes))
		scanArgs := make([]any, len(colTypes))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, nil, fmt.Errorf("scanning result row: %w", err)
		}
		row := make(map[string]any, len(colTypes))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, columns, nil
}
