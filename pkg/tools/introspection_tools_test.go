package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/mcp-snowflake/server/pkg/effects"
	"github.com/mcp-snowflake/server/pkg/registry"
)

var errQueryFailed = errors.New("query failed")

type recordingQuerier struct {
	rows    []map[string]any
	cols    []registry.ColumnMeta
	lastSQL string
}

func (q *recordingQuerier) Query(_ context.Context, sqlText string, _ ...any) ([]map[string]any, []registry.ColumnMeta, error) {
	q.lastSQL = sqlText
	return q.rows, q.cols, nil
}

func toolsWithQuerier(q effects.Querier) *Tools {
	reg := registry.NewRegistry(&stubDriver{}, nil, nil)
	return New(reg, effects.New(q))
}

func TestHandleListSchemasFiltersByContains(t *testing.T) {
	q := &recordingQuerier{rows: []map[string]any{{"name": "PUBLIC"}, {"name": "ANALYTICS"}}}
	tl := toolsWithQuerier(q)

	result, _, err := tl.handleListSchemas(context.Background(), nil, listSchemasInput{Database: "DB", Contains: "pub"})
	if err != nil || result.IsError {
		t.Fatalf("unexpected result: %+v %v", result, err)
	}

	var names []string
	decodeResult(t, result, &names)
	if len(names) != 1 || names[0] != "PUBLIC" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestHandleDescribeTableDecodesColumns(t *testing.T) {
	q := &recordingQuerier{rows: []map[string]any{
		{"name": "ID", "type": "NUMBER(38,0)", "kind": "COLUMN", "null?": "N"},
	}}
	tl := toolsWithQuerier(q)

	result, _, err := tl.handleDescribeTable(context.Background(), nil, describeTableInput{Database: "DB", Schema: "SCH", Table: "T"})
	if err != nil || result.IsError {
		t.Fatalf("unexpected result: %+v %v", result, err)
	}

	var cols []effects.TableColumn
	decodeResult(t, result, &cols)
	if len(cols) != 1 || cols[0].Name != "ID" || cols[0].Nullable {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func TestHandleListWarehousesPropagatesQueryError(t *testing.T) {
	tl := toolsWithQuerier(failingQuerier{})
	result, _, err := tl.handleListWarehouses(context.Background(), nil, listWarehousesInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result when the underlying query fails")
	}
}

type failingQuerier struct{}

func (failingQuerier) Query(context.Context, string, ...any) ([]map[string]any, []registry.ColumnMeta, error) {
	return nil, nil, errQueryFailed
}
