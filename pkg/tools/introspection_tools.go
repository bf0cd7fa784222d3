package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type listSchemasInput struct {
	Database string `json:"database"`
	Contains string `json:"contains,omitempty"`
}

type listTablesInput struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Contains string `json:"contains,omitempty"`
}

type listViewsInput struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Contains string `json:"contains,omitempty"`
}

type describeTableInput struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
}

type sampleTableDataInput struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
	Limit    int    `json:"limit,omitempty"`
}

type analyzeTableStatisticsInput struct {
	Database string   `json:"database"`
	Schema   string   `json:"schema"`
	Table    string   `json:"table"`
	Columns  []string `json:"columns"`
}

type profileSemiStructuredColumnsInput struct {
	Database   string   `json:"database"`
	Schema     string   `json:"schema"`
	Table      string   `json:"table"`
	Columns    []string `json:"columns"`
	SampleSize int      `json:"sample_size,omitempty"`
}

type listWarehousesInput struct {
	Contains string `json:"contains,omitempty"`
}

type listRolesInput struct {
	Contains string `json:"contains,omitempty"`
}

func (t *Tools) registerIntrospectionTools(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_schemas",
		Description: "List the schemas in a Snowflake database, optionally filtered by a case-insensitive substring.",
	}, t.handleListSchemas)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_tables",
		Description: "List the tables in a Snowflake schema, optionally filtered by a case-insensitive substring.",
	}, t.handleListTables)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_views",
		Description: "List the views in a Snowflake schema, optionally filtered by a case-insensitive substring.",
	}, t.handleListViews)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "describe_table",
		Description: "Describe the column layout of a Snowflake table, including types and nullability.",
	}, t.handleDescribeTable)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sample_table_data",
		Description: "Return a sample of rows from a Snowflake table.",
	}, t.handleSampleTableData)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "analyze_table_statistics",
		Description: "Compute basic per-column statistics (non-null count, null count, distinct count, min, max) for a table.",
	}, t.handleAnalyzeTableStatistics)

	mcp.AddTool(s, &mcp.Tool{
		Name: "profile_semi_structured_columns",
		Description: "Sample a VARIANT, OBJECT, or ARRAY column and report the distinct top-level keys observed " +
			"across the sampled rows.",
	}, t.handleProfileSemiStructuredColumns)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_warehouses",
		Description: "List the warehouses visible to the current role, optionally filtered by a case-insensitive substring.",
	}, t.handleListWarehouses)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_roles",
		Description: "List the roles visible to the current role, optionally filtered by a case-insensitive substring.",
	}, t.handleListRoles)
}

func (t *Tools) handleListSchemas(ctx context.Context, _ *mcp.CallToolRequest, input listSchemasInput) (*mcp.CallToolResult, any, error) {
	names, err := t.effects.ListSchemas(ctx, input.Database, nameFilterFrom(input.Contains))
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(names)
}

func (t *Tools) handleListTables(ctx context.Context, _ *mcp.CallToolRequest, input listTablesInput) (*mcp.CallToolResult, any, error) {
	names, err := t.effects.ListTables(ctx, input.Database, input.Schema, nameFilterFrom(input.Contains))
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(names)
}

func (t *Tools) handleListViews(ctx context.Context, _ *mcp.CallToolRequest, input listViewsInput) (*mcp.CallToolResult, any, error) {
	names, err := t.effects.ListViews(ctx, input.Database, input.Schema, nameFilterFrom(input.Contains))
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(names)
}

func (t *Tools) handleDescribeTable(ctx context.Context, _ *mcp.CallToolRequest, input describeTableInput) (*mcp.CallToolResult, any, error) {
	cols, err := t.effects.DescribeTable(ctx, input.Database, input.Schema, input.Table)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(cols)
}

func (t *Tools) handleSampleTableData(ctx context.Context, _ *mcp.CallToolRequest, input sampleTableDataInput) (*mcp.CallToolResult, any, error) {
	rows, cols, err := t.effects.SampleTableData(ctx, input.Database, input.Schema, input.Table, input.Limit)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(struct {
		Rows    []map[string]any `json:"rows"`
		Columns any              `json:"columns"`
	}{Rows: rows, Columns: cols})
}

func (t *Tools) handleAnalyzeTableStatistics(ctx context.Context, _ *mcp.CallToolRequest, input analyzeTableStatisticsInput) (*mcp.CallToolResult, any, error) {
	stats, err := t.effects.AnalyzeTableStatistics(ctx, input.Database, input.Schema, input.Table, input.Columns)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(stats)
}

func (t *Tools) handleProfileSemiStructuredColumns(ctx context.Context, _ *mcp.CallToolRequest, input profileSemiStructuredColumnsInput) (*mcp.CallToolResult, any, error) {
	profiles, err := t.effects.ProfileSemiStructuredColumns(ctx, input.Database, input.Schema, input.Table, input.Columns, input.SampleSize)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(profiles)
}

func (t *Tools) handleListWarehouses(ctx context.Context, _ *mcp.CallToolRequest, input listWarehousesInput) (*mcp.CallToolResult, any, error) {
	names, err := t.effects.ListWarehouses(ctx, nameFilterFrom(input.Contains))
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(names)
}

func (t *Tools) handleListRoles(ctx context.Context, _ *mcp.CallToolRequest, input listRolesInput) (*mcp.CallToolResult, any, error) {
	names, err := t.effects.ListRoles(ctx, nameFilterFrom(input.Contains))
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(names)
}
