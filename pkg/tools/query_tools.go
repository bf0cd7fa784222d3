package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcp-snowflake/server/pkg/registry"
	"github.com/mcp-snowflake/server/pkg/sqlguard"
)

type executeQueryInput struct {
	SQL            string  `json:"sql"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	// MaxInlineRows is a pointer so an explicit 0 (cap result_inline at
	// zero rows, report the real row count) is distinguishable from the
	// field being omitted entirely.
	MaxInlineRows   *int    `json:"max_inline_rows,omitempty"`
	PollIntervalSec float64 `json:"poll_interval_seconds,omitempty"`
}

type executeQueryOutput struct {
	QueryID string `json:"query_id"`
}

type cancelQueryInput struct {
	QueryID string `json:"query_id"`
}

type cancelQueryOutput struct {
	Canceled bool `json:"canceled"`
}

type getQueryStatusInput struct {
	QueryID string `json:"query_id"`
}

type fetchQueryResultInput struct {
	QueryID string `json:"query_id"`
	Offset  int    `json:"offset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type listQueriesInput struct {
	Status string `json:"status,omitempty"`
}

func (t *Tools) registerQueryTools(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: "execute_query",
		Description: "Submit a SQL statement to Snowflake for asynchronous execution and return a query_id " +
			"immediately, without waiting for the query to finish. Poll get_query_status with the returned " +
			"query_id to learn when results are ready, then call fetch_query_result.",
	}, t.handleExecuteQuery)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cancel_query",
		Description: "Request cancellation of a previously submitted query by its query_id.",
	}, t.handleCancelQuery)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_query_status",
		Description: "Get the current lifecycle status and metadata of a previously submitted query.",
	}, t.handleGetQueryStatus)

	mcp.AddTool(s, &mcp.Tool{
		Name: "fetch_query_result",
		Description: "Fetch a page of a completed query's result rows. Returns has_more=true when additional " +
			"rows remain beyond the requested page.",
	}, t.handleFetchQueryResult)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_queries",
		Description: "List every tracked query, optionally filtered to a single lifecycle status.",
	}, t.handleListQueries)
}

func (t *Tools) handleExecuteQuery(ctx context.Context, _ *mcp.CallToolRequest, input executeQueryInput) (*mcp.CallToolResult, any, error) {
	if sqlguard.IsWriteMultiStatement(input.SQL) {
		return errorResult("write operations are not allowed through execute_query"), nil, nil
	}
	opts := &registry.QueryOptions{
		QueryTimeout:  durationSeconds(input.TimeoutSeconds),
		MaxInlineRows: input.MaxInlineRows,
	}
	if input.PollIntervalSec > 0 {
		opts.PollInterval = *durationSeconds(input.PollIntervalSec)
	}

	queryID, err := t.registry.ExecuteQuery(ctx, input.SQL, opts)
	if err != nil {
		if errors.Is(err, registry.ErrSQLEmpty) {
			return errorResult("sql must not be empty"), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
		}
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(executeQueryOutput{QueryID: queryID})
}

func (t *Tools) handleCancelQuery(ctx context.Context, _ *mcp.CallToolRequest, input cancelQueryInput) (*mcp.CallToolResult, any, error) {
	if input.QueryID == "" {
		return errorResult("query_id is required"), nil, nil
	}
	canceled, err := t.registry.Cancel(ctx, input.QueryID)
	if err != nil {
		return errorResult(err.Error()), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(cancelQueryOutput{Canceled: canceled})
}

func (t *Tools) handleGetQueryStatus(_ context.Context, _ *mcp.CallToolRequest, input getQueryStatusInput) (*mcp.CallToolResult, any, error) {
	if input.QueryID == "" {
		return errorResult("query_id is required"), nil, nil
	}
	snap, ok := t.registry.GetSnapshot(input.QueryID)
	if !ok {
		return errorResult("unknown query_id: " + input.QueryID), nil, nil
	}
	return jsonResult(snap)
}

func (t *Tools) handleFetchQueryResult(_ context.Context, _ *mcp.CallToolRequest, input fetchQueryResultInput) (*mcp.CallToolResult, any, error) {
	if input.QueryID == "" {
		return errorResult("query_id is required"), nil, nil
	}
	page, ok := t.registry.FetchResult(input.QueryID, input.Offset, input.Limit)
	if !ok {
		return errorResult("query has no result available yet: " + input.QueryID), nil, nil
	}
	return jsonResult(page)
}

func (t *Tools) handleListQueries(_ context.Context, _ *mcp.CallToolRequest, input listQueriesInput) (*mcp.CallToolResult, any, error) {
	var filter *registry.QueryStatus
	if input.Status != "" {
		s := registry.QueryStatus(input.Status)
		filter = &s
	}
	return jsonResult(t.registry.ListQueries(filter))
}
