package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcp-snowflake/server/pkg/audit"
	auditpostgres "github.com/mcp-snowflake/server/pkg/audit/postgres"
	"github.com/mcp-snowflake/server/pkg/config"
	"github.com/mcp-snowflake/server/pkg/database/migrate"
)

// newAuditLogger opens the audit database, applies pending migrations,
// and returns a Store wired as an audit.Logger.
func newAuditLogger(cfg config.AuditConfig) (audit.Logger, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := migrate.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running audit migrations: %w", err)
	}

	store := auditpostgres.New(db, auditpostgres.Config{})
	store.StartCleanupRoutine(24 * time.Hour)
	return store, nil
}

// toolEventTypes maps each registered tool name to the audit event type
// it records. Introspection tools are read-only and not audited; only the
// query registry tools that submit a query, cancel one, or fetch its
// results generate an audit trail entry.
var toolEventTypes = map[string]audit.EventType{
	"execute_query":      audit.EventExecuteQuery,
	"cancel_query":       audit.EventCancelQuery,
	"fetch_query_result": audit.EventFetchResult,
}

// auditMiddleware logs query registry tool calls to logger. It is
// grounded on pkg/middleware.MCPAuditMiddleware's mechanics (intercept
// tools/call, time the handler, log asynchronously) but drops that
// middleware's PlatformContext/persona bookkeeping: this server has no
// notion of personas or toolkits, only tool name and arguments.
func auditMiddleware(logger audit.Logger, log *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != "tools/call" {
				return next(ctx, method, req)
			}

			toolName, args := toolCallInfo(req)
			eventType, audited := toolEventTypes[toolName]
			if !audited {
				return next(ctx, method, req)
			}

			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			success := err == nil
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			} else if callResult, ok := result.(*mcp.CallToolResult); ok && callResult != nil && callResult.IsError {
				success = false
				errMsg = resultErrorText(callResult)
			}

			event := audit.NewEvent(eventType).
				WithQuery(stringArg(args, "query_id"), stringArg(args, "sql")).
				WithParameters(audit.SanitizeParameters(args)).
				WithResult(success, errMsg, duration.Milliseconds())

			go func() {
				if logErr := logger.Log(context.Background(), *event); logErr != nil {
					log.Error("audit log failed", "tool", toolName, "error", logErr)
				}
			}()

			return result, err
		}
	}
}

// toolCallInfo extracts the tool name and raw arguments from a
// tools/call request, the way pkg/middleware.extractToolName does.
func toolCallInfo(req mcp.Request) (string, map[string]any) {
	params := req.GetParams()
	if params == nil {
		return "", nil
	}
	callParams, ok := params.(*mcp.CallToolParamsRaw)
	if !ok || callParams == nil {
		return "", nil
	}

	var args map[string]any
	if len(callParams.Arguments) > 0 {
		_ = json.Unmarshal(callParams.Arguments, &args)
	}
	return callParams.Name, args
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

func resultErrorText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	if text, ok := result.Content[0].(*mcp.TextContent); ok {
		return text.Text
	}
	return ""
}
