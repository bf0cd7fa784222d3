// Package server assembles the MCP server: it wires pkg/snowflake,
// pkg/registry, pkg/effects, and pkg/tools together behind a single
// *mcp.Server and exposes the transport the configured process runs.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcp-snowflake/server/pkg/audit"
	"github.com/mcp-snowflake/server/pkg/config"
	"github.com/mcp-snowflake/server/pkg/effects"
	"github.com/mcp-snowflake/server/pkg/health"
	"github.com/mcp-snowflake/server/pkg/registry"
	"github.com/mcp-snowflake/server/pkg/snowflake"
	"github.com/mcp-snowflake/server/pkg/tools"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Server owns every long-lived collaborator behind the MCP surface:
// the Snowflake driver, the query registry, and (optionally) the
// audit logger. Close releases them in dependency order.
type Server struct {
	MCP *mcp.Server

	driver   *snowflake.Driver
	registry *registry.QueryRegistry
	effects  *effects.Effects
	audit    audit.Logger
	health   *health.Checker

	cfg *config.Config
}

// New builds a Server from cfg. It opens the Snowflake connection pool
// eagerly so that a misconfigured account fails at startup rather than
// on the first tool call.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := snowflake.Open(ctx, cfg.Snowflake)
	if err != nil {
		return nil, fmt.Errorf("opening snowflake driver: %w", err)
	}

	executor := registry.NewBlockingExecutor(cfg.Registry.MaxConcurrentBlockingOps)
	reg := registry.NewRegistry(driver, executor, logger)
	eff := effects.New(driver)

	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger, err = newAuditLogger(cfg.Audit)
		if err != nil {
			_ = reg.Close(ctx)
			_ = driver.Close()
			return nil, fmt.Errorf("opening audit logger: %w", err)
		}
	}

	version := cfg.Server.Version
	if version == "" {
		version = Version
	}
	impl := &mcp.Implementation{Name: cfg.Server.Name, Version: version}
	mcpServer := mcp.NewServer(impl, nil)

	toolset := tools.New(reg, eff)
	toolset.RegisterTools(mcpServer)

	if auditLogger != nil {
		mcpServer.AddReceivingMiddleware(auditMiddleware(auditLogger, logger))
	}

	return &Server{
		MCP:      mcpServer,
		driver:   driver,
		registry: reg,
		effects:  eff,
		audit:    auditLogger,
		health:   health.NewChecker(),
		cfg:      cfg,
	}, nil
}

// Registry exposes the underlying query registry, so cmd/mcp-snowflake
// and pkg/httpapi can share the one instance the MCP tools operate on.
func (s *Server) Registry() *registry.QueryRegistry {
	return s.registry
}

// AuditLogger exposes the audit logger, nil if auditing is disabled.
func (s *Server) AuditLogger() audit.Logger {
	return s.audit
}

// Health exposes the readiness state machine backing the admin HTTP
// server's /healthz and /readyz endpoints.
func (s *Server) Health() *health.Checker {
	return s.health
}

// Run serves the MCP protocol on the transport cfg.Server.Transport
// names: "stdio" for a local subprocess transport, or "sse" for a
// streamable-HTTP listener on cfg.Server.Address.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Server.Transport {
	case "stdio":
		return s.MCP.Run(ctx, &mcp.StdioTransport{})
	case "sse":
		return s.runStreamableHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", s.cfg.Server.Transport)
	}
}

// Close releases every collaborator in dependency order: the registry
// first (so in-flight pollers stop touching the driver), then the
// driver, then the audit logger.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if err := s.registry.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing registry: %w", err))
	}
	if err := s.driver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing driver: %w", err))
	}
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit logger: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
