// Package httpapi exposes the query registry over a small read/operate
// REST surface, documented with swaggo annotations and served under
// Swagger UI at /swagger/. It shares the same *registry.QueryRegistry
// the MCP tools in pkg/tools operate on — there is no separate state.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/mcp-snowflake/server/pkg/audit"
	"github.com/mcp-snowflake/server/pkg/config"
	"github.com/mcp-snowflake/server/pkg/health"
	_ "github.com/mcp-snowflake/server/pkg/httpapi/docs" // registers the swagger spec with swag
	"github.com/mcp-snowflake/server/pkg/registry"
)

// Server serves the admin REST API.
type Server struct {
	httpServer *http.Server
}

// New builds the admin API handler and wraps it in a *http.Server bound
// to cfg.ListenAddr. auditLogger may be nil when auditing is disabled,
// in which case /api/v1/audit/events reports 404. checker backs
// /healthz and /readyz, which are served unauthenticated regardless of
// whether the rest of the admin API requires a bearer token.
func New(cfg config.AdminAPIConfig, reg *registry.QueryRegistry, auditLogger audit.Logger, checker *health.Checker) (*Server, error) {
	authenticator, err := newBearerAuthenticator(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuring admin API auth: %w", err)
	}

	handler := NewHandler(reg, auditLogger, authenticator)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", handler)
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)
	mux.HandleFunc("/healthz", checker.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving the admin API until the listener fails,
// returning that error, or Close is called, in which case it returns nil.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts the admin API down gracefully.
func (s *Server) Close() error {
	return s.httpServer.Shutdown(context.Background())
}
