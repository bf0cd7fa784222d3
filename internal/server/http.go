package server

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// runStreamableHTTP serves the MCP protocol over streamable HTTP at
// cfg.Server.Address until ctx is canceled or the listener fails.
func (s *Server) runStreamableHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.MCP }, nil)

	httpServer := &http.Server{
		Addr:    s.cfg.Server.Address,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpServer.Close()
	case err := <-errCh:
		return err
	}
}
