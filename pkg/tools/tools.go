package tools

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcp-snowflake/server/pkg/effects"
	"github.com/mcp-snowflake/server/pkg/registry"
)

// Tools binds the query registry and the read-only Snowflake
// collaborators to the MCP tool surface. Construct one per server and
// call RegisterTools once.
type Tools struct {
	registry *registry.QueryRegistry
	effects  *effects.Effects
}

// New builds a Tools bound to reg and eff.
func New(reg *registry.QueryRegistry, eff *effects.Effects) *Tools {
	return &Tools{registry: reg, effects: eff}
}

// RegisterTools registers every tool this package provides with s.
func (t *Tools) RegisterTools(s *mcp.Server) {
	t.registerQueryTools(s)
	t.registerIntrospectionTools(s)
	t.registerResourceTemplates(s)
}

// durationSeconds converts a floating-point seconds value from tool
// input into a *time.Duration, treating zero or negative as unset.
func durationSeconds(seconds float64) *time.Duration {
	if seconds <= 0 {
		return nil
	}
	d := time.Duration(seconds * float64(time.Second))
	return &d
}

func nameFilterFrom(contains string) *effects.NameFilter {
	if contains == "" {
		return nil
	}
	return &effects.NameFilter{Contains: contains}
}
