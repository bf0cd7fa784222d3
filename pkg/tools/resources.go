package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"
)

const queryResourceURITemplate = "query://{query_id}"

// registerResourceTemplates registers the query:// resource, which
// exposes a tracked query's current snapshot as a readable MCP
// resource addressed by its query id.
func (t *Tools) registerResourceTemplates(s *mcp.Server) {
	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: queryResourceURITemplate,
		Name:        "Query Snapshot",
		Description: "The current status, metadata, and error (if any) of a query tracked by the registry.",
		MIMEType:    "application/json",
	}, t.handleQueryResource)
}

func (t *Tools) handleQueryResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	vars, err := parseTemplateVars(queryResourceURITemplate, uri)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	queryID := vars["query_id"]
	if queryID == "" {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	snap, ok := t.registry.GetSnapshot(queryID)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// parseTemplateVars matches uri against templateStr and extracts every
// declared variable's value.
func parseTemplateVars(templateStr, uri string) (map[string]string, error) {
	tmpl, err := uritemplate.New(templateStr)
	if err != nil {
		return nil, err
	}
	match := tmpl.Match(uri)
	if match == nil {
		return nil, fmt.Errorf("uri %q does not match template %q", uri, templateStr)
	}
	result := make(map[string]string)
	for _, name := range tmpl.Varnames() {
		val := match.Get(name)
		result[name] = val.String()
	}
	return result, nil
}
