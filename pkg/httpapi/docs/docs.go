// Package docs holds the hand-authored OpenAPI document for pkg/httpapi,
// registered with swag so swaggo/http-swagger/v2 can serve it at
// /swagger/doc.json without a generator step.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "mcp-snowflake admin API",
        "description": "Read/operate REST surface over the async query registry: list, inspect, fetch results from, and cancel tracked queries, plus the audit trail of past operations.",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/queries": {
            "get": {
                "tags": ["Queries"],
                "summary": "List tracked queries",
                "description": "Returns every query the registry currently tracks, optionally filtered by status.",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "required": false, "description": "Filter by lifecycle status"}
                ],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/queries/{id}": {
            "get": {
                "tags": ["Queries"],
                "summary": "Get a query's snapshot",
                "description": "Returns the current lifecycle snapshot for one tracked query.",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "query not found"}
                }
            }
        },
        "/queries/{id}/result": {
            "get": {
                "tags": ["Queries"],
                "summary": "Fetch a page of a query's results",
                "description": "Returns a page of rows from a completed query's inline result set.",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "offset", "in": "query", "type": "integer", "required": false},
                    {"name": "limit", "in": "query", "type": "integer", "required": false}
                ],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "query not found"}
                }
            }
        },
        "/queries/{id}/cancel": {
            "post": {
                "tags": ["Queries"],
                "summary": "Cancel a running query",
                "description": "Requests cancellation of a tracked query.",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "500": {"description": "internal error"}
                }
            }
        },
        "/audit/events": {
            "get": {
                "tags": ["Audit"],
                "summary": "List audit trail events",
                "description": "Returns paginated audit events recording past registry operations. 404 if auditing is disabled.",
                "parameters": [
                    {"name": "user_id", "in": "query", "type": "string", "required": false},
                    {"name": "query_id", "in": "query", "type": "string", "required": false},
                    {"name": "operation", "in": "query", "type": "string", "required": false},
                    {"name": "limit", "in": "query", "type": "integer", "required": false},
                    {"name": "offset", "in": "query", "type": "integer", "required": false}
                ],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "audit logging is disabled"}
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds the API metadata swag.Register exposes to
// http-swagger. Host is left blank so the spec works unmodified behind
// any reverse proxy; BasePath is /api/v1, the prefix every route uses.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "mcp-snowflake admin API",
	Description:      "Read/operate REST surface over the async query registry.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
