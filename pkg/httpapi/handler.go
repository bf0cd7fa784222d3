package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mcp-snowflake/server/pkg/audit"
	"github.com/mcp-snowflake/server/pkg/registry"
)

const pathParamID = "id"

// Handler serves the admin REST API's five endpoints over one shared
// *registry.QueryRegistry.
type Handler struct {
	mux           *http.ServeMux
	registry      *registry.QueryRegistry
	auditLogger   audit.Logger
	authenticator *bearerAuthenticator
}

// NewHandler builds a Handler. auditLogger may be nil.
func NewHandler(reg *registry.QueryRegistry, auditLogger audit.Logger, authenticator *bearerAuthenticator) *Handler {
	h := &Handler{
		mux:           http.NewServeMux(),
		registry:      reg,
		auditLogger:   auditLogger,
		authenticator: authenticator,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /api/v1/queries", h.listQueries)
	h.mux.HandleFunc("GET /api/v1/queries/{id}", h.getQuery)
	h.mux.HandleFunc("GET /api/v1/queries/{id}/result", h.fetchResult)
	h.mux.HandleFunc("POST /api/v1/queries/{id}/cancel", h.cancelQuery)
	h.mux.HandleFunc("GET /api/v1/audit/events", h.listAuditEvents)
}

// ServeHTTP implements http.Handler, gating every route behind bearer
// auth in one place rather than per-route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requireAuth(h.authenticator, h.mux).ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// listQueriesResponse wraps the registry's in-memory query list.
type listQueriesResponse struct {
	Data []*registry.QuerySnapshot `json:"data"`
}

// listQueries handles GET /api/v1/queries.
//
// @Summary      List tracked queries
// @Description  Returns every query the registry currently tracks, optionally filtered by status.
// @Tags         Queries
// @Produce      json
// @Param        status  query  string  false  "Filter by lifecycle status (pending, running, succeeded, failed, canceled, timeout)"
// @Success      200  {object}  listQueriesResponse
// @Security     BearerAuth
// @Router       /queries [get]
func (h *Handler) listQueries(w http.ResponseWriter, r *http.Request) {
	var statusFilter *registry.QueryStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := registry.QueryStatus(s)
		statusFilter = &st
	}

	snapshots := h.registry.ListQueries(statusFilter)
	writeJSON(w, http.StatusOK, listQueriesResponse{Data: snapshots})
}

// getQuery handles GET /api/v1/queries/{id}.
//
// @Summary      Get a query's snapshot
// @Description  Returns the current lifecycle snapshot for one tracked query.
// @Tags         Queries
// @Produce      json
// @Param        id  path  string  true  "Query ID"
// @Success      200  {object}  registry.QuerySnapshot
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /queries/{id} [get]
func (h *Handler) getQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathParamID)
	snapshot, ok := h.registry.GetSnapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// fetchResult handles GET /api/v1/queries/{id}/result.
//
// @Summary      Fetch a page of a query's results
// @Description  Returns a page of rows from a completed query's inline result set.
// @Tags         Queries
// @Produce      json
// @Param        id      path   string  true   "Query ID"
// @Param        offset  query  integer false  "Row offset (default: 0)"
// @Param        limit   query  integer false  "Page size (default: the query's max_inline_rows)"
// @Success      200  {object}  registry.QueryPage
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /queries/{id}/result [get]
func (h *Handler) fetchResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathParamID)
	q := r.URL.Query()
	offset := parseIntParam(q, "offset", 0)
	limit := parseIntParam(q, "limit", 0)

	page, ok := h.registry.FetchResult(id, offset, limit)
	if !ok {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// cancelQueryResponse reports whether a cancel request took effect.
type cancelQueryResponse struct {
	Canceled bool `json:"canceled"`
}

// cancelQuery handles POST /api/v1/queries/{id}/cancel.
//
// @Summary      Cancel a running query
// @Description  Requests cancellation of a tracked query. A false response means the query is unknown or had already reached a terminal status.
// @Tags         Queries
// @Produce      json
// @Param        id  path  string  true  "Query ID"
// @Success      200  {object}  cancelQueryResponse
// @Failure      500  {object}  map[string]string
// @Security     BearerAuth
// @Router       /queries/{id}/cancel [post]
func (h *Handler) cancelQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue(pathParamID)
	canceled, err := h.registry.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cancelQueryResponse{Canceled: canceled})
}

const defaultAuditLimit = 50

// listAuditEventsResponse wraps a page of the audit trail.
type listAuditEventsResponse struct {
	Data []audit.Event `json:"data"`
}

// listAuditEvents handles GET /api/v1/audit/events.
//
// @Summary      List audit trail events
// @Description  Returns paginated audit events recording past registry operations. 404 if auditing is disabled.
// @Tags         Audit
// @Produce      json
// @Param        user_id     query  string  false  "Filter by user ID"
// @Param        query_id    query  string  false  "Filter by query ID"
// @Param        operation   query  string  false  "Filter by operation (execute_query, cancel_query, fetch_query_result, prune_expired)"
// @Param        limit       query  integer false  "Page size (default: 50)"
// @Param        offset      query  integer false  "Row offset (default: 0)"
// @Success      200  {object}  listAuditEventsResponse
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     BearerAuth
// @Router       /audit/events [get]
func (h *Handler) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.auditLogger == nil {
		writeError(w, http.StatusNotFound, "audit logging is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{
		UserID:    q.Get("user_id"),
		QueryID:   q.Get("query_id"),
		Operation: audit.EventType(q.Get("operation")),
		Limit:     parseIntParam(q, "limit", defaultAuditLimit),
		Offset:    parseIntParam(q, "offset", 0),
	}

	events, err := h.auditLogger.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, listAuditEventsResponse{Data: events})
}

func parseIntParam(q map[string][]string, key string, fallback int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return fallback
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return fallback
	}
	return n
}
