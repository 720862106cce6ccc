package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/RNCC-Cubesat/kubos/internal/adapter"
	"github.com/RNCC-Cubesat/kubos/internal/auth"
	"github.com/RNCC-Cubesat/kubos/internal/telemetry"
)

// maxRequestBytes bounds a GraphQL request body.
const maxRequestBytes = 1 << 20

// graphQLRequest is the standard GraphQL-over-HTTP request body.
type graphQLRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// RegisterRoutes registers the GraphQL and health endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Health endpoint (no auth required)
	mux.HandleFunc("/health", s.handleHealth)

	var gql http.Handler = http.HandlerFunc(s.handleGraphQL)
	var events http.Handler = http.HandlerFunc(s.handleEvents)
	if s.authMiddleware != nil {
		gql = s.authMiddleware.RequireAuth(gql)
		events = s.authMiddleware.RequireAuth(events)
	}
	mux.Handle("/graphql", gql)
	mux.Handle("/events", events)
	mux.Handle("/", gql)
}

// handleGraphQL handles GET and POST GraphQL requests.
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/graphql" {
		WriteGraphQLError(w, http.StatusNotFound, CodeNotFound, "No such endpoint")
		return
	}

	var req graphQLRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if vars := q.Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				WriteGraphQLError(w, http.StatusBadRequest, CodeBadRequest, "Malformed variables")
				return
			}
		}
	case http.MethodPost:
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err := dec.Decode(&req); err != nil {
			WriteGraphQLError(w, http.StatusBadRequest, CodeBadRequest, "Malformed JSON")
			return
		}
		// Trailing data check
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			WriteGraphQLError(w, http.StatusBadRequest, CodeBadRequest, "Trailing data after JSON object")
			return
		}
	default:
		WriteGraphQLError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Only GET and POST methods are allowed")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		WriteGraphQLError(w, http.StatusBadRequest, CodeBadRequest, "Query is required")
		return
	}

	start := time.Now()
	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})
	s.logger.Debug("graphql request", "operation", req.OperationName, "errors", len(result.Errors), "latency", time.Since(start))

	writeJSON(w, http.StatusOK, result)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
			"Only GET method is allowed", nil)
		return
	}

	data := map[string]interface{}{
		"status":    "ok",
		"uptimeSec": int(time.Since(s.startTime).Seconds()),
		"version":   s.version,
		"modules":   len(s.orchestrator.Modules()),
	}
	if s.status != nil {
		data["driver"] = s.status.GetDriver()
		busStatus := s.status.GetStatus()
		data["busStatus"] = busStatus
		if busStatus == adapter.StatusClosed {
			data["status"] = "degraded"
		}
	}

	WriteSuccess(w, data)
}

// handleEvents handles GET /events (SSE)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed,
			"Only GET method is allowed", nil)
		return
	}
	if s.events == nil {
		WriteError(w, http.StatusNotFound, CodeNotFound, "Event stream is not enabled", nil)
		return
	}
	if err := s.authorize(r.Context(), auth.ScopeRead); err != nil {
		WriteError(w, http.StatusForbidden, CodeForbidden, "Insufficient permissions", nil)
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	if err := s.events.Subscribe(r.Context(), w, r); err != nil {
		if errors.Is(err, telemetry.ErrHubStopped) {
			WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "Event stream is shutting down", nil)
			return
		}
		s.logger.Warn("event stream ended", "error", err)
	}
}
