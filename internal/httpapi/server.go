// Package httpapi exposes the orchestration core's external HTTP surface:
// session management, the orchestrate endpoint, provider introspection,
// health, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nexuscore/orchestrator/internal/factory"
	"github.com/nexuscore/orchestrator/internal/metrics"
	"github.com/nexuscore/orchestrator/internal/orchestrator"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// Server wires the orchestration core to net/http.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   sessions.Store
	factory *factory.Factory
	metrics *metrics.Registry
	logger  *slog.Logger

	httpServer *http.Server
}

// New builds a Server. Call ListenAndServe to start it.
func New(orch *orchestrator.Orchestrator, store sessions.Store, f *factory.Factory, reg *metrics.Registry, logger *slog.Logger) *Server {
	s := &Server{orch: orch, store: store, factory: f, metrics: reg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/orchestrate", s.handleOrchestrate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleGetHistory)
	mux.HandleFunc("GET /api/sessions/{id}/metrics", s.handleGetSessionMetrics)
	mux.HandleFunc("GET /api/providers", s.handleListProviders)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /api/metrics", reg.Handler())

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe binds addr and serves until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error_code": code, "message": message})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", "invalid JSON body")
		return
	}
	sess, err := s.store.GetOrCreate(r.Context(), "", body.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req contracts.OrchestrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", "invalid JSON body")
		return
	}

	resp := s.orch.Process(r.Context(), req)
	writeJSON(w, statusForResponse(resp), resp)
}

// statusForResponse maps an OrchestrationResponse to its HTTP status:
// 200 for success or a non-fatal-to-the-wire failure, 502 for a terminal
// provider failure, 400 for request validation, 504 for a request
// timeout, and 500 only for the two infrastructure codes that mean the
// orchestrator's own observability plumbing broke.
func statusForResponse(resp contracts.OrchestrationResponse) int {
	switch resp.Metadata.ErrorCode {
	case "", "MAX_ITERATIONS_REACHED":
		return http.StatusOK
	case "MALFORMED_REQUEST", "UNKNOWN_AGENT":
		return http.StatusBadRequest
	case "UNKNOWN_PROVIDER":
		return http.StatusBadRequest
	case "REQUEST_TIMEOUT":
		return http.StatusGatewayTimeout
	case "TRACE_APPEND_FAILURE", "METRICS_RENDER_FAILURE":
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_AGENT", "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_AGENT", "session not found")
		return
	}

	limit := len(sess.Messages)
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil && n >= 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, perr := strconv.Atoi(v); perr == nil && n >= 0 {
			offset = n
		}
	}

	messages := sess.Messages
	if offset > len(messages) {
		offset = len(messages)
	}
	messages = messages[offset:]
	if limit < len(messages) {
		messages = messages[:limit]
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleGetSessionMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_AGENT", "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sess.SessionID,
		"message_count": sess.MessageCount,
		"trace_steps":   len(sess.Trace),
	})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	tags := s.factory.ListConfigured()
	type providerStatus struct {
		Tag     contracts.ProviderTag `json:"provider"`
		Healthy bool                  `json:"healthy"`
	}
	out := make([]providerStatus, 0, len(tags))
	for _, tag := range tags {
		p, err := s.factory.Get(r.Context(), tag, "")
		healthy := err == nil
		if healthy {
			healthy = p.Health(r.Context()) == nil
		}
		out = append(out, providerStatus{Tag: tag, Healthy: healthy})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
