package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nexuscore/orchestrator/internal/factory"
	"github.com/nexuscore/orchestrator/internal/metrics"
	"github.com/nexuscore/orchestrator/internal/orchestrator"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/internal/toolregistry"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := sessions.NewMemoryStore()
	reg := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := factory.New(factory.KeySet{})
	tools := toolregistry.NewBuilder().Build()
	orch := orchestrator.New(store, f, tools, reg, logger, orchestrator.Config{})
	return New(orch, store, f, reg, logger)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q", body["status"])
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"agent_id":"a1"}`))
	createRec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(createRec, createReq)

	if createRec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", createRec.Code)
	}
	var created map[string]any
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _ := created["session_id"].(string)
	if id == "" {
		t.Fatal("expected a session_id in the create response")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	getRec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRec.Code)
	}
}

func TestGetUnknownSessionReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStatusForResponseMapsIterationCapTo200(t *testing.T) {
	resp := contracts.OrchestrationResponse{
		Metadata: contracts.ResponseMetadata{ErrorCode: "MAX_ITERATIONS_REACHED"},
	}
	if got := statusForResponse(resp); got != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a non-fatal iteration cap", got)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
