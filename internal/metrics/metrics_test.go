package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerRendersKnownSeries(t *testing.T) {
	r := New()
	r.LLMCallCountTotal.WithLabelValues("openai", "gpt-4o", "success").Inc()
	r.LLMLatencySeconds.WithLabelValues("openai", "gpt-4o").Observe(0.1)
	r.LLMTokensConsumedTotal.WithLabelValues("openai", "gpt-4o", "prompt").Add(10)
	r.ToolExecutionCountTotal.WithLabelValues("get_current_time", "success").Inc()
	r.ToolLatencySeconds.WithLabelValues("get_current_time").Observe(0.01)
	r.OrchestratorErrorsTotal.WithLabelValues("TIMEOUT", "orchestrator").Inc()
	r.RetryAttemptsTotal.WithLabelValues("resilient", "TIMEOUT").Inc()
	r.SessionCountTotal.WithLabelValues("agent-1", "created").Inc()
	r.ActiveSessionsCurrent.Inc()
	r.SessionDurationSeconds.WithLabelValues("agent-1").Observe(1.5)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"llm_call_count_total",
		"llm_latency_seconds",
		"llm_tokens_consumed_total",
		"tool_execution_count_total",
		"tool_latency_seconds",
		"orchestrator_errors_count_total",
		"retry_attempts_count_total",
		"session_count_total",
		"active_sessions_current",
		"session_duration_seconds",
		"application_info",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in output, got: %s", name, body)
		}
	}
}

func TestHandlerIdempotent(t *testing.T) {
	r := New()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)

	first := httptest.NewRecorder()
	r.Handler().ServeHTTP(first, req)

	second := httptest.NewRecorder()
	r.Handler().ServeHTTP(second, req)

	if first.Body.String() != second.Body.String() {
		t.Fatal("rendering the same registry twice produced different output")
	}
}
