// Package tracer implements C8: a per-session event recorder that writes
// every step to the session's trace and mirrors a fixed subset of events
// into process metrics.
package tracer

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexuscore/orchestrator/internal/metrics"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// Event names the fixed catalogue of trace events emitted across the
// orchestration core (spec §4.7/§4.8).
type Event string

const (
	EventRequestReceived    Event = "request.received"
	EventSummarizationRun   Event = "summarization.run"
	EventSummarizationSkip  Event = "summarization.skipped"
	EventSummarizationError Event = "summarization.error"
	EventLLMCallStart       Event = "llm_call.start"
	EventLLMCallSuccess     Event = "llm_call_success"
	EventLLMCallError       Event = "llm_call_error"
	EventRetryAttemptStart  Event = "retry_attempt_start"
	EventRetryAttemptFailed Event = "retry_attempt_failed"
	EventRetryBackoffDelay  Event = "retry_backoff_delay"
	EventMaxRetriesExceeded Event = "max_retries_exceeded"
	EventToolCallStart      Event = "tool_execution.start"
	EventToolCallSuccess    Event = "tool_execution_success"
	EventToolCallError      Event = "tool_execution_error"
	EventIterationLimit     Event = "orchestration.max_iterations"
	EventSessionCreated     Event = "session_created"
	EventSessionCompleted   Event = "session_completed"
	EventRequestFinished    Event = "final_response"
	EventRequestFailed      Event = "request.failed"
)

// Tracer records trace steps for one session, writing each step through
// the store and mirroring a subset of events into metrics. A failure to
// append the trace step itself (TRACE_APPEND_FAILURE) is logged and
// swallowed — it never aborts the orchestration it is observing.
type Tracer struct {
	store     sessions.Store
	metrics   *metrics.Registry
	logger    *slog.Logger
	provider  contracts.ProviderTag
	model     string
	agentName string
}

// New builds a Tracer bound to one session's provider/model/agent, used to
// label the metrics this tracer mirrors into.
func New(store sessions.Store, reg *metrics.Registry, logger *slog.Logger, provider contracts.ProviderTag, model string, agentName string) *Tracer {
	return &Tracer{store: store, metrics: reg, logger: logger, provider: provider, model: model, agentName: agentName}
}

// Record appends one trace step for sessionID and mirrors it to metrics
// per the fixed event-to-metric table.
func (t *Tracer) Record(ctx context.Context, sessionID string, component string, event Event, details map[string]any) {
	step := contracts.TraceStep{
		Time:      time.Now(),
		Component: component,
		Event:     string(event),
		Details:   details,
	}

	if err := t.store.AppendTrace(ctx, sessionID, step); err != nil {
		t.logger.Warn("TRACE_APPEND_FAILURE: failed to append trace step",
			"session_id", sessionID, "component", component, "event", event, "error", err)
	}

	t.mirror(component, event, details)
}

// mirror dispatches an event to its corresponding metric effect, per the
// fixed table in spec §4.7. Events not listed here produce trace rows
// only.
func (t *Tracer) mirror(component string, event Event, details map[string]any) {
	provider := string(t.provider)
	model := t.model

	switch event {
	case EventLLMCallSuccess:
		t.metrics.LLMCallCountTotal.WithLabelValues(provider, model, "success").Inc()
		if promptTokens, ok := details["prompt_tokens"].(int); ok && promptTokens > 0 {
			t.metrics.LLMTokensConsumedTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
		}
		if completionTokens, ok := details["completion_tokens"].(int); ok && completionTokens > 0 {
			t.metrics.LLMTokensConsumedTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
		}
	case EventLLMCallError:
		t.metrics.LLMCallCountTotal.WithLabelValues(provider, model, "error").Inc()
		errorType, _ := details["error_type"].(string)
		t.metrics.OrchestratorErrorsTotal.WithLabelValues(errorType, component).Inc()
	case EventRetryAttemptFailed:
		reason, _ := details["error_type"].(string)
		t.metrics.RetryAttemptsTotal.WithLabelValues(component, reason).Inc()
	case EventToolCallSuccess:
		if name, ok := details["tool"].(string); ok {
			t.metrics.ToolExecutionCountTotal.WithLabelValues(name, "success").Inc()
		}
	case EventToolCallError:
		if name, ok := details["tool"].(string); ok {
			t.metrics.ToolExecutionCountTotal.WithLabelValues(name, "error").Inc()
		}
		errorType, _ := details["error_type"].(string)
		t.metrics.OrchestratorErrorsTotal.WithLabelValues(errorType, component).Inc()
	case EventSessionCreated:
		t.metrics.SessionCountTotal.WithLabelValues(t.agentName, "created").Inc()
		t.metrics.ActiveSessionsCurrent.Inc()
	case EventSessionCompleted:
		t.metrics.SessionCountTotal.WithLabelValues(t.agentName, "completed").Inc()
		t.metrics.ActiveSessionsCurrent.Dec()
	}
}

// ObserveLLMCallDuration records one provider call's latency.
func (t *Tracer) ObserveLLMCallDuration(d time.Duration) {
	t.metrics.LLMLatencySeconds.WithLabelValues(string(t.provider), t.model).Observe(d.Seconds())
}

// ObserveToolDuration records one tool execution's latency.
func (t *Tracer) ObserveToolDuration(toolName string, d time.Duration) {
	t.metrics.ToolLatencySeconds.WithLabelValues(toolName).Observe(d.Seconds())
}

// ObserveSessionDuration records one end-to-end request's latency,
// reported against session_duration_seconds (spec §4.6/§4.7).
func (t *Tracer) ObserveSessionDuration(d time.Duration) {
	t.metrics.SessionDurationSeconds.WithLabelValues(t.agentName).Observe(d.Seconds())
}
