// Package metrics implements C7: the process-wide Prometheus registry and
// the exact series the rest of the system emits into. Names and label
// keys here are part of the external contract (spec §4.6) — do not
// rename or relabel without updating the contract.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// version is reported on application_info. Overridable by the CLI via
// SetVersion, since the binary's version isn't known at package-init time.
var version = "dev"

// SetVersion sets the value application_info reports. Call once at
// startup before serving /api/metrics.
func SetVersion(v string) {
	version = v
}

// Registry holds every series the orchestration core emits. It is safe for
// concurrent use; promauto counters/histograms are lock-free on the hot
// path.
type Registry struct {
	reg *prometheus.Registry

	LLMCallCountTotal       *prometheus.CounterVec
	LLMLatencySeconds       *prometheus.HistogramVec
	LLMTokensConsumedTotal  *prometheus.CounterVec
	ToolExecutionCountTotal *prometheus.CounterVec
	ToolLatencySeconds      *prometheus.HistogramVec
	OrchestratorErrorsTotal *prometheus.CounterVec
	RetryAttemptsTotal      *prometheus.CounterVec
	SessionCountTotal       *prometheus.CounterVec
	ActiveSessionsCurrent   prometheus.Gauge
	SessionDurationSeconds  *prometheus.HistogramVec
	ApplicationInfo         *prometheus.GaugeVec
	MetricsRenderFailures   prometheus.Counter
}

// New builds a Registry with every series registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		reg: reg,
		LLMCallCountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_call_count_total",
			Help: "Total provider chat-completion attempts, by status.",
		}, []string{"provider", "model", "status"}),
		LLMLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_latency_seconds",
			Help:    "Duration of a single provider chat-completion attempt.",
			Buckets: latencyBuckets,
		}, []string{"provider", "model"}),
		LLMTokensConsumedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_consumed_total",
			Help: "Tokens consumed by provider calls, by token type.",
		}, []string{"provider", "model", "token_type"}),
		ToolExecutionCountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_execution_count_total",
			Help: "Tool invocations, by tool name and status.",
		}, []string{"tool_name", "status"}),
		ToolLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tool_latency_seconds",
			Help:    "Duration of a single tool execution.",
			Buckets: latencyBuckets,
		}, []string{"tool_name"}),
		OrchestratorErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_errors_count_total",
			Help: "Errors raised anywhere in the orchestration core, by error type and component.",
		}, []string{"error_type", "component"}),
		RetryAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retry_attempts_count_total",
			Help: "Retry attempts made by the resilient caller, by component and reason.",
		}, []string{"component", "retry_reason"}),
		SessionCountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_count_total",
			Help: "Sessions created/completed, by agent and lifecycle event.",
		}, []string{"agent_name", "event"}),
		ActiveSessionsCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_sessions_current",
			Help: "Sessions currently open.",
		}),
		SessionDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "session_duration_seconds",
			Help:    "End-to-end duration of one orchestration request within a session.",
			Buckets: latencyBuckets,
		}, []string{"agent_name"}),
		ApplicationInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "application_info",
			Help: "Static build information; value is always 1.",
		}, []string{"version"}),
		MetricsRenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "metrics_render_failures_total",
			Help: "Times the metrics endpoint failed to render the full registry.",
		}),
	}

	r.ApplicationInfo.WithLabelValues(version).Set(1)
	return r
}

// Handler renders the registry in the OpenMetrics exposition format. If
// rendering fails it never returns a server error: it bumps
// MetricsRenderFailures and serves a minimal fallback payload instead, so
// the metrics endpoint itself can never become the thing that's down.
func (r *Registry) Handler() http.Handler {
	underlying := promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				r.MetricsRenderFailures.Inc()
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("# metrics render failed\n"))
			}
		}()
		underlying.ServeHTTP(w, req)
	})
}
