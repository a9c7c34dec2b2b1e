// Package orchestrator implements C10: the agentic tool-use loop that
// drives one OrchestrationRequest from a user message to a final assistant
// turn, looping through the model and the tool registry as needed.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexuscore/orchestrator/internal/factory"
	"github.com/nexuscore/orchestrator/internal/providers"
	"github.com/nexuscore/orchestrator/internal/resilient"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/internal/summarizer"
	"github.com/nexuscore/orchestrator/internal/toolregistry"
	"github.com/nexuscore/orchestrator/internal/tracer"
	"github.com/nexuscore/orchestrator/pkg/contracts"

	metricspkg "github.com/nexuscore/orchestrator/internal/metrics"
)

// DefaultMaxIterations bounds how many model/tool round trips one request
// may take before the orchestrator gives up.
const DefaultMaxIterations = 10

// Default per-scope timeouts, overridable via Config.
const (
	DefaultProviderCallTimeout = 60 * time.Second
	DefaultToolTimeout         = 30 * time.Second
	DefaultRequestTimeout      = 300 * time.Second
)

// Config bounds one Orchestrator's behavior.
type Config struct {
	MaxIterations       int
	ProviderCallTimeout time.Duration
	ToolTimeout         time.Duration
	RequestTimeout      time.Duration
	SummarizerProvider  contracts.ProviderTag
	SummarizerModel     string
}

func (c Config) normalized() Config {
	out := c
	if out.MaxIterations <= 0 {
		out.MaxIterations = DefaultMaxIterations
	}
	if out.ProviderCallTimeout <= 0 {
		out.ProviderCallTimeout = DefaultProviderCallTimeout
	}
	if out.ToolTimeout <= 0 {
		out.ToolTimeout = DefaultToolTimeout
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	return out
}

// Orchestrator ties together the session store, provider factory, tool
// registry, summarizer, and resilient caller into one request-processing
// loop. It is the only component that appends assistant/tool messages and
// the only writer that triggers summarization.
type Orchestrator struct {
	Store   sessions.Store
	Factory *factory.Factory
	Tools   *toolregistry.Registry
	Metrics *metricspkg.Registry
	Logger  *slog.Logger
	Config  Config

	// getProviderOverride substitutes Factory.Get in tests, so unit tests
	// can exercise the loop against a scripted provider without a
	// configured API key or a network call.
	getProviderOverride func(ctx context.Context, tag contracts.ProviderTag, model string) (providers.Provider, error)
}

func (o *Orchestrator) resolveProvider(ctx context.Context, tag contracts.ProviderTag, model string) (providers.Provider, error) {
	if o.getProviderOverride != nil {
		return o.getProviderOverride(ctx, tag, model)
	}
	return o.Factory.Get(ctx, tag, model)
}

// New builds an Orchestrator. cfg is normalized to its defaults for any
// zero fields.
func New(store sessions.Store, f *factory.Factory, tools *toolregistry.Registry, metrics *metricspkg.Registry, logger *slog.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		Store:   store,
		Factory: f,
		Tools:   tools,
		Metrics: metrics,
		Logger:  logger,
		Config:  cfg.normalized(),
	}
}

// Process runs one orchestration request end to end.
func (o *Orchestrator) Process(ctx context.Context, req contracts.OrchestrationRequest) contracts.OrchestrationResponse {
	start := time.Now()
	agentCfg := req.AgentConfig.Normalize()

	ctx, cancel := context.WithTimeout(ctx, o.Config.RequestTimeout)
	defer cancel()

	sess, err := o.Store.GetOrCreate(ctx, req.SessionID, agentCfg.AgentID)
	if err != nil {
		return o.failResponse(req.SessionID, agentCfg, start, fail(CodeUnknownAgent, "could not resolve session"))
	}

	t := tracer.New(o.Store, o.Metrics, o.Logger, agentCfg.Provider, agentCfg.Model, agentCfg.AgentID)
	t.Record(ctx, sess.SessionID, "orchestrator", tracer.EventSessionCreated, nil)
	t.Record(ctx, sess.SessionID, "orchestrator", tracer.EventRequestReceived, nil)

	provider, err := o.resolveProvider(ctx, agentCfg.Provider, agentCfg.Model)
	if err != nil {
		var unknown *factory.ErrUnknownProvider
		if errors.As(err, &unknown) {
			return o.failResponseTraced(ctx, t, sess.SessionID, agentCfg, start, fail(CodeUnknownProvider, fmt.Sprintf("provider %q is not configured", agentCfg.Provider)))
		}
		return o.failResponseTraced(ctx, t, sess.SessionID, agentCfg, start, fail(CodeUnknownProvider, "provider unavailable"))
	}

	toolSchemas, err := o.Tools.Schemas(agentCfg.EnabledTools)
	if err != nil {
		return o.failResponseTraced(ctx, t, sess.SessionID, agentCfg, start, fail(CodeMalformedRequest, "one or more requested tools are not registered"))
	}
	if len(toolSchemas) > 0 && !provider.SupportsTools() {
		return o.failResponseTraced(ctx, t, sess.SessionID, agentCfg, start, fail(CodeMalformedRequest, "selected provider does not support tool calling"))
	}

	meta := contracts.ResponseMetadata{}
	o.maybeSummarize(ctx, t, agentCfg, sess)

	if err := o.Store.AppendMessages(ctx, sess.SessionID, contracts.Message{
		Role:      contracts.RoleUser,
		Content:   req.Message,
		CreatedAt: time.Now(),
	}); err != nil {
		return o.failResponseTraced(ctx, t, sess.SessionID, agentCfg, start, fail(CodeMalformedRequest, "could not append message"))
	}

	content, iterMeta, failure := o.runLoop(ctx, t, sess.SessionID, provider, toolSchemas, agentCfg)
	meta.PromptTokens = iterMeta.PromptTokens
	meta.CompletionTokens = iterMeta.CompletionTokens
	meta.RetriesOccurred = iterMeta.RetriesOccurred
	meta.Attempts = iterMeta.Attempts
	meta.TotalIterations = iterMeta.TotalIterations
	meta.SummarizationFired = iterMeta.SummarizationFired

	if failure != nil {
		meta.ErrorCode = string(failure.Code)
		t.Record(ctx, sess.SessionID, "orchestrator", tracer.EventRequestFailed, map[string]any{"code": failure.Code})
		t.Record(ctx, sess.SessionID, "orchestrator", tracer.EventSessionCompleted, nil)
		t.ObserveSessionDuration(time.Since(start))
		return contracts.OrchestrationResponse{
			Content:   failure.Message,
			SessionID: sess.SessionID,
			Provider:  agentCfg.Provider,
			Model:     agentCfg.Model,
			Duration:  time.Since(start),
			Metadata:  meta,
		}
	}

	// Reaching the iteration cap is not a failure: the request finalizes
	// with whatever assistant content the loop last produced, carrying the
	// taxonomy code for observability without tripping an error status.
	if iterMeta.IterationCapReached {
		meta.ErrorCode = string(CodeMaxIterationsReached)
	}

	t.Record(ctx, sess.SessionID, "orchestrator", tracer.EventRequestFinished, nil)
	t.Record(ctx, sess.SessionID, "orchestrator", tracer.EventSessionCompleted, nil)
	t.ObserveSessionDuration(time.Since(start))

	return contracts.OrchestrationResponse{
		Content:   content,
		SessionID: sess.SessionID,
		Provider:  agentCfg.Provider,
		Model:     agentCfg.Model,
		Duration:  time.Since(start),
		Metadata:  meta,
	}
}

func (o *Orchestrator) maybeSummarize(ctx context.Context, t *tracer.Tracer, agentCfg contracts.AgentConfig, sess *contracts.Session) {
	if o.Config.SummarizerModel == "" {
		return
	}
	summarizerProvider, err := o.Factory.Get(ctx, o.Config.SummarizerProvider, o.Config.SummarizerModel)
	if err != nil {
		o.Logger.Warn("summarizer provider unavailable, skipping summarization", "error", err)
		return
	}

	s := summarizer.New(summarizerProvider, o.Config.SummarizerModel)
	if !s.ShouldSummarize(sess) {
		t.Record(ctx, sess.SessionID, "summarizer", tracer.EventSummarizationSkip, nil)
		return
	}

	if err := s.Summarize(ctx, o.Store, sess); err != nil {
		o.Logger.Warn("summarization failed, continuing with uncompacted history", "session_id", sess.SessionID, "error", err)
		return
	}
	t.Record(ctx, sess.SessionID, "summarizer", tracer.EventSummarizationRun, nil)

	refreshed, err := o.Store.Get(ctx, sess.SessionID)
	if err == nil {
		*sess = *refreshed
	}
}

type loopMeta struct {
	PromptTokens        int
	CompletionTokens    int
	RetriesOccurred     bool
	Attempts            int
	TotalIterations     int
	SummarizationFired  bool
	IterationCapReached bool
}

// apologyOnIterationCap is returned when the loop exhausts its iteration
// budget without ever producing assistant content to finalize with.
const apologyOnIterationCap = "I wasn't able to finish this within the allotted number of steps. Please try rephrasing your request or breaking it into smaller parts."

func (o *Orchestrator) runLoop(ctx context.Context, t *tracer.Tracer, sessionID string, provider providers.Provider, toolSchemas []contracts.ToolSchema, agentCfg contracts.AgentConfig) (string, loopMeta, *Failure) {
	meta := loopMeta{}
	lastContent := ""

	for iteration := 1; iteration <= o.Config.MaxIterations; iteration++ {
		meta.TotalIterations = iteration

		sess, err := o.Store.Get(ctx, sessionID)
		if err != nil {
			return "", meta, fail(CodeMalformedRequest, "session disappeared mid-request")
		}

		messages := sess.Messages
		if sess.Summary != "" {
			messages = append([]contracts.Message{{Role: contracts.RoleSystem, Content: "Prior conversation summary: " + sess.Summary}}, messages...)
		}

		callCtx, cancel := context.WithTimeout(ctx, o.Config.ProviderCallTimeout)
		outcome, err := resilient.Call(callCtx, t, sessionID, provider, agentCfg.Retry, providers.CompletionRequest{
			Model:        agentCfg.Model,
			SystemPrompt: agentCfg.SystemPrompt,
			Messages:     messages,
			Tools:        toolSchemas,
			Temperature:  agentCfg.Temperature,
			MaxTokens:    agentCfg.MaxTokens,
		})
		cancel()

		meta.Attempts += outcome.Attempts
		if outcome.Retried {
			meta.RetriesOccurred = true
		}
		meta.PromptTokens += outcome.Result.PromptTokens
		meta.CompletionTokens += outcome.Result.CompletionTokens

		if err != nil {
			if ctx.Err() != nil {
				return "", meta, fail(CodeRequestTimeout, "request exceeded its end-to-end time budget")
			}
			return "", meta, classifyCallFailure(err)
		}

		assistantMsg := contracts.Message{
			Role:      contracts.RoleAssistant,
			Content:   outcome.Result.Content,
			ToolCalls: outcome.Result.ToolCalls,
			CreatedAt: time.Now(),
		}
		if err := o.Store.AppendMessages(ctx, sessionID, assistantMsg); err != nil {
			return "", meta, fail(CodeMalformedRequest, "could not append assistant message")
		}
		lastContent = assistantMsg.Content

		if !assistantMsg.HasToolCalls() {
			return assistantMsg.Content, meta, nil
		}

		toolResults, toolErr := o.executeTools(ctx, t, sessionID, assistantMsg.ToolCalls)
		if toolErr != nil {
			return "", meta, toolErr
		}
		if err := o.Store.AppendMessages(ctx, sessionID, contracts.Message{
			Role:        contracts.RoleTool,
			ToolResults: toolResults,
			CreatedAt:   time.Now(),
		}); err != nil {
			return "", meta, fail(CodeMalformedRequest, "could not append tool results")
		}
	}

	t.Record(ctx, sessionID, "orchestrator", tracer.EventIterationLimit, map[string]any{"max_iterations": o.Config.MaxIterations})
	meta.IterationCapReached = true
	content := lastContent
	if content == "" {
		content = apologyOnIterationCap
	}
	return content, meta, nil
}

// executeTools runs each tool call in order (never concurrently, so a
// later tool can rely on an earlier one's side effects), each bounded by
// the per-tool timeout. A tool error becomes an IsError tool result fed
// back to the model rather than aborting the request.
func (o *Orchestrator) executeTools(ctx context.Context, t *tracer.Tracer, sessionID string, calls []contracts.ToolCall) ([]contracts.ToolResult, *Failure) {
	results := make([]contracts.ToolResult, 0, len(calls))
	for _, call := range calls {
		t.Record(ctx, sessionID, "tool_registry", tracer.EventToolCallStart, map[string]any{"tool": call.Name})

		toolCtx, cancel := context.WithTimeout(ctx, o.Config.ToolTimeout)
		toolStart := time.Now()
		output, err := o.Tools.Execute(toolCtx, call.Name, call.Arguments)
		cancel()
		t.ObserveToolDuration(call.Name, time.Since(toolStart))

		if err != nil {
			t.Record(ctx, sessionID, "tool_registry", tracer.EventToolCallError, map[string]any{
				"tool":       call.Name,
				"error":      err.Error(),
				"error_type": toolErrorType(err),
			})
			body, _ := json.Marshal(map[string]string{
				"error":  toolErrorType(err),
				"name":   call.Name,
				"detail": err.Error(),
			})
			results = append(results, contracts.ToolResult{
				ToolCallID: call.ID,
				Content:    string(body),
				IsError:    true,
			})
			continue
		}

		t.Record(ctx, sessionID, "tool_registry", tracer.EventToolCallSuccess, map[string]any{"tool": call.Name})
		results = append(results, contracts.ToolResult{ToolCallID: call.ID, Content: output})
	}
	return results, nil
}

// toolErrorType maps a tool-execution error to the taxonomy tag recorded
// in its tool-result body and trace event, per the error kinds a tool
// call may fail with: unknown tool, schema-invalid arguments, or any
// other executor-raised error.
func toolErrorType(err error) string {
	var unknown *toolregistry.ErrUnknownTool
	if errors.As(err, &unknown) {
		return "UNKNOWN_TOOL"
	}
	var invalid *toolregistry.ErrInvalidArguments
	if errors.As(err, &invalid) {
		return "INVALID_ARGUMENTS"
	}
	return "TOOL_EXECUTION_FAILED"
}

func classifyCallFailure(err error) *Failure {
	var exhausted *resilient.ExhaustedError
	if errors.As(err, &exhausted) {
		return fail(CodeResilientLLMFailure, "the model provider could not complete this request after retrying")
	}
	if callErr, ok := providers.AsCallError(err); ok {
		return fail(ErrorCode(callErr.Code), "the model provider could not complete this request")
	}
	return fail(CodeResilientLLMFailure, "the model provider could not complete this request")
}

// failResponse builds a failure response for requests that never reached
// the point of having a tracer (the session itself could not be
// resolved), so there is nothing to close out in metrics.
func (o *Orchestrator) failResponse(sessionID string, agentCfg contracts.AgentConfig, start time.Time, failure *Failure) contracts.OrchestrationResponse {
	return contracts.OrchestrationResponse{
		Content:   failure.Message,
		SessionID: sessionID,
		Provider:  agentCfg.Provider,
		Model:     agentCfg.Model,
		Duration:  time.Since(start),
		Metadata:  contracts.ResponseMetadata{ErrorCode: string(failure.Code)},
	}
}

// failResponseTraced builds a failure response for requests that already
// emitted session_created, closing the session's lifecycle out with
// session_completed/session_duration_seconds so active_sessions_current
// doesn't leak on early validation failures.
func (o *Orchestrator) failResponseTraced(ctx context.Context, t *tracer.Tracer, sessionID string, agentCfg contracts.AgentConfig, start time.Time, failure *Failure) contracts.OrchestrationResponse {
	t.Record(ctx, sessionID, "orchestrator", tracer.EventRequestFailed, map[string]any{"code": failure.Code})
	t.Record(ctx, sessionID, "orchestrator", tracer.EventSessionCompleted, nil)
	t.ObserveSessionDuration(time.Since(start))
	return o.failResponse(sessionID, agentCfg, start, failure)
}
