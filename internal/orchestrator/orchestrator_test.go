package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/nexuscore/orchestrator/internal/factory"
	"github.com/nexuscore/orchestrator/internal/metrics"
	"github.com/nexuscore/orchestrator/internal/providers"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/internal/toolregistry"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

func newTestOrchestrator(t *testing.T, provider providers.Provider) (*Orchestrator, sessions.Store) {
	t.Helper()
	store := sessions.NewMemoryStore()
	reg := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tools := toolregistry.NewBuilder().Build()

	o := New(store, factory.New(factory.KeySet{}), tools, reg, logger, Config{})
	o.getProviderOverride = func(context.Context, contracts.ProviderTag, string) (providers.Provider, error) {
		return provider, nil
	}
	return o, store
}

func TestSingleTurnNoTools(t *testing.T) {
	provider := &scriptedProvider{tag: contracts.ProviderOpenAI, turns: []turn{{content: "hello there"}}}
	o, _ := newTestOrchestrator(t, provider)

	resp := o.Process(context.Background(), contracts.OrchestrationRequest{
		AgentConfig: contracts.AgentConfig{AgentID: "a1", Provider: contracts.ProviderOpenAI, Model: "gpt-4o", MaxTokens: 100},
		Message:     "hi",
	})

	if resp.Metadata.ErrorCode != "" {
		t.Fatalf("unexpected error code: %s", resp.Metadata.ErrorCode)
	}
	if resp.Content != "hello there" {
		t.Fatalf("Content = %q", resp.Content)
	}
}

func TestToolUsingTurnAppendsFourMessages(t *testing.T) {
	provider := &scriptedProvider{
		tag: contracts.ProviderOpenAI,
		turns: []turn{
			{toolCalls: []contracts.ToolCall{{ID: "call-1", Name: "get_current_time", Arguments: map[string]contracts.ArgValue{}}}},
			{content: "the time is noted"},
		},
	}
	o, store := newTestOrchestrator(t, provider)

	resp := o.Process(context.Background(), contracts.OrchestrationRequest{
		AgentConfig: contracts.AgentConfig{AgentID: "a1", Provider: contracts.ProviderOpenAI, Model: "gpt-4o", MaxTokens: 100, EnabledTools: []string{"get_current_time"}},
		Message:     "what time is it",
	})

	if resp.Metadata.ErrorCode != "" {
		t.Fatalf("unexpected error code: %s", resp.Metadata.ErrorCode)
	}

	sess, err := store.Get(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// user, assistant(tool_calls), tool(result), assistant(final) == 4
	if len(sess.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4: %+v", len(sess.Messages), sess.Messages)
	}
}

func TestMalformedRequestOnUnknownTool(t *testing.T) {
	provider := &scriptedProvider{tag: contracts.ProviderOpenAI, turns: []turn{{content: "n/a"}}}
	o, _ := newTestOrchestrator(t, provider)

	resp := o.Process(context.Background(), contracts.OrchestrationRequest{
		AgentConfig: contracts.AgentConfig{AgentID: "a1", Provider: contracts.ProviderOpenAI, Model: "gpt-4o", EnabledTools: []string{"no_such_tool"}},
		Message:     "hi",
	})

	if resp.Metadata.ErrorCode != string(CodeMalformedRequest) {
		t.Fatalf("ErrorCode = %s, want %s", resp.Metadata.ErrorCode, CodeMalformedRequest)
	}
}

func TestIterationCapIsNonFatalAndFinalizesWithLastContent(t *testing.T) {
	// Every turn returns a tool call, so the loop never finds a stopping
	// point on its own and must run out the iteration budget.
	turns := make([]turn, 0, DefaultMaxIterations)
	for i := 0; i < DefaultMaxIterations; i++ {
		turns = append(turns, turn{
			content:   "still working",
			toolCalls: []contracts.ToolCall{{ID: "call-1", Name: "get_current_time", Arguments: map[string]contracts.ArgValue{}}},
		})
	}
	provider := &scriptedProvider{tag: contracts.ProviderOpenAI, turns: turns}
	o, _ := newTestOrchestrator(t, provider)
	o.Config.MaxIterations = len(turns)

	resp := o.Process(context.Background(), contracts.OrchestrationRequest{
		AgentConfig: contracts.AgentConfig{AgentID: "a1", Provider: contracts.ProviderOpenAI, Model: "gpt-4o", MaxTokens: 100, EnabledTools: []string{"get_current_time"}},
		Message:     "keep going forever",
	})

	if resp.Metadata.ErrorCode != string(CodeMaxIterationsReached) {
		t.Fatalf("ErrorCode = %q, want %q", resp.Metadata.ErrorCode, CodeMaxIterationsReached)
	}
	if resp.Content != "still working" {
		t.Fatalf("Content = %q, want the last assistant content to survive the cap", resp.Content)
	}
}

// turn and scriptedProvider mirror a provider that plays back a fixed
// script of results, one per ChatCompletion call.
type turn struct {
	content   string
	toolCalls []contracts.ToolCall
}

type scriptedProvider struct {
	tag       contracts.ProviderTag
	turns     []turn
	callCount int
}

func (p *scriptedProvider) Tag() contracts.ProviderTag { return p.tag }
func (p *scriptedProvider) SupportedModels() []string   { return nil }
func (p *scriptedProvider) SupportsTools() bool         { return true }
func (p *scriptedProvider) Health(ctx context.Context) error { return nil }
func (p *scriptedProvider) ChatCompletion(ctx context.Context, req providers.CompletionRequest) (providers.CompletionResult, error) {
	idx := p.callCount
	p.callCount++
	if idx >= len(p.turns) {
		return providers.CompletionResult{Content: "done"}, nil
	}
	tn := p.turns[idx]
	return providers.CompletionResult{Content: tn.content, ToolCalls: tn.toolCalls}, nil
}
