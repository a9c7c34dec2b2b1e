package resilient

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nexuscore/orchestrator/internal/metrics"
	"github.com/nexuscore/orchestrator/internal/providers"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/internal/tracer"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

type scriptedProvider struct {
	tag     contracts.ProviderTag
	results []error
	calls   int
}

func (p *scriptedProvider) Tag() contracts.ProviderTag      { return p.tag }
func (p *scriptedProvider) SupportedModels() []string        { return nil }
func (p *scriptedProvider) SupportsTools() bool               { return false }
func (p *scriptedProvider) Health(ctx context.Context) error { return nil }
func (p *scriptedProvider) ChatCompletion(ctx context.Context, req providers.CompletionRequest) (providers.CompletionResult, error) {
	idx := p.calls
	p.calls++
	if idx >= len(p.results) {
		return providers.CompletionResult{Content: "ok"}, nil
	}
	if err := p.results[idx]; err != nil {
		return providers.CompletionResult{}, err
	}
	return providers.CompletionResult{Content: "ok"}, nil
}

func newTestTracer(t *testing.T) (*tracer.Tracer, *sessions.MemoryStore, string) {
	t.Helper()
	store := sessions.NewMemoryStore()
	sess, _ := store.GetOrCreate(context.Background(), "", "agent-1")
	reg := metrics.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return tracer.New(store, reg, logger, contracts.ProviderOpenAI, "gpt-4o", "agent-1"), store, sess.SessionID
}

func TestCallSucceedsAfterTransientFailures(t *testing.T) {
	tr, _, sessionID := newTestTracer(t)
	p := &scriptedProvider{
		tag: contracts.ProviderOpenAI,
		results: []error{
			providers.NewCallError(429, nil),
			providers.NewCallError(429, nil),
			nil,
		},
	}

	cfg := contracts.RetryConfig{MaxAttempts: 3, DelayBase: 0.01}
	start := time.Now()
	outcome, err := Call(context.Background(), tr, sessionID, p, cfg, providers.CompletionRequest{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if outcome.Attempts != 3 || !outcome.Retried {
		t.Fatalf("outcome = %+v, want 3 attempts with retries", outcome)
	}
	// Two sleeps of delay_base*2^0 and delay_base*2^1 => 0.01 + 0.02 = 0.03s floor.
	if elapsed < 30*time.Millisecond {
		t.Fatalf("elapsed %v is below the backoff floor", elapsed)
	}
}

func TestCallExhaustsRetriesAndTagsFailureCode(t *testing.T) {
	tr, _, sessionID := newTestTracer(t)
	p := &scriptedProvider{
		tag: contracts.ProviderOpenAI,
		results: []error{
			providers.NewCallError(500, nil),
			providers.NewCallError(500, nil),
			providers.NewCallError(500, nil),
		},
	}

	cfg := contracts.RetryConfig{MaxAttempts: 3, DelayBase: 0.01}
	outcome, err := Call(context.Background(), tr, sessionID, p, cfg, providers.CompletionRequest{})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if outcome.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", outcome.Attempts)
	}
}

func TestCallDoesNotRetryNonRetryableError(t *testing.T) {
	tr, _, sessionID := newTestTracer(t)
	p := &scriptedProvider{
		tag:     contracts.ProviderOpenAI,
		results: []error{providers.NewCallError(400, nil)},
	}

	cfg := contracts.RetryConfig{MaxAttempts: 5, DelayBase: 0.01}
	outcome, err := Call(context.Background(), tr, sessionID, p, cfg, providers.CompletionRequest{})

	if err == nil {
		t.Fatal("expected non-retryable error to surface")
	}
	if outcome.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1 (must not retry a 400)", outcome.Attempts)
	}
}

func TestCallEmitsRetryAttemptStartOnEveryAttempt(t *testing.T) {
	tr, store, sessionID := newTestTracer(t)
	p := &scriptedProvider{
		tag: contracts.ProviderOpenAI,
		results: []error{
			providers.NewCallError(429, nil),
			providers.NewCallError(429, nil),
			nil,
		},
	}

	cfg := contracts.RetryConfig{MaxAttempts: 3, DelayBase: 0.001}
	if _, err := Call(context.Background(), tr, sessionID, p, cfg, providers.CompletionRequest{}); err != nil {
		t.Fatalf("Call returned error: %v", err)
	}

	sess, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var starts, failed int
	for _, step := range sess.Trace {
		switch step.Event {
		case string(tracer.EventRetryAttemptStart):
			starts++
		case string(tracer.EventRetryAttemptFailed):
			failed++
		case string(tracer.EventLLMCallError):
			t.Fatalf("retryable failure must not emit llm_call_error")
		}
	}
	if starts != 3 {
		t.Fatalf("retry_attempt_start count = %d, want 3 (one per attempt, including the first)", starts)
	}
	if failed != 2 {
		t.Fatalf("retry_attempt_failed count = %d, want 2", failed)
	}
}

func TestCallNonRetryableEmitsLLMCallErrorNotRetryAttemptFailed(t *testing.T) {
	tr, store, sessionID := newTestTracer(t)
	p := &scriptedProvider{
		tag:     contracts.ProviderOpenAI,
		results: []error{providers.NewCallError(400, nil)},
	}

	cfg := contracts.RetryConfig{MaxAttempts: 5, DelayBase: 0.001}
	if _, err := Call(context.Background(), tr, sessionID, p, cfg, providers.CompletionRequest{}); err == nil {
		t.Fatal("expected non-retryable error to surface")
	}

	sess, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var sawCallError bool
	for _, step := range sess.Trace {
		if step.Event == string(tracer.EventRetryAttemptFailed) {
			t.Fatalf("a non-retryable failure must not emit retry_attempt_failed")
		}
		if step.Event == string(tracer.EventLLMCallError) {
			sawCallError = true
		}
	}
	if !sawCallError {
		t.Fatal("expected llm_call_error to be recorded for the non-retryable path")
	}
}

func TestCallExhaustionEmitsMaxRetriesExceeded(t *testing.T) {
	tr, store, sessionID := newTestTracer(t)
	p := &scriptedProvider{
		tag: contracts.ProviderOpenAI,
		results: []error{
			providers.NewCallError(500, nil),
			providers.NewCallError(500, nil),
			providers.NewCallError(500, nil),
		},
	}

	cfg := contracts.RetryConfig{MaxAttempts: 3, DelayBase: 0.001}
	if _, err := Call(context.Background(), tr, sessionID, p, cfg, providers.CompletionRequest{}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	sess, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var sawExhausted bool
	for _, step := range sess.Trace {
		if step.Event == string(tracer.EventMaxRetriesExceeded) {
			sawExhausted = true
			if step.Details["max_attempts"] != 3 {
				t.Fatalf("max_retries_exceeded.max_attempts = %v, want 3", step.Details["max_attempts"])
			}
		}
	}
	if !sawExhausted {
		t.Fatal("expected max_retries_exceeded to be recorded")
	}
}

func TestCallCancellationDuringBackoffSleep(t *testing.T) {
	tr, _, sessionID := newTestTracer(t)
	p := &scriptedProvider{
		tag: contracts.ProviderOpenAI,
		results: []error{
			providers.NewCallError(429, nil),
			providers.NewCallError(429, nil),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cfg := contracts.RetryConfig{MaxAttempts: 5, DelayBase: 10}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Call(ctx, tr, sessionID, p, cfg, providers.CompletionRequest{})
	if err == nil {
		t.Fatal("expected context cancellation to abort the backoff sleep")
	}
}
