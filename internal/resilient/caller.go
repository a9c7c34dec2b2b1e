// Package resilient implements C9: the resilient caller that wraps a
// single provider adapter call with bounded, exponential-backoff retry.
//
// Retry eligibility is decided purely from the provider error's taxonomy
// Code, never from its message text. Backoff is deterministic — no jitter
// — because the spec's testable backoff law requires the delay between
// consecutive retry attempts to be *at least* delay_base*2^(k-1); jitter
// that can reduce the delay below that floor would make the law
// unverifiable, so this caller never applies it.
package resilient

import (
	"context"
	"fmt"
	"time"

	"github.com/nexuscore/orchestrator/internal/providers"
	"github.com/nexuscore/orchestrator/internal/tracer"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// Outcome describes how a Call resolved, for metrics/response metadata.
type Outcome struct {
	Result   providers.CompletionResult
	Attempts int
	Retried  bool
}

// FailureCode is returned in metadata.error_code when every attempt is
// exhausted.
const FailureCode = "RESILIENT_LLM_FAILURE"

// ExhaustedError wraps the last attempt's error once MaxAttempts has been
// reached, so callers can distinguish "gave up after retrying" from "failed
// once and wasn't retryable".
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: exhausted %d attempts: %v", FailureCode, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Call invokes provider.ChatCompletion, retrying per cfg on retryable
// errors. It never retries a non-retryable error regardless of attempts
// remaining, and it returns promptly if ctx is canceled — including while
// asleep between attempts.
//
// Each attempt follows §4.8's state machine: emit retry_attempt_start,
// invoke the call, then on success emit llm_call_success; on a retryable
// error emit retry_attempt_failed and, if attempts remain, retry_backoff_delay
// before sleeping; on a non-retryable error emit llm_call_error and return
// immediately. Exhausting every attempt emits max_retries_exceeded.
func Call(ctx context.Context, t *tracer.Tracer, sessionID string, provider providers.Provider, cfg contracts.RetryConfig, req providers.CompletionRequest) (Outcome, error) {
	cfg = cfg.Normalize()

	var lastErr error
	var lastErrorType string
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		t.Record(ctx, sessionID, "resilient_caller", tracer.EventRetryAttemptStart, map[string]any{
			"attempt": attempt, "max_attempts": cfg.MaxAttempts,
		})

		start := time.Now()
		result, err := provider.ChatCompletion(ctx, req)
		t.ObserveLLMCallDuration(time.Since(start))

		if err == nil {
			t.Record(ctx, sessionID, "resilient_caller", tracer.EventLLMCallSuccess, map[string]any{
				"prompt_tokens":     result.PromptTokens,
				"completion_tokens": result.CompletionTokens,
			})
			return Outcome{Result: result, Attempts: attempt, Retried: attempt > 1}, nil
		}

		lastErr = err
		callErr, _ := providers.AsCallError(err)
		errorType := "UNKNOWN"
		if callErr != nil {
			errorType = string(callErr.Code)
		}
		lastErrorType = errorType

		if callErr == nil || !callErr.Code.IsRetryable() {
			t.Record(ctx, sessionID, "resilient_caller", tracer.EventLLMCallError, map[string]any{
				"error_type": errorType, "attempt": attempt,
			})
			return Outcome{Attempts: attempt, Retried: attempt > 1}, lastErr
		}

		t.Record(ctx, sessionID, "resilient_caller", tracer.EventRetryAttemptFailed, map[string]any{
			"attempt": attempt, "error_type": errorType,
		})

		if attempt < cfg.MaxAttempts {
			delay := cfg.BackoffDelay(attempt)
			t.Record(ctx, sessionID, "resilient_caller", tracer.EventRetryBackoffDelay, map[string]any{
				"delay_seconds": delay.Seconds(), "backoff_formula": "delay_base*2^(attempt-1)",
			})
			select {
			case <-ctx.Done():
				return Outcome{Attempts: attempt, Retried: true}, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	safeMessage := "provider call failed"
	if ce, ok := providers.AsCallError(lastErr); ok && ce.Message != "" {
		safeMessage = ce.Message
	}
	t.Record(ctx, sessionID, "resilient_caller", tracer.EventMaxRetriesExceeded, map[string]any{
		"max_attempts":       cfg.MaxAttempts,
		"final_error_type":   lastErrorType,
		"safe_error_message": safeMessage,
	})
	return Outcome{Attempts: cfg.MaxAttempts, Retried: cfg.MaxAttempts > 1}, &ExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}
