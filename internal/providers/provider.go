package providers

import (
	"context"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// CompletionRequest is what the orchestrator hands to an adapter: the
// conversation so far plus the tool schemas currently enabled for the
// agent. Adapters never see retry configuration — retries live in C9.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []contracts.Message
	Tools        []contracts.ToolSchema
	Temperature  float64
	MaxTokens    int
}

// CompletionResult is one complete (non-streaming) model turn.
type CompletionResult struct {
	Content          string
	ToolCalls        []contracts.ToolCall
	PromptTokens     int
	CompletionTokens int
}

// Provider is the adapter contract every vendor integration implements.
// Implementations must perform exactly one HTTP attempt per ChatCompletion
// call and must never retry internally — the resilient caller (C9) owns
// all retry and backoff policy. Key handling (validation and masking) is
// delegated entirely to internal/security; adapters hold only an opaque,
// already-validated key string.
type Provider interface {
	// Tag identifies the vendor this adapter talks to.
	Tag() contracts.ProviderTag

	// SupportedModels lists the model names this adapter accepts. A non-nil
	// result does not change ChatCompletion's behavior; it exists for
	// introspection (GET /api/providers).
	SupportedModels() []string

	// SupportsTools reports whether this adapter can translate
	// CompletionRequest.Tools into a vendor tool-call mechanism. If false and
	// the request carries tools, the orchestrator returns
	// MALFORMED_REQUEST rather than silently dropping them.
	SupportsTools() bool

	// ChatCompletion performs exactly one request/response round trip.
	// Errors are always *CallError.
	ChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResult, error)

	// Health performs a minimal, side-effect-free reachability check (e.g.
	// listing models) for GET /api/providers.
	Health(ctx context.Context) error
}
