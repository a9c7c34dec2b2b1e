package contracts

import "time"

// ProviderTag enumerates the supported LLM backends. Each has its own
// key-format regex (internal/security) and adapter (internal/providers).
type ProviderTag string

const (
	ProviderOpenAI    ProviderTag = "openai"
	ProviderAnthropic ProviderTag = "anthropic"
	ProviderGemini    ProviderTag = "gemini"
	ProviderMistral   ProviderTag = "mistral"
	ProviderGrok      ProviderTag = "grok"
	ProviderQwen      ProviderTag = "qwen"
	ProviderDeepseek  ProviderTag = "deepseek"
	ProviderKimi      ProviderTag = "kimi"
)

// AllProviderTags lists every supported provider tag, in a stable order.
func AllProviderTags() []ProviderTag {
	return []ProviderTag{
		ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderMistral,
		ProviderGrok, ProviderQwen, ProviderDeepseek, ProviderKimi,
	}
}

// RetryConfig bounds the resilient caller's retry behavior. Attempt k
// (1-indexed) sleeps DelayBase*2^(k-1) seconds before attempt k+1.
type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts" yaml:"max_attempts"`
	DelayBase   float64 `json:"delay_base_seconds" yaml:"delay_base_seconds"`
}

// DefaultRetryConfig returns the spec-mandated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, DelayBase: 1.0}
}

// Normalize clamps MaxAttempts to [1,10] and DelayBase to [0.1,60], filling
// in defaults for zero values.
func (r RetryConfig) Normalize() RetryConfig {
	out := r
	if out.MaxAttempts == 0 {
		out.MaxAttempts = 3
	}
	if out.DelayBase == 0 {
		out.DelayBase = 1.0
	}
	if out.MaxAttempts < 1 {
		out.MaxAttempts = 1
	}
	if out.MaxAttempts > 10 {
		out.MaxAttempts = 10
	}
	if out.DelayBase < 0.1 {
		out.DelayBase = 0.1
	}
	if out.DelayBase > 60 {
		out.DelayBase = 60
	}
	return out
}

// BackoffDelay returns the sleep duration before attempt k+1, per the
// backoff law delay = delay_base * 2^(k-1).
func (r RetryConfig) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := r.DelayBase
	for i := 1; i < attempt; i++ {
		seconds *= 2
	}
	return time.Duration(seconds * float64(time.Second))
}

// AgentConfig names the provider, model, and decoding parameters an
// orchestration request runs against.
type AgentConfig struct {
	AgentID      string      `json:"agent_id"`
	Provider     ProviderTag `json:"provider"`
	Model        string      `json:"model"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Temperature  float64     `json:"temperature"`
	MaxTokens    int         `json:"max_tokens"`
	EnabledTools []string    `json:"tools"`
	Retry        RetryConfig `json:"retry"`
}

// Normalize clamps decoding parameters and fills in retry defaults.
func (c AgentConfig) Normalize() AgentConfig {
	out := c
	if out.Temperature < 0 {
		out.Temperature = 0
	}
	if out.Temperature > 2 {
		out.Temperature = 2
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 1024
	}
	if out.MaxTokens > 32768 {
		out.MaxTokens = 32768
	}
	out.Retry = out.Retry.Normalize()
	return out
}
