// Package factory builds and caches provider adapters by (tag, model),
// for the lifetime of the process.
package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuscore/orchestrator/internal/providers"
	"github.com/nexuscore/orchestrator/internal/security"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// ErrUnknownProvider is returned when asked to build an adapter for a tag
// with no registered constructor.
type ErrUnknownProvider struct {
	Tag contracts.ProviderTag
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("factory: unknown provider %q", e.Tag)
}

// KeySet maps each provider tag to its configured API key. Missing or empty
// entries mean the provider is not configured for this process.
type KeySet map[contracts.ProviderTag]string

type cacheKey struct {
	tag   contracts.ProviderTag
	model string
}

// Factory constructs provider adapters on demand and caches one instance
// per (tag, model) pair for the lifetime of the process.
type Factory struct {
	keys KeySet

	mu    sync.RWMutex
	cache map[cacheKey]providers.Provider
}

// New builds a Factory over the given key set. Keys are assumed to have
// already passed security.Validate; New does not re-validate them.
func New(keys KeySet) *Factory {
	return &Factory{keys: keys, cache: make(map[cacheKey]providers.Provider)}
}

// Get returns the cached adapter for (tag, model), constructing and
// caching one on first use.
func (f *Factory) Get(ctx context.Context, tag contracts.ProviderTag, model string) (providers.Provider, error) {
	key := cacheKey{tag: tag, model: model}

	f.mu.RLock()
	if p, ok := f.cache[key]; ok {
		f.mu.RUnlock()
		return p, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.cache[key]; ok {
		return p, nil
	}

	p, err := f.build(ctx, tag)
	if err != nil {
		return nil, err
	}
	f.cache[key] = p
	return p, nil
}

// ListConfigured returns the provider tags with a configured, non-empty
// key, in AllProviderTags order.
func (f *Factory) ListConfigured() []contracts.ProviderTag {
	var out []contracts.ProviderTag
	for _, tag := range contracts.AllProviderTags() {
		if f.keys[tag] != "" {
			out = append(out, tag)
		}
	}
	return out
}

func (f *Factory) build(ctx context.Context, tag contracts.ProviderTag) (providers.Provider, error) {
	apiKey := f.keys[tag]
	switch tag {
	case contracts.ProviderOpenAI:
		return providers.NewOpenAICompatAdapter(tag, apiKey, "", []string{"gpt-4o", "gpt-4-turbo", "gpt-4o-mini"}), nil
	case contracts.ProviderAnthropic:
		return providers.NewAnthropicAdapter(apiKey, ""), nil
	case contracts.ProviderGemini:
		return providers.NewGeminiAdapter(ctx, apiKey)
	case contracts.ProviderMistral:
		return providers.NewOpenAICompatAdapter(tag, apiKey, "https://api.mistral.ai/v1", []string{"mistral-large-latest", "mistral-small-latest"}), nil
	case contracts.ProviderGrok:
		return providers.NewOpenAICompatAdapter(tag, apiKey, "https://api.x.ai/v1", []string{"grok-2-latest", "grok-beta"}), nil
	case contracts.ProviderQwen:
		return providers.NewOpenAICompatAdapter(tag, apiKey, "https://dashscope.aliyuncs.com/compatible-mode/v1", []string{"qwen-max", "qwen-plus"}), nil
	case contracts.ProviderDeepseek:
		return providers.NewOpenAICompatAdapter(tag, apiKey, "https://api.deepseek.com/v1", []string{"deepseek-chat", "deepseek-reasoner"}), nil
	case contracts.ProviderKimi:
		return providers.NewOpenAICompatAdapter(tag, apiKey, "https://api.moonshot.cn/v1", []string{"kimi-k2-0711-preview"}), nil
	default:
		return nil, &ErrUnknownProvider{Tag: tag}
	}
}

// ValidateKeys runs security.Validate over every configured key, returning
// one error per invalid key (nil if all configured keys are well-formed).
func ValidateKeys(keys KeySet) map[contracts.ProviderTag]error {
	out := make(map[contracts.ProviderTag]error)
	for tag, key := range keys {
		if key == "" {
			continue
		}
		ok, err := security.Validate(tag, key)
		if err != nil {
			out[tag] = err
			continue
		}
		if !ok {
			out[tag] = fmt.Errorf("factory: key for %s does not match expected format (masked: %s)", tag, security.Mask(key))
		}
	}
	return out
}
