// Package security validates provider API keys against their vendor-specific
// format and produces masked forms safe to log or surface in error output.
// Neither function ever returns or logs a raw key.
package security

import (
	"fmt"
	"regexp"

	"github.com/nexuscore/orchestrator/pkg/contracts"
)

var keyPatterns = map[contracts.ProviderTag]*regexp.Regexp{
	contracts.ProviderOpenAI:    regexp.MustCompile(`^sk-[A-Za-z0-9\-_]{40,}$`),
	contracts.ProviderAnthropic: regexp.MustCompile(`^sk-ant-api03-[A-Za-z0-9\-_]{95}$`),
	contracts.ProviderGemini:    regexp.MustCompile(`^AIza[A-Za-z0-9_\-]{33,}$`),
	contracts.ProviderMistral:   regexp.MustCompile(`^[A-Za-z0-9]{32}$`),
	contracts.ProviderGrok:      regexp.MustCompile(`^xai-[A-Za-z0-9]{40}$`),
	contracts.ProviderQwen:      regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
	contracts.ProviderDeepseek:  regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
	contracts.ProviderKimi:      regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
}

// ErrUnknownProvider is returned when Validate is asked about a tag with no
// registered key format.
type ErrUnknownProvider struct {
	Tag contracts.ProviderTag
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("security: no key format registered for provider %q", e.Tag)
}

// Validate reports whether key matches the expected wire format for tag.
func Validate(tag contracts.ProviderTag, key string) (bool, error) {
	pattern, ok := keyPatterns[tag]
	if !ok {
		return false, &ErrUnknownProvider{Tag: tag}
	}
	return pattern.MatchString(key), nil
}

// Mask renders a key safe for logs and error output: at most 8 characters
// of the original key survive, and no surviving run is longer than 4
// characters. Keys shorter than 12 characters are masked down to the
// ellipsis alone, since any partial reveal of a short key meaningfully
// narrows the search space for the rest.
func Mask(key string) string {
	const ellipsis = "..."
	if len(key) < 12 {
		return ellipsis
	}
	return key[:4] + ellipsis + key[len(key)-4:]
}
