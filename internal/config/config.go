// Package config loads and validates the orchestrator's process
// configuration: server bindings, per-provider API keys, and the
// production-mode guardrails the spec requires.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nexuscore/orchestrator/internal/factory"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// Environment is the deployment tier. Production tightens validation: it
// requires at least one valid provider key and an explicit CORS origin
// list.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// ServerConfig binds the HTTP surface (C10's external interface).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OrchestrationConfig tunes the agent loop's bounds.
type OrchestrationConfig struct {
	MaxIterations       int     `yaml:"max_iterations"`
	ProviderCallTimeout float64 `yaml:"provider_call_timeout_seconds"`
	ToolTimeout         float64 `yaml:"tool_timeout_seconds"`
	RequestTimeout      float64 `yaml:"request_timeout_seconds"`
}

// SummarizerConfig names the model used to compact session history. The
// spec leaves the summarizer's model choice as an explicit open question;
// this resolves it by requiring it be configured, never hard-coded.
type SummarizerConfig struct {
	Provider contracts.ProviderTag `yaml:"provider"`
	Model    string                `yaml:"model"`
}

// Config is the orchestrator's full process configuration.
type Config struct {
	Environment       Environment         `yaml:"environment"`
	Server            ServerConfig        `yaml:"server"`
	Orchestration     OrchestrationConfig `yaml:"orchestration"`
	Summarizer        SummarizerConfig    `yaml:"summarizer"`
	CORSAllowedOrigins []string           `yaml:"cors_allowed_origins"`

	// ProviderKeys is populated from environment variables, never from the
	// YAML file, so keys never land in a config file on disk.
	ProviderKeys factory.KeySet `yaml:"-"`
}

// providerKeyEnvVars maps each provider tag to the environment variable
// carrying its API key.
var providerKeyEnvVars = map[contracts.ProviderTag]string{
	contracts.ProviderOpenAI:    "OPENAI_API_KEY",
	contracts.ProviderAnthropic: "ANTHROPIC_API_KEY",
	contracts.ProviderGemini:    "GEMINI_API_KEY",
	contracts.ProviderMistral:   "MISTRAL_API_KEY",
	contracts.ProviderGrok:      "GROK_API_KEY",
	contracts.ProviderQwen:      "QWEN_API_KEY",
	contracts.ProviderDeepseek:  "DEEPSEEK_API_KEY",
	contracts.ProviderKimi:      "KIMI_K2_API_KEY",
}

// Load reads path (a YAML document with ${VAR}-style environment
// expansion applied before parsing), applies environment-variable
// overrides and defaults, validates the result, and returns it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := decoder.Decode(new(any)); err != io.EOF {
		return nil, fmt.Errorf("config: %s contains more than one YAML document", path)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Orchestration.MaxIterations == 0 {
		cfg.Orchestration.MaxIterations = 10
	}
	if cfg.Orchestration.ProviderCallTimeout == 0 {
		cfg.Orchestration.ProviderCallTimeout = 60
	}
	if cfg.Orchestration.ToolTimeout == 0 {
		cfg.Orchestration.ToolTimeout = 30
	}
	if cfg.Orchestration.RequestTimeout == 0 {
		cfg.Orchestration.RequestTimeout = 300
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = Environment(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = strings.Split(v, ",")
	}

	keys := make(factory.KeySet, len(providerKeyEnvVars))
	for tag, envVar := range providerKeyEnvVars {
		if v := os.Getenv(envVar); v != "" {
			keys[tag] = v
		}
	}
	cfg.ProviderKeys = keys
}

// ValidationError is returned from Load/validate; Code names the
// configuration-time failure per the error taxonomy.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func validate(cfg *Config) error {
	if cfg.Environment != EnvDevelopment && cfg.Environment != EnvStaging && cfg.Environment != EnvProduction {
		return &ValidationError{Code: "INVALID_ENVIRONMENT", Message: fmt.Sprintf("unknown environment %q", cfg.Environment)}
	}

	if cfg.Environment == EnvProduction {
		if len(cfg.CORSAllowedOrigins) == 0 {
			return &ValidationError{Code: "MISSING_CORS_ORIGINS_IN_PRODUCTION", Message: "CORS_ALLOWED_ORIGINS must be set in production"}
		}

		invalid := factory.ValidateKeys(cfg.ProviderKeys)
		validCount := 0
		for tag, key := range cfg.ProviderKeys {
			if key == "" {
				continue
			}
			if _, bad := invalid[tag]; !bad {
				validCount++
			}
		}
		if validCount == 0 {
			return &ValidationError{Code: "NO_VALID_KEYS_IN_PRODUCTION", Message: "at least one provider key must be configured and well-formed in production"}
		}
	}

	return nil
}

// Watch reloads the config file whenever it changes on disk and calls
// onChange with the freshly validated result. A reload that fails
// validation is logged and discarded — the process keeps running on the
// last good config rather than tearing itself down over an edit-in-
// progress. Watch blocks until ctx is canceled.
//
// Most editors and config-management tools replace the file rather than
// write in place, which unlinks the inode fsnotify is watching; watching
// the containing directory and filtering by filename survives that.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: starting watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
