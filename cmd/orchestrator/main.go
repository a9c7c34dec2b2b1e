// Command orchestrator runs the multi-provider LLM orchestration service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexuscore/orchestrator/internal/config"
	"github.com/nexuscore/orchestrator/internal/factory"
	"github.com/nexuscore/orchestrator/internal/httpapi"
	"github.com/nexuscore/orchestrator/internal/metrics"
	"github.com/nexuscore/orchestrator/internal/observability"
	"github.com/nexuscore/orchestrator/internal/orchestrator"
	"github.com/nexuscore/orchestrator/internal/sessions"
	"github.com/nexuscore/orchestrator/internal/toolregistry"
	"github.com/nexuscore/orchestrator/pkg/contracts"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "orchestrator",
		Short:   "Multi-provider LLM orchestration service",
		Version: version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	logger := slog.New(observability.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	if invalid := factory.ValidateKeys(cfg.ProviderKeys); len(invalid) > 0 {
		for tag, verr := range invalid {
			logger.Warn("provider key failed format validation and will not be used", "provider", tag, "error", verr)
		}
	}

	store := sessions.NewMemoryStore()
	reg := metrics.New()
	f := factory.New(cfg.ProviderKeys)
	tools := toolregistry.NewBuilder().Build()

	orch := orchestrator.New(store, f, tools, reg, logger, orchestrator.Config{
		MaxIterations:      cfg.Orchestration.MaxIterations,
		SummarizerProvider: cfg.Summarizer.Provider,
		SummarizerModel:    cfg.Summarizer.Model,
	})

	server := httpapi.New(orch, store, f, reg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		err := config.Watch(ctx, configPath, logger, func(reloaded *config.Config) {
			if invalid := factory.ValidateKeys(reloaded.ProviderKeys); len(invalid) > 0 {
				for tag, verr := range invalid {
					logger.Warn("reloaded provider key failed format validation", "provider", tag, "error", verr)
				}
			}
			logger.Info("config change observed; provider keys require a restart to take effect", "environment", reloaded.Environment)
		})
		if err != nil {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", "addr", addr, "environment", cfg.Environment, "version", version,
		"configured_providers", configuredProviderNames(f))

	return server.ListenAndServe(ctx, addr)
}

func configuredProviderNames(f *factory.Factory) []contracts.ProviderTag {
	return f.ListConfigured()
}
