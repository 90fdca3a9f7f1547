package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prismllm/prism/internal/agent"
	"github.com/prismllm/prism/internal/config"
	"github.com/prismllm/prism/internal/gateway"
	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/providers"
	"github.com/prismllm/prism/internal/sessions"
	"github.com/prismllm/prism/internal/summarizer"
)

// Startup exit codes. Each production validation failure gets its own
// so process managers can tell them apart.
const (
	exitConfigLoad  = 1
	exitMissingCORS = 2
	exitNoValidKeys = 3
	exitStartup     = 4
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Prism orchestration server",
		Long: `Start the Prism orchestration server.

The server will:
1. Load configuration from the optional YAML file and the environment
2. Validate provider API keys (formats only, no billable calls)
3. Register the built-in tools
4. Serve the orchestration API with metrics and health endpoints

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with environment configuration only
  prism serve

  # Start with a config file
  prism serve --config /etc/prism/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitConfigLoad)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	valid, problems := cfg.ValidKeys()
	reportKeyProblems(os.Stderr, problems)
	for _, problem := range problems {
		logger.Warn(ctx, "provider key rejected",
			"provider", problem.Provider, "key", problem.Masked, "error", problem.Err)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		switch {
		case errors.Is(err, config.ErrMissingCORSOrigins):
			os.Exit(exitMissingCORS)
		case errors.Is(err, config.ErrNoValidKeys):
			os.Exit(exitNoValidKeys)
		default:
			os.Exit(exitConfigLoad)
		}
	}

	if len(valid) == 0 {
		logger.Warn(ctx, "no well-formed provider keys configured; all providers will report unhealthy")
	}

	metrics := observability.NewMetrics(version)
	store := sessions.NewMemoryStore()
	factory := providers.NewFactory(cfg.APIKeys())

	registry := agent.NewToolRegistry()
	if err := agent.RegisterBuiltins(registry); err != nil {
		fmt.Fprintf(os.Stderr, "tool registration failed: %v\n", err)
		os.Exit(exitStartup)
	}

	history := summarizer.New(factory, store, summarizer.Config{
		Threshold:  cfg.Summarizer.Threshold,
		KeepRecent: cfg.Summarizer.KeepRecent,
		Provider:   cfg.Summarizer.Provider,
		Model:      cfg.Summarizer.Model,
	}, logger)

	orchestrator := agent.NewOrchestrator(factory, store, registry, history, metrics, logger, agent.Config{
		MaxIterations:  cfg.Orchestrator.MaxIterations,
		ToolTimeout:    cfg.Orchestrator.ToolTimeout,
		RequestTimeout: cfg.Orchestrator.RequestTimeout,
	})

	server := gateway.NewServer(cfg, orchestrator, store, factory, metrics, logger, version)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error(ctx, "server failed", "error", err)
			os.Exit(exitStartup)
		}
	case <-signalCtx.Done():
		logger.Info(ctx, "shutting down")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error(ctx, "shutdown error", "error", err)
			return err
		}
	}
	return nil
}

// reportKeyProblems writes each rejected provider key to w in masked
// form so startup failures still show which credential was malformed.
// Raw keys never reach the output.
func reportKeyProblems(w io.Writer, problems []config.KeyProblem) {
	for _, problem := range problems {
		fmt.Fprintf(w, "provider %s key rejected (%s): %v\n",
			problem.Provider, problem.Masked, problem.Err)
	}
}
