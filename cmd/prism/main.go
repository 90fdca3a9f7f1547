// Package main provides the CLI entry point for the Prism orchestration
// service.
//
// Prism fronts multiple LLM providers (OpenAI, Anthropic, Gemini, and
// OpenAI-compatible vendors) behind one orchestration API with tool
// execution, session memory, and automatic history summarization.
//
// # Basic Usage
//
// Start the server:
//
//	prism serve --config prism.yaml
//
// # Environment Variables
//
//   - ENVIRONMENT: "development" (default) or "production"
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY,
//     MISTRAL_API_KEY, GROK_API_KEY, QWEN_API_KEY, DEEPSEEK_API_KEY,
//     KIMI_K2_API_KEY: provider credentials
//   - CORS_ALLOWED_ORIGINS: comma-separated origin allowlist
//     (required in production)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "prism",
		Short: "Prism - Multi-provider LLM orchestration service",
		Long: `Prism fronts multiple LLM providers behind one orchestration API.

Supported providers: OpenAI, Anthropic, Gemini, Mistral, Grok, Qwen, DeepSeek, Kimi
Built-in tools: get_current_time, get_system_info, calculate_expression, complex_api_call`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print detailed version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("prism %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}
