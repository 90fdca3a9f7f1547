// Package config assembles the service configuration from an optional
// YAML file and the environment, with the environment winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prismllm/prism/internal/keys"
	"github.com/prismllm/prism/pkg/models"
)

// Environments the service distinguishes. Production tightens
// validation; anything else behaves like development.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Startup validation failures with distinct exit codes.
var (
	ErrMissingCORSOrigins = errors.New("MISSING_CORS_ORIGINS_IN_PRODUCTION")
	ErrNoValidKeys        = errors.New("NO_VALID_KEYS_IN_PRODUCTION")
)

// Config is the full service configuration.
type Config struct {
	Environment  string                    `yaml:"environment"`
	Server       ServerConfig              `yaml:"server"`
	Logging      LoggingConfig             `yaml:"logging"`
	CORS         CORSConfig                `yaml:"cors"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Summarizer   SummarizerConfig          `yaml:"summarizer"`
	Orchestrator OrchestratorConfig        `yaml:"orchestrator"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

type SummarizerConfig struct {
	Threshold  int    `yaml:"threshold"`
	KeepRecent int    `yaml:"keep_recent"`
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
}

type OrchestratorConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the development baseline.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Providers: map[string]ProviderConfig{},
	}
}

// envKeyVars maps provider tags to their API key variables.
var envKeyVars = map[string]string{
	models.ProviderOpenAI:    "OPENAI_API_KEY",
	models.ProviderAnthropic: "ANTHROPIC_API_KEY",
	models.ProviderGemini:    "GEMINI_API_KEY",
	models.ProviderMistral:   "MISTRAL_API_KEY",
	models.ProviderGrok:      "GROK_API_KEY",
	models.ProviderQwen:      "QWEN_API_KEY",
	models.ProviderDeepSeek:  "DEEPSEEK_API_KEY",
	models.ProviderKimi:      "KIMI_K2_API_KEY",
}

// applyEnv overlays environment variables on the loaded file. Set
// variables always win.
func (c *Config) applyEnv() {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		c.Environment = env
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = splitOrigins(origins)
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for provider, envVar := range envKeyVars {
		if key := os.Getenv(envVar); key != "" {
			c.Providers[provider] = ProviderConfig{APIKey: key}
		}
	}
}

// Validate enforces the startup contract. Production requires explicit
// CORS origins and at least one well-formed provider key; development
// degrades to warnings handled by the caller.
func (c *Config) Validate() error {
	if c.Environment == EnvProduction {
		if len(c.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("%w: set CORS_ALLOWED_ORIGINS", ErrMissingCORSOrigins)
		}
		valid, _ := c.ValidKeys()
		if len(valid) == 0 {
			return fmt.Errorf("%w: no provider has a well-formed API key", ErrNoValidKeys)
		}
	}
	return nil
}

// ValidKeys partitions configured keys into the syntactically valid
// set and the rejected provider tags. Rejected entries are reported
// with masked keys only.
func (c *Config) ValidKeys() (map[string]string, []KeyProblem) {
	valid := map[string]string{}
	var problems []KeyProblem
	for provider, pc := range c.Providers {
		if pc.APIKey == "" {
			continue
		}
		if _, err := keys.Validate(provider, pc.APIKey); err != nil {
			problems = append(problems, KeyProblem{
				Provider: provider,
				Masked:   keys.Mask(pc.APIKey),
				Err:      err,
			})
			continue
		}
		valid[provider] = pc.APIKey
	}
	return valid, problems
}

// KeyProblem describes one rejected provider key. The raw key is never
// stored.
type KeyProblem struct {
	Provider string
	Masked   string
	Err      error
}

// APIKeys returns every configured key, valid or not, for the adapter
// factory. Adapters re-validate on construction.
func (c *Config) APIKeys() map[string]string {
	out := map[string]string{}
	for provider, pc := range c.Providers {
		if pc.APIKey != "" {
			out[provider] = pc.APIKey
		}
	}
	return out
}

// IsProduction reports whether the production contract applies.
func (c *Config) IsProduction() bool { return c.Environment == EnvProduction }

func splitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
