package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prismllm/prism/pkg/models"
)

const wellFormedOpenAIKey = "sk-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, envVar := range envKeyVars {
		t.Setenv(envVar, "")
		os.Unsetenv(envVar)
	}
	for _, envVar := range []string{"ENVIRONMENT", "LOG_LEVEL", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(envVar, "")
		os.Unsetenv(envVar)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != EnvDevelopment {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if cfg.Server.Port != 8000 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "prism.yaml")
	body := `
server:
  port: 9090
logging:
  level: debug
summarizer:
  threshold: 30
  keep_recent: 8
orchestrator:
  max_iterations: 5
  tool_timeout: 10s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Summarizer.Threshold != 30 || cfg.Summarizer.KeepRecent != 8 {
		t.Errorf("summarizer = %+v", cfg.Summarizer)
	}
	if cfg.Orchestrator.ToolTimeout != 10*time.Second {
		t.Errorf("tool timeout = %v", cfg.Orchestrator.ToolTimeout)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearProviderEnv(t)

	path := filepath.Join(t.TempDir(), "prism.yaml")
	if err := os.WriteFile(path, []byte("serevr:\n  port: 1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("misspelled section accepted")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("OPENAI_API_KEY", wellFormedOpenAIKey)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("environment override ignored")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://admin.example.com" {
		t.Errorf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Providers[models.ProviderOpenAI].APIKey != wellFormedOpenAIKey {
		t.Error("key not loaded from environment")
	}
}

func TestValidateProduction(t *testing.T) {
	clearProviderEnv(t)

	cfg := Default()
	cfg.Environment = EnvProduction

	if err := cfg.Validate(); !errors.Is(err, ErrMissingCORSOrigins) {
		t.Errorf("error = %v, want missing CORS origins", err)
	}

	cfg.CORS.AllowedOrigins = []string{"https://app.example.com"}
	if err := cfg.Validate(); !errors.Is(err, ErrNoValidKeys) {
		t.Errorf("error = %v, want no valid keys", err)
	}

	cfg.Providers[models.ProviderOpenAI] = ProviderConfig{APIKey: wellFormedOpenAIKey}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateDevelopmentIsLenient(t *testing.T) {
	clearProviderEnv(t)

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("development validation failed: %v", err)
	}
}

func TestValidKeysMasksRejects(t *testing.T) {
	cfg := Default()
	cfg.Providers[models.ProviderOpenAI] = ProviderConfig{APIKey: wellFormedOpenAIKey}
	cfg.Providers[models.ProviderGrok] = ProviderConfig{APIKey: "xai-short"}

	valid, problems := cfg.ValidKeys()
	if _, ok := valid[models.ProviderOpenAI]; !ok {
		t.Error("well-formed key rejected")
	}
	if len(problems) != 1 || problems[0].Provider != models.ProviderGrok {
		t.Fatalf("problems = %+v", problems)
	}
	if strings.Contains(problems[0].Masked, "xai-short") {
		t.Errorf("raw key in masked output: %q", problems[0].Masked)
	}
}
