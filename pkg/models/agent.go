package models

import "fmt"

// Provider tags the service knows how to construct adapters for.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMistral   = "mistral"
	ProviderGrok      = "grok"
	ProviderQwen      = "qwen"
	ProviderDeepSeek  = "deepseek"
	ProviderKimi      = "kimi"
)

// KnownProviders lists every supported provider tag.
func KnownProviders() []string {
	return []string{
		ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderMistral,
		ProviderGrok, ProviderQwen, ProviderDeepSeek, ProviderKimi,
	}
}

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 32768

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// AgentConfig names a model backend and the decoding, tool, and retry
// settings one orchestration request runs under.
type AgentConfig struct {
	AgentID      string      `json:"agent_id"`
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Temperature  float64     `json:"temperature"`
	MaxTokens    int         `json:"max_tokens"`
	Tools        []string    `json:"tools,omitempty"`
	Retry        RetryConfig `json:"retry"`
}

// ApplyDefaults fills zero-valued decoding and retry parameters.
func (c *AgentConfig) ApplyDefaults() {
	if c.AgentID == "" {
		c.AgentID = "default"
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	c.Retry.ApplyDefaults()
}

// Validate checks provider tag presence and decoding bounds. Provider
// tag resolution against the adapter table happens in the factory.
func (c *AgentConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("agent config: provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("agent config: model is required")
	}
	if c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return fmt.Errorf("agent config: temperature %.2f outside [%g, %g]", c.Temperature, MinTemperature, MaxTemperature)
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("agent config: max_tokens %d outside [%d, %d]", c.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}
	return c.Retry.Validate()
}

const (
	MinRetryAttempts = 1
	MaxRetryAttempts = 10
	MinDelayBase     = 0.1
	MaxDelayBase     = 60.0

	DefaultRetryAttempts = 3
	DefaultDelayBase     = 1.0
)

// RetryConfig controls the resilient caller. Attempt k (1-indexed)
// sleeps DelayBase * 2^(k-1) seconds before attempt k+1.
type RetryConfig struct {
	MaxAttempts int     `json:"max_attempts"`
	DelayBase   float64 `json:"delay_base"`
}

// ApplyDefaults fills zero values with 3 attempts and a 1s base delay.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultRetryAttempts
	}
	if r.DelayBase == 0 {
		r.DelayBase = DefaultDelayBase
	}
}

// Validate enforces the documented bounds.
func (r RetryConfig) Validate() error {
	if r.MaxAttempts < MinRetryAttempts || r.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("retry config: max_attempts %d outside [%d, %d]", r.MaxAttempts, MinRetryAttempts, MaxRetryAttempts)
	}
	if r.DelayBase < MinDelayBase || r.DelayBase > MaxDelayBase {
		return fmt.Errorf("retry config: delay_base %.2f outside [%g, %g]", r.DelayBase, MinDelayBase, MaxDelayBase)
	}
	return nil
}
