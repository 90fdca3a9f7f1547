// Package providers adapts the canonical chat request to each vendor
// API and normalizes every vendor reply and failure. Adapters never
// retry and never mutate the history they are handed; retries live in
// the resilient caller.
package providers

import (
	"context"
	"time"

	"github.com/prismllm/prism/pkg/models"
)

// DefaultCallTimeout bounds one provider call unless the caller's
// context is tighter.
const DefaultCallTimeout = 60 * time.Second

// TokenUsage reports the token accounting a vendor returned for one
// call. Zero values mean the vendor did not report usage.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatResult is the normalized outcome of one chat completion: a
// single assistant message (text, tool calls, or both) plus usage.
type ChatResult struct {
	Message models.Message
	Usage   TokenUsage
}

// HealthStatus reports adapter readiness without a billable call.
type HealthStatus struct {
	OK             bool    `json:"ok"`
	LatencySeconds float64 `json:"latency_seconds"`
	Error          string  `json:"error,omitempty"`
}

// Adapter is the uniform capability surface every backend satisfies.
type Adapter interface {
	// Name returns the provider tag this adapter serves.
	Name() string

	// ModelName returns the model this instance is bound to.
	ModelName() string

	// SupportsTools reports whether the vendor can surface tool
	// schemas. The orchestrator refuses to mount tools on adapters
	// that return false.
	SupportsTools() bool

	// ChatCompletion executes exactly one vendor request. Failures
	// are always *ProviderError.
	ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (*ChatResult, error)

	// Health reports readiness.
	Health(ctx context.Context) HealthStatus
}
