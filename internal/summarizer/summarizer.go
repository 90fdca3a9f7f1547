// Package summarizer collapses old conversation history into a single
// dense summary once a session grows past a threshold, keeping the
// provider context window bounded.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/providers"
	"github.com/prismllm/prism/internal/sessions"
	"github.com/prismllm/prism/pkg/models"
)

const component = "HistorySummarizer"

// metaPrompt is the fixed instruction given to the summarization
// model.
const metaPrompt = "Produce a dense factual summary of the following dialogue; preserve decisions, constraints, and open questions; ≤ 500 tokens."

// Defaults for the trigger and the retained tail.
const (
	DefaultThreshold  = 20
	DefaultKeepRecent = 6
)

// Config tunes the summarizer. Provider/Model override the agent's
// own backend; left empty, the agent's backend summarizes its own
// history.
type Config struct {
	Threshold  int
	KeepRecent int
	Provider   string
	Model      string
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.KeepRecent <= 0 {
		c.KeepRecent = DefaultKeepRecent
	}
}

// AdapterSource resolves provider adapters. *providers.Factory is the
// production implementation.
type AdapterSource interface {
	Get(provider, model string) (providers.Adapter, error)
}

// Summarizer watches session length and performs the collapse.
type Summarizer struct {
	factory AdapterSource
	store   sessions.Store
	cfg     Config
	logger  *observability.Logger
}

// New builds a summarizer over the shared factory and store.
func New(factory AdapterSource, store sessions.Store, cfg Config, logger *observability.Logger) *Summarizer {
	cfg.ApplyDefaults()
	return &Summarizer{factory: factory, store: store, cfg: cfg, logger: logger}
}

// SummarizeIfNeeded collapses the oldest messages when the session's
// live message count has reached the threshold, keeping the newest
// KeepRecent messages verbatim. It reports whether a summarization
// ran. Errors are returned for logging but the caller's loop must
// treat them as non-fatal.
func (s *Summarizer) SummarizeIfNeeded(ctx context.Context, sessionID string, agentCfg models.AgentConfig, tracer *observability.Tracer) (bool, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if len(session.Messages) < s.cfg.Threshold {
		return false, nil
	}
	prefixLen := len(session.Messages) - s.cfg.KeepRecent
	if prefixLen <= 0 {
		return false, nil
	}

	before := len(session.Messages)
	tracer.Log(ctx, component, observability.EventSummarizationStart, map[string]any{
		"message_count": before,
		"prefix_length": prefixLen,
	})

	start := time.Now()
	summary, err := s.summarize(ctx, agentCfg, session.Summary, session.Messages[:prefixLen])
	if err != nil {
		tracer.Log(ctx, component, observability.EventSummarizationError, map[string]any{
			"error_type": string(models.ErrSummarizationError),
		})
		return false, fmt.Errorf("summarization: %w", err)
	}

	kept := session.Messages[prefixLen:]
	if err := s.store.ReplaceSummary(ctx, sessionID, summary, kept, prefixLen); err != nil {
		tracer.Log(ctx, component, observability.EventSummarizationError, map[string]any{
			"error_type": string(models.ErrSummarizationError),
		})
		return false, fmt.Errorf("summary swap: %w", err)
	}

	tracer.Log(ctx, component, observability.EventSummarizationSuccess, map[string]any{
		"messages_before":  before,
		"messages_after":   len(kept),
		"duration_seconds": time.Since(start).Seconds(),
	})
	return true, nil
}

// summarize runs one model call over the rendered prefix. An existing
// summary is folded in so nothing covered earlier is lost.
func (s *Summarizer) summarize(ctx context.Context, agentCfg models.AgentConfig, existingSummary string, prefix []models.Message) (string, error) {
	provider := s.cfg.Provider
	model := s.cfg.Model
	if provider == "" || model == "" {
		provider = agentCfg.Provider
		model = agentCfg.Model
	}

	adapter, err := s.factory.Get(provider, model)
	if err != nil {
		return "", err
	}

	callCfg := models.AgentConfig{
		AgentID:      agentCfg.AgentID,
		Provider:     provider,
		Model:        model,
		SystemPrompt: metaPrompt,
		Temperature:  0.3,
		MaxTokens:    800,
	}

	history := []models.Message{{
		Role:    models.RoleUser,
		Content: renderDialogue(existingSummary, prefix),
	}}

	result, err := adapter.ChatCompletion(ctx, callCfg, history, nil)
	if err != nil {
		return "", err
	}
	if result.Message.Content == "" {
		return "", fmt.Errorf("summarization model returned empty content")
	}
	return result.Message.Content, nil
}

func renderDialogue(existingSummary string, prefix []models.Message) string {
	var b strings.Builder
	if existingSummary != "" {
		b.WriteString("Earlier summary:\n")
		b.WriteString(existingSummary)
		b.WriteString("\n\nContinued dialogue:\n")
	}
	for _, msg := range prefix {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
