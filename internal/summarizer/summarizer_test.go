package summarizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/providers"
	"github.com/prismllm/prism/internal/sessions"
	"github.com/prismllm/prism/pkg/models"
)

// fixedAdapter returns a canned summary and records the prompt it saw.
type fixedAdapter struct {
	provider   string
	model      string
	summary    string
	err        error
	calls      int
	lastPrompt string
	lastCfg    models.AgentConfig
}

func (a *fixedAdapter) Name() string        { return a.provider }
func (a *fixedAdapter) ModelName() string   { return a.model }
func (a *fixedAdapter) SupportsTools() bool { return false }

func (a *fixedAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (*providers.ChatResult, error) {
	a.calls++
	a.lastCfg = cfg
	if len(history) > 0 {
		a.lastPrompt = history[len(history)-1].Content
	}
	if a.err != nil {
		return nil, a.err
	}
	return &providers.ChatResult{
		Message: models.Message{Role: models.RoleAssistant, Content: a.summary},
		Usage:   providers.TokenUsage{PromptTokens: 100, CompletionTokens: 40},
	}, nil
}

func (a *fixedAdapter) Health(ctx context.Context) providers.HealthStatus {
	return providers.HealthStatus{OK: true}
}

// recordingSource hands out one adapter and records what was asked for.
type recordingSource struct {
	adapter      *fixedAdapter
	lastProvider string
	lastModel    string
}

func (s *recordingSource) Get(provider, model string) (providers.Adapter, error) {
	s.lastProvider = provider
	s.lastModel = model
	return s.adapter, nil
}

type fixture struct {
	summarizer *Summarizer
	store      *sessions.MemoryStore
	source     *recordingSource
	tracer     *observability.Tracer
	sessionID  string
}

func newFixture(t *testing.T, cfg Config, messageCount int) *fixture {
	t.Helper()

	store := sessions.NewMemoryStore()
	session, err := store.Create(context.Background(), "helper")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < messageCount; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msg := models.Message{Role: role, Content: fmt.Sprintf("turn %d", i), CreatedAt: time.Now()}
		if err := store.AppendMessage(context.Background(), session.ID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	source := &recordingSource{adapter: &fixedAdapter{
		provider: models.ProviderOpenAI,
		model:    "gpt-4o",
		summary:  "the user and the assistant discussed turns",
	}}
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	metrics := observability.NewMetrics("test")

	return &fixture{
		summarizer: New(source, store, cfg, logger),
		store:      store,
		source:     source,
		tracer:     observability.NewTracer(session.ID, store, metrics, logger),
		sessionID:  session.ID,
	}
}

func agentCfg() models.AgentConfig {
	return models.AgentConfig{
		AgentID:  "helper",
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o",
	}
}

func TestBelowThresholdIsNoop(t *testing.T) {
	fx := newFixture(t, Config{}, 10)

	fired, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer)
	if err != nil {
		t.Fatalf("SummarizeIfNeeded: %v", err)
	}
	if fired {
		t.Error("fired below threshold")
	}
	if fx.source.adapter.calls != 0 {
		t.Errorf("adapter called %d times", fx.source.adapter.calls)
	}
}

func TestCollapseAtThreshold(t *testing.T) {
	fx := newFixture(t, Config{}, 20)

	fired, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer)
	if err != nil {
		t.Fatalf("SummarizeIfNeeded: %v", err)
	}
	if !fired {
		t.Fatal("did not fire at threshold")
	}

	session, err := fx.store.Get(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(session.Messages) != DefaultKeepRecent {
		t.Errorf("live messages = %d, want %d", len(session.Messages), DefaultKeepRecent)
	}
	if session.Summary != "the user and the assistant discussed turns" {
		t.Errorf("summary = %q", session.Summary)
	}
	if session.SummaryCovered != 14 {
		t.Errorf("summary covered = %d, want 14", session.SummaryCovered)
	}
	if session.MessageCount != 20 {
		t.Errorf("message count = %d, want 20", session.MessageCount)
	}
	if session.Messages[0].Content != "turn 14" {
		t.Errorf("oldest kept = %q, want turn 14", session.Messages[0].Content)
	}
}

func TestSummarizationPromptCoversPrefixOnly(t *testing.T) {
	fx := newFixture(t, Config{}, 20)

	if _, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer); err != nil {
		t.Fatalf("SummarizeIfNeeded: %v", err)
	}

	prompt := fx.source.adapter.lastPrompt
	if !strings.Contains(prompt, "turn 0") || !strings.Contains(prompt, "turn 13") {
		t.Errorf("prompt missing prefix turns: %q", prompt)
	}
	if strings.Contains(prompt, "turn 14") {
		t.Errorf("prompt includes a kept message: %q", prompt)
	}
	if fx.source.adapter.lastCfg.SystemPrompt == "" {
		t.Error("summarization instruction missing")
	}
	if fx.source.adapter.lastCfg.Temperature != 0.3 {
		t.Errorf("temperature = %g, want 0.3", fx.source.adapter.lastCfg.Temperature)
	}
}

func TestSecondCollapseFoldsExistingSummary(t *testing.T) {
	fx := newFixture(t, Config{}, 20)

	if _, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer); err != nil {
		t.Fatalf("first collapse: %v", err)
	}

	for i := 20; i < 34; i++ {
		msg := models.Message{Role: models.RoleUser, Content: fmt.Sprintf("turn %d", i), CreatedAt: time.Now()}
		if err := fx.store.AppendMessage(context.Background(), fx.sessionID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	fired, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer)
	if err != nil {
		t.Fatalf("second collapse: %v", err)
	}
	if !fired {
		t.Fatal("second collapse did not fire")
	}
	if !strings.Contains(fx.source.adapter.lastPrompt, "Earlier summary:") {
		t.Errorf("existing summary not folded into prompt: %q", fx.source.adapter.lastPrompt)
	}
}

func TestModelFailureLeavesSessionIntact(t *testing.T) {
	fx := newFixture(t, Config{}, 20)
	fx.source.adapter.err = errors.New("model unavailable")

	fired, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer)
	if err == nil {
		t.Fatal("expected error")
	}
	if fired {
		t.Error("fired despite failure")
	}

	session, getErr := fx.store.Get(context.Background(), fx.sessionID)
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if len(session.Messages) != 20 || session.Summary != "" {
		t.Errorf("session mutated after failure: %d messages, summary %q", len(session.Messages), session.Summary)
	}

	var sawError bool
	for _, step := range session.Trace {
		if step.Event == observability.EventSummarizationError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("trace missing summarization_error")
	}
}

func TestDedicatedSummarizerBackend(t *testing.T) {
	fx := newFixture(t, Config{Provider: models.ProviderAnthropic, Model: "claude-sonnet-4-5"}, 20)

	if _, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer); err != nil {
		t.Fatalf("SummarizeIfNeeded: %v", err)
	}
	if fx.source.lastProvider != models.ProviderAnthropic || fx.source.lastModel != "claude-sonnet-4-5" {
		t.Errorf("resolved backend = %s/%s", fx.source.lastProvider, fx.source.lastModel)
	}
}

func TestTraceRecordsCollapse(t *testing.T) {
	fx := newFixture(t, Config{}, 20)

	if _, err := fx.summarizer.SummarizeIfNeeded(context.Background(), fx.sessionID, agentCfg(), fx.tracer); err != nil {
		t.Fatalf("SummarizeIfNeeded: %v", err)
	}

	session, err := fx.store.Get(context.Background(), fx.sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	events := map[string]models.TraceStep{}
	for _, step := range session.Trace {
		events[step.Event] = step
	}
	if _, ok := events[observability.EventSummarizationStart]; !ok {
		t.Error("trace missing summarization_start")
	}
	success, ok := events[observability.EventSummarizationSuccess]
	if !ok {
		t.Fatal("trace missing summarization_success")
	}
	if success.Details["messages_before"] != 20 || success.Details["messages_after"] != 6 {
		t.Errorf("success details = %v", success.Details)
	}
}
