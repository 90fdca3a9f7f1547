package agent

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/providers"
	"github.com/prismllm/prism/internal/sessions"
	"github.com/prismllm/prism/pkg/models"
)

func newTestTracer(t *testing.T) (*observability.Tracer, *sessions.MemoryStore, string) {
	t.Helper()
	store := sessions.NewMemoryStore()
	session, err := store.Create(context.Background(), "helper")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	metrics := observability.NewMetrics("test")
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	return observability.NewTracer(session.ID, store, metrics, logger), store, session.ID
}

func retryConfig(attempts int) models.AgentConfig {
	return models.AgentConfig{
		AgentID:  "helper",
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o",
		Retry:    models.RetryConfig{MaxAttempts: attempts, DelayBase: 0.1},
	}
}

func transientErr() error {
	return &providers.ProviderError{
		Code:     models.ErrTransientNetwork,
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o",
		Message:  "connection reset by peer",
	}
}

func TestResilientRetryThenSuccess(t *testing.T) {
	tracer, _, _ := newTestTracer(t)
	adapter := &scriptedAdapter{provider: "openai", model: "gpt-4o", script: []scriptedTurn{
		{err: transientErr()},
		{err: transientErr()},
		{result: textResult("third time lucky")},
	}}

	result, attempts, err := ResilientChatCompletion(context.Background(), adapter, retryConfig(3), nil, nil, tracer)
	if err != nil {
		t.Fatalf("ResilientChatCompletion: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if result.Message.Content != "third time lucky" {
		t.Errorf("content = %q", result.Message.Content)
	}
}

func TestResilientNonRetryableFailsFast(t *testing.T) {
	tracer, _, _ := newTestTracer(t)
	adapter := &scriptedAdapter{provider: "openai", model: "gpt-4o", script: []scriptedTurn{
		{err: &providers.ProviderError{Code: models.ErrInvalidAPIKey, Provider: "openai", Model: "gpt-4o", Status: 401}},
		{result: textResult("unreachable")},
	}}

	_, attempts, err := ResilientChatCompletion(context.Background(), adapter, retryConfig(3), nil, nil, tracer)
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != models.ErrInvalidAPIKey {
		t.Fatalf("error = %v, want INVALID_API_KEY ExecutionError", err)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter calls = %d, want 1", adapter.calls)
	}
}

func TestResilientExhaustion(t *testing.T) {
	tracer, store, sessionID := newTestTracer(t)
	adapter := &scriptedAdapter{provider: "openai", model: "gpt-4o", script: []scriptedTurn{
		{err: transientErr()},
		{err: transientErr()},
		{err: transientErr()},
	}}

	_, attempts, err := ResilientChatCompletion(context.Background(), adapter, retryConfig(3), nil, nil, tracer)
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
	if execErr.Code != models.ErrResilientLLMFailure {
		t.Errorf("code = %s, want RESILIENT_LLM_FAILURE", execErr.Code)
	}
	if execErr.Safe == "" {
		t.Error("safe message missing")
	}

	session, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var exceeded bool
	for _, step := range session.Trace {
		switch step.Event {
		case observability.EventMaxRetriesExceeded:
			exceeded = true
			if step.Details["max_attempts"] != 3 {
				t.Errorf("max_attempts detail = %v", step.Details["max_attempts"])
			}
		case observability.EventLLMCallError:
			// Exhaustion is one max_retries_exceeded event; the failed
			// attempts are retry_attempt_failed, not call errors.
			t.Errorf("unexpected llm_call_error step: %v", step.Details)
		}
	}
	if !exceeded {
		t.Error("trace missing max_retries_exceeded")
	}
}

func TestResilientBackoffIsCancellable(t *testing.T) {
	tracer, _, _ := newTestTracer(t)
	cfg := retryConfig(3)
	cfg.Retry.DelayBase = 5.0
	adapter := &scriptedAdapter{provider: "openai", model: "gpt-4o", script: []scriptedTurn{
		{err: transientErr()},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := ResilientChatCompletion(ctx, adapter, cfg, nil, nil, tracer)
	elapsed := time.Since(start)

	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != models.ErrCanceled {
		t.Fatalf("error = %v, want CANCELED", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, backoff sleep was not interrupted", elapsed)
	}
}

func TestResilientBackoffScheduleRecorded(t *testing.T) {
	tracer, store, sessionID := newTestTracer(t)
	adapter := &scriptedAdapter{provider: "openai", model: "gpt-4o", script: []scriptedTurn{
		{err: transientErr()},
		{err: transientErr()},
		{result: textResult("ok")},
	}}

	if _, _, err := ResilientChatCompletion(context.Background(), adapter, retryConfig(3), nil, nil, tracer); err != nil {
		t.Fatalf("ResilientChatCompletion: %v", err)
	}

	session, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var delays []float64
	for _, step := range session.Trace {
		if step.Event == observability.EventRetryBackoffDelay {
			if d, ok := step.Details["delay_seconds"].(float64); ok {
				delays = append(delays, d)
			}
		}
	}
	want := []float64{0.1, 0.2}
	if len(delays) != len(want) {
		t.Fatalf("recorded delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] < want[i]*0.99 || delays[i] > want[i]*1.01 {
			t.Errorf("delay[%d] = %g, want %g", i, delays[i], want[i])
		}
	}
}
