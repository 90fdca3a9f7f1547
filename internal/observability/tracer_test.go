package observability

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/prismllm/prism/pkg/models"
)

type memorySink struct {
	mu    sync.Mutex
	steps []models.TraceStep
	err   error
}

func (s *memorySink) AppendTraceStep(ctx context.Context, sessionID string, step models.TraceStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.steps = append(s.steps, step)
	return nil
}

func newTracerFixture() (*Tracer, *memorySink, *Metrics) {
	sink := &memorySink{}
	metrics := NewMetrics("test")
	logger := NewLogger(LogConfig{Output: io.Discard})
	return NewTracer("sess-1", sink, metrics, logger), sink, metrics
}

func TestTracerAppendsStep(t *testing.T) {
	tracer, sink, _ := newTracerFixture()

	tracer.Log(context.Background(), "Orchestrator", EventOrchestrationStart, map[string]any{"provider": "openai"})

	if len(sink.steps) != 1 {
		t.Fatalf("steps = %d", len(sink.steps))
	}
	step := sink.steps[0]
	if step.Component != "Orchestrator" || step.Event != EventOrchestrationStart {
		t.Errorf("step = %+v", step)
	}
	if step.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestTracerLLMCallSuccessMovesMetrics(t *testing.T) {
	tracer, _, metrics := newTracerFixture()

	tracer.Log(context.Background(), "ResilientCaller", EventLLMCallSuccess, map[string]any{
		"provider":          "openai",
		"model":             "gpt-4o",
		"duration_seconds":  0.7,
		"prompt_tokens":     120,
		"completion_tokens": 30,
	})

	if got := testutil.ToFloat64(metrics.LLMCallCount.WithLabelValues("openai", "gpt-4o", "success")); got != 1 {
		t.Errorf("call count = %g", got)
	}
	if got := testutil.ToFloat64(metrics.LLMTokensConsumed.WithLabelValues("openai", "gpt-4o", "prompt")); got != 120 {
		t.Errorf("prompt tokens = %g", got)
	}
	if got := testutil.ToFloat64(metrics.LLMTokensConsumed.WithLabelValues("openai", "gpt-4o", "completion")); got != 30 {
		t.Errorf("completion tokens = %g", got)
	}
}

func TestTracerLLMCallErrorMovesMetrics(t *testing.T) {
	tracer, _, metrics := newTracerFixture()

	tracer.Log(context.Background(), "ResilientCaller", EventLLMCallError, map[string]any{
		"provider":   "anthropic",
		"model":      "claude-sonnet-4-5",
		"error_type": "RATE_LIMITED",
	})

	if got := testutil.ToFloat64(metrics.LLMCallCount.WithLabelValues("anthropic", "claude-sonnet-4-5", "error")); got != 1 {
		t.Errorf("error call count = %g", got)
	}
	if got := testutil.ToFloat64(metrics.OrchestratorErrors.WithLabelValues("RATE_LIMITED", "ResilientCaller")); got != 1 {
		t.Errorf("error count = %g", got)
	}
}

func TestTracerToolEventsMoveMetrics(t *testing.T) {
	tracer, _, metrics := newTracerFixture()

	tracer.Log(context.Background(), "ToolExecutor", EventToolExecutionSuccess, map[string]any{
		"tool_name":        "get_current_time",
		"duration_seconds": 0.01,
	})
	tracer.Log(context.Background(), "ToolExecutor", EventToolExecutionError, map[string]any{
		"tool_name":  "get_current_time",
		"error_type": "TOOL_TIMEOUT",
	})

	if got := testutil.ToFloat64(metrics.ToolExecutionCount.WithLabelValues("get_current_time", "success")); got != 1 {
		t.Errorf("success count = %g", got)
	}
	if got := testutil.ToFloat64(metrics.ToolExecutionCount.WithLabelValues("get_current_time", "error")); got != 1 {
		t.Errorf("error count = %g", got)
	}
	if got := testutil.ToFloat64(metrics.OrchestratorErrors.WithLabelValues("TOOL_TIMEOUT", "ToolExecutor")); got != 1 {
		t.Errorf("categorized error count = %g", got)
	}
}

func TestTracerRetryFailureMovesRetryCounter(t *testing.T) {
	tracer, _, metrics := newTracerFixture()

	tracer.Log(context.Background(), "ResilientCaller", EventRetryAttemptFailed, map[string]any{
		"attempt":    1,
		"error_type": "TRANSIENT_NETWORK",
	})

	if got := testutil.ToFloat64(metrics.RetryAttempts.WithLabelValues("ResilientCaller", "TRANSIENT_NETWORK")); got != 1 {
		t.Errorf("retry count = %g", got)
	}
}

func TestTracerSessionLifecycleMovesGauge(t *testing.T) {
	tracer, _, metrics := newTracerFixture()

	tracer.Log(context.Background(), "SessionStore", EventSessionCreated, map[string]any{"agent_name": "helper"})
	if got := testutil.ToFloat64(metrics.ActiveSessions); got != 1 {
		t.Errorf("active sessions after create = %g", got)
	}

	tracer.Log(context.Background(), "Orchestrator", EventSessionCompleted, map[string]any{
		"agent_name":       "helper",
		"duration_seconds": 4.2,
	})
	if got := testutil.ToFloat64(metrics.ActiveSessions); got != 0 {
		t.Errorf("active sessions after complete = %g", got)
	}
}

func TestTracerTraceOnlyEventsLeaveMetricsAlone(t *testing.T) {
	tracer, sink, metrics := newTracerFixture()

	for _, event := range []string{
		EventOrchestrationStart,
		EventRetryAttemptStart,
		EventRetryBackoffDelay,
		EventMaxRetriesExceeded,
		EventSummarizationStart,
		EventSummarizationSuccess,
		EventFinalResponse,
	} {
		tracer.Log(context.Background(), "Orchestrator", event, nil)
	}

	if len(sink.steps) != 7 {
		t.Errorf("steps = %d, want 7", len(sink.steps))
	}
	if got := testutil.CollectAndCount(metrics.LLMCallCount); got != 0 {
		t.Errorf("llm call children = %d", got)
	}
	if got := testutil.CollectAndCount(metrics.OrchestratorErrors); got != 0 {
		t.Errorf("error children = %d", got)
	}
}

func TestTracerSinkFailureDoesNotPropagate(t *testing.T) {
	sink := &memorySink{err: errors.New("store unavailable")}
	metrics := NewMetrics("test")
	logger := NewLogger(LogConfig{Output: io.Discard})
	tracer := NewTracer("sess-1", sink, metrics, logger)

	tracer.Log(context.Background(), "ResilientCaller", EventRetryAttemptFailed, map[string]any{
		"error_type": "TIMEOUT",
	})

	if got := testutil.ToFloat64(metrics.OrchestratorErrors.WithLabelValues(string(models.ErrTraceAppendFailure), "ResilientCaller")); got != 1 {
		t.Errorf("trace append failure count = %g", got)
	}
	// The metric side of the event still fires.
	if got := testutil.ToFloat64(metrics.RetryAttempts.WithLabelValues("ResilientCaller", "TIMEOUT")); got != 1 {
		t.Errorf("retry count = %g", got)
	}
}
