package observability

import (
	"context"
	"time"

	"github.com/prismllm/prism/pkg/models"
)

// Event names recorded in session traces. Most produce trace rows
// only; the ones listed in the tracer's mapping also move metrics.
const (
	EventOrchestrationStart   = "orchestration_start"
	EventRouterStart          = "router_start"
	EventLLMCallSuccess       = "llm_call_success"
	EventLLMCallError         = "llm_call_error"
	EventToolExecutionSuccess = "tool_execution_success"
	EventToolExecutionError   = "tool_execution_error"
	EventRetryAttemptStart    = "retry_attempt_start"
	EventRetryAttemptFailed   = "retry_attempt_failed"
	EventRetryBackoffDelay    = "retry_backoff_delay"
	EventMaxRetriesExceeded   = "max_retries_exceeded"
	EventSessionCreated       = "session_created"
	EventSessionCompleted     = "session_completed"
	EventSummarizationStart   = "summarization_start"
	EventSummarizationSuccess = "summarization_success"
	EventSummarizationError   = "summarization_error"
	EventFinalResponse        = "final_response"
	EventTraceTruncated       = "trace_truncated"
)

// TraceSink receives trace steps for one session. The session store
// implements it.
type TraceSink interface {
	AppendTraceStep(ctx context.Context, sessionID string, step models.TraceStep) error
}

// Tracer is a per-session event recorder. Every Log call appends a
// trace step to the session and, for the fixed set of metric-bearing
// events, updates the matching series. Trace-append failures never
// propagate to the caller.
type Tracer struct {
	sessionID string
	sink      TraceSink
	metrics   *Metrics
	logger    *Logger
}

// NewTracer binds a tracer to one session.
func NewTracer(sessionID string, sink TraceSink, metrics *Metrics, logger *Logger) *Tracer {
	return &Tracer{sessionID: sessionID, sink: sink, metrics: metrics, logger: logger}
}

// SessionID returns the session this tracer writes to.
func (t *Tracer) SessionID() string { return t.sessionID }

// Log records one event. Details must be JSON-serializable.
func (t *Tracer) Log(ctx context.Context, component, event string, details map[string]any) {
	step := models.TraceStep{
		Timestamp: time.Now(),
		Component: component,
		Event:     event,
		Details:   details,
	}

	if err := t.sink.AppendTraceStep(ctx, t.sessionID, step); err != nil {
		t.logger.Error(ctx, "trace append failed",
			"session_id", t.sessionID, "event", event, "error", err)
		t.metrics.RecordError(string(models.ErrTraceAppendFailure), component)
	}

	t.applyMetrics(component, event, details)
}

// applyMetrics is the fixed event-to-metric mapping. Events outside
// this switch produce trace rows only.
func (t *Tracer) applyMetrics(component, event string, details map[string]any) {
	switch event {
	case EventLLMCallSuccess:
		provider := detailString(details, "provider")
		model := detailString(details, "model")
		t.metrics.RecordLLMCall(provider, model, "success", detailFloat(details, "duration_seconds"))
		t.metrics.RecordTokens(provider, model,
			detailInt(details, "prompt_tokens"), detailInt(details, "completion_tokens"))

	case EventLLMCallError:
		provider := detailString(details, "provider")
		model := detailString(details, "model")
		t.metrics.LLMCallCount.WithLabelValues(provider, model, "error").Inc()
		t.metrics.RecordError(detailString(details, "error_type"), component)

	case EventToolExecutionSuccess:
		t.metrics.RecordToolExecution(detailString(details, "tool_name"), "success",
			detailFloat(details, "duration_seconds"))

	case EventToolExecutionError:
		t.metrics.ToolExecutionCount.WithLabelValues(detailString(details, "tool_name"), "error").Inc()
		t.metrics.RecordError(detailString(details, "error_type"), component)

	case EventRetryAttemptFailed:
		t.metrics.RecordRetry(component, detailString(details, "error_type"))

	case EventSessionCreated:
		t.metrics.SessionStarted(detailString(details, "agent_name"))

	case EventSessionCompleted:
		t.metrics.SessionCompleted(detailString(details, "agent_name"),
			detailFloat(details, "duration_seconds"))
	}
}

func detailString(details map[string]any, key string) string {
	if s, ok := details[key].(string); ok {
		return s
	}
	return ""
}

func detailFloat(details map[string]any, key string) float64 {
	switch v := details[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func detailInt(details map[string]any, key string) int {
	switch v := details[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
