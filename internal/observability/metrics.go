package observability

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// LatencyBuckets are the histogram bounds (seconds) shared by the LLM
// and tool latency series.
var LatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics holds every process-wide counter, histogram, and gauge
// behind a private registry so tests can construct isolated instances.
// Series names and label keys are part of the external contract.
type Metrics struct {
	registry *prometheus.Registry
	version  string

	// LLMCallCount counts model calls.
	// Labels: provider, model, status (success|error)
	LLMCallCount *prometheus.CounterVec

	// LLMLatency measures model call latency in seconds.
	// Labels: provider, model
	LLMLatency *prometheus.HistogramVec

	// LLMTokensConsumed tracks token consumption.
	// Labels: provider, model, token_type (prompt|completion)
	LLMTokensConsumed *prometheus.CounterVec

	// ToolExecutionCount counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCount *prometheus.CounterVec

	// ToolLatency measures tool execution time in seconds.
	// Labels: tool_name
	ToolLatency *prometheus.HistogramVec

	// OrchestratorErrors counts categorized failures.
	// Labels: error_type, component
	OrchestratorErrors *prometheus.CounterVec

	// RetryAttempts counts failed attempts that led to a retry.
	// Labels: component, retry_reason
	RetryAttempts *prometheus.CounterVec

	// SessionCount counts session lifecycle events.
	// Labels: agent_name, event (created|completed)
	SessionCount *prometheus.CounterVec

	// ActiveSessions tracks sessions created but not yet completed.
	ActiveSessions prometheus.Gauge

	// SessionDuration measures session lifetime in seconds.
	// Labels: agent_name
	SessionDuration *prometheus.HistogramVec

	// AppInfo carries the build version as a constant-1 gauge.
	// Labels: version
	AppInfo *prometheus.GaugeVec
}

// NewMetrics creates a metrics handle with its own registry. Call once
// at startup for the process instance; tests create their own.
func NewMetrics(version string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		version:  version,

		LLMCallCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_call_count_total",
				Help: "Total number of LLM calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "Duration of LLM calls in seconds",
				Buckets: LatencyBuckets,
			},
			[]string{"provider", "model"},
		),

		LLMTokensConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_consumed_total",
				Help: "Total number of tokens consumed by provider, model, and token type",
			},
			[]string{"provider", "model", "token_type"},
		),

		ToolExecutionCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_execution_count_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_latency_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: LatencyBuckets,
			},
			[]string{"tool_name"},
		),

		OrchestratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_errors_count_total",
				Help: "Total number of categorized errors by type and component",
			},
			[]string{"error_type", "component"},
		),

		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retry_attempts_count_total",
				Help: "Total number of retry attempts by component and reason",
			},
			[]string{"component", "retry_reason"},
		),

		SessionCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_count_total",
				Help: "Total number of session lifecycle events by agent",
			},
			[]string{"agent_name", "event"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_sessions_current",
				Help: "Number of sessions created but not yet completed",
			},
		),

		SessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "session_duration_seconds",
				Help:    "Session lifetime in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"agent_name"},
		),

		AppInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "application_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	m.AppInfo.WithLabelValues(version).Set(1)
	return m
}

// RecordLLMCall records one completed model call.
func (m *Metrics) RecordLLMCall(provider, model, status string, durationSeconds float64) {
	m.LLMCallCount.WithLabelValues(provider, model, status).Inc()
	if status == "success" {
		m.LLMLatency.WithLabelValues(provider, model).Observe(durationSeconds)
	}
}

// RecordTokens adds token consumption for one call.
func (m *Metrics) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		m.LLMTokensConsumed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensConsumed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCount.WithLabelValues(toolName, status).Inc()
	if status == "success" {
		m.ToolLatency.WithLabelValues(toolName).Observe(durationSeconds)
	}
}

// RecordError increments the categorized error counter.
func (m *Metrics) RecordError(errorType, component string) {
	m.OrchestratorErrors.WithLabelValues(errorType, component).Inc()
}

// RecordRetry increments the retry counter.
func (m *Metrics) RecordRetry(component, reason string) {
	m.RetryAttempts.WithLabelValues(component, reason).Inc()
}

// SessionStarted records a session creation.
func (m *Metrics) SessionStarted(agentName string) {
	m.SessionCount.WithLabelValues(agentName, "created").Inc()
	m.ActiveSessions.Inc()
}

// SessionCompleted records a session completion.
func (m *Metrics) SessionCompleted(agentName string, durationSeconds float64) {
	m.SessionCount.WithLabelValues(agentName, "completed").Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.WithLabelValues(agentName).Observe(durationSeconds)
}

// Render produces the OpenMetrics text exposition of every registered
// series. A render failure must not take the endpoint down: the
// fallback body carries application_info only, and the failure is
// counted under METRICS_RENDER_FAILURE.
func (m *Metrics) Render() string {
	families, err := m.registry.Gather()
	if err != nil {
		return m.renderFallback(err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeOpenMetrics))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return m.renderFallback(err)
		}
	}
	if closer, ok := encoder.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return m.renderFallback(err)
		}
	}
	return buf.String()
}

func (m *Metrics) renderFallback(err error) string {
	m.RecordError("METRICS_RENDER_FAILURE", "metrics")
	var buf bytes.Buffer
	if err != nil {
		fmt.Fprintf(&buf, "# render error: %s\n", strings.ReplaceAll(err.Error(), "\n", " "))
	}
	fmt.Fprintf(&buf, "# HELP application_info Build information\n# TYPE application_info gauge\napplication_info{version=%q} 1\n", m.version)
	return buf.String()
}
