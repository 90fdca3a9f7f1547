package models

// ErrorCode tags every categorized failure that crosses a component
// boundary. The string values are part of the response contract
// (metadata.error_code) and of the orchestrator_errors_count_total
// error_type label set.
type ErrorCode string

const (
	// Configuration-time.
	ErrUnknownProvider       ErrorCode = "UNKNOWN_PROVIDER"
	ErrMissingAPIKey         ErrorCode = "MISSING_API_KEY"
	ErrInvalidAPIKey         ErrorCode = "INVALID_API_KEY"
	ErrMissingCORSProduction ErrorCode = "MISSING_CORS_ORIGINS_IN_PRODUCTION"
	ErrNoValidKeysProduction ErrorCode = "NO_VALID_KEYS_IN_PRODUCTION"

	// Request validation.
	ErrMalformedRequest ErrorCode = "MALFORMED_REQUEST"
	ErrUnknownTool      ErrorCode = "UNKNOWN_TOOL"
	ErrInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// Provider call.
	ErrTransientNetwork   ErrorCode = "TRANSIENT_NETWORK"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrProvider5xx        ErrorCode = "PROVIDER_5XX"
	ErrProvider4xxNonRate ErrorCode = "PROVIDER_4XX_NON_RATE_LIMIT"
	ErrTimeout            ErrorCode = "TIMEOUT"

	// Orchestration.
	ErrMaxIterationsReached ErrorCode = "MAX_ITERATIONS_REACHED"
	ErrToolTimeout          ErrorCode = "TOOL_TIMEOUT"
	ErrResilientLLMFailure  ErrorCode = "RESILIENT_LLM_FAILURE"
	ErrRequestTimeout       ErrorCode = "REQUEST_TIMEOUT"
	ErrCanceled             ErrorCode = "CANCELED"

	// Infrastructure.
	ErrTraceAppendFailure   ErrorCode = "TRACE_APPEND_FAILURE"
	ErrMetricsRenderFailure ErrorCode = "METRICS_RENDER_FAILURE"
	ErrSummarizationError   ErrorCode = "SUMMARIZATION_ERROR"
)

// Retryable reports whether the resilient caller may attempt the call
// again. Eligibility is decided from the category, never the message.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrTransientNetwork, ErrRateLimited, ErrProvider5xx, ErrTimeout:
		return true
	}
	return false
}
