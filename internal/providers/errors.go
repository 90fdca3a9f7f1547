package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/prismllm/prism/pkg/models"
)

// ProviderError is the categorized failure every adapter returns. The
// Code drives retry eligibility and the HTTP status mapping; Message
// is safe to log (adapters mask keys before constructing it) but is
// never surfaced to end users verbatim.
type ProviderError struct {
	Code     models.ErrorCode
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s/%s: %s (http %d): %s", e.Provider, e.Model, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s/%s: %s: %s", e.Provider, e.Model, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the resilient caller may retry.
func (e *ProviderError) Retryable() bool { return e.Code.Retryable() }

// newError builds a ProviderError bound to one adapter instance.
func newError(provider, model string, code models.ErrorCode, msg string, cause error) *ProviderError {
	return &ProviderError{Code: code, Provider: provider, Model: model, Message: msg, Cause: cause}
}

// classifyStatus maps a vendor HTTP status to the error taxonomy.
func classifyStatus(status int) models.ErrorCode {
	switch {
	case status == 429:
		return models.ErrRateLimited
	case status >= 500:
		return models.ErrProvider5xx
	case status == 401 || status == 403:
		return models.ErrInvalidAPIKey
	case status >= 400:
		return models.ErrProvider4xxNonRate
	default:
		return models.ErrProvider5xx
	}
}

// classifyTransport maps non-HTTP failures (dial, DNS, timeouts,
// cancellation) to the taxonomy.
func classifyTransport(err error) models.ErrorCode {
	switch {
	case errors.Is(err, context.Canceled):
		return models.ErrCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.ErrTimeout
		}
		return models.ErrTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return models.ErrTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "eof"):
		return models.ErrTransientNetwork
	default:
		return models.ErrTransientNetwork
	}
}

// CodeOf extracts the taxonomy tag from any error produced below the
// orchestrator. Uncategorized errors classify as transport failures.
func CodeOf(err error) models.ErrorCode {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code
	}
	return classifyTransport(err)
}
