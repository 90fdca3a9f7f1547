// Package agent implements the tool-using orchestration loop: the
// bounded alternation of model calls and tool executions that drives
// one conversational request to a terminal answer.
package agent

import (
	"fmt"

	"github.com/prismllm/prism/pkg/models"
)

// ExecutionError is the terminal failure of one orchestration. Safe
// carries the user-facing rendering; it never contains raw keys,
// vendor error bodies, or internal identifiers.
type ExecutionError struct {
	Code     models.ErrorCode
	Attempts int
	Safe     string
	Cause    error
}

func (e *ExecutionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s after %d attempts: %s", e.Code, e.Attempts, e.Safe)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Safe)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// safeMessages maps failure categories to the sanitized strings
// surfaced in failure responses.
var safeMessages = map[models.ErrorCode]string{
	models.ErrResilientLLMFailure:  "The model provider is currently unavailable. Please try again shortly.",
	models.ErrRateLimited:          "The model provider is rate limiting requests. Please try again shortly.",
	models.ErrProvider5xx:          "The model provider reported an internal error. Please try again shortly.",
	models.ErrTransientNetwork:     "A network problem interrupted the request. Please try again shortly.",
	models.ErrTimeout:              "The model provider took too long to respond. Please try again shortly.",
	models.ErrProvider4xxNonRate:   "The model provider rejected the request. Please review the agent configuration.",
	models.ErrInvalidAPIKey:        "The configured API key was rejected. Please check the provider credentials.",
	models.ErrMissingAPIKey:        "No API key is configured for the requested provider.",
	models.ErrUnknownProvider:      "The requested provider is not supported.",
	models.ErrMalformedRequest:     "The request was malformed. Please review the agent configuration.",
	models.ErrRequestTimeout:       "The request exceeded its overall time budget. Please try again.",
	models.ErrCanceled:             "The request was canceled before completion.",
	models.ErrMaxIterationsReached: "I could not complete the task within the allowed number of reasoning steps.",
}

// safeMessage renders a user-facing string for a failure category.
func safeMessage(code models.ErrorCode) string {
	if msg, ok := safeMessages[code]; ok {
		return msg
	}
	return "The request could not be completed. Please try again shortly."
}

// newExecutionError builds the terminal error for a category, keeping
// the original cause for logs while exposing only the sanitized text.
func newExecutionError(code models.ErrorCode, attempts int, cause error) *ExecutionError {
	return &ExecutionError{Code: code, Attempts: attempts, Safe: safeMessage(code), Cause: cause}
}
