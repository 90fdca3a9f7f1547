package gateway

import (
	"net/http"

	"github.com/prismllm/prism/pkg/models"
)

// statusForCode maps failure categories to HTTP statuses. Non-fatal
// degradations (iteration cap, summarization trouble) never reach this
// table; they ship in a 200 response body.
func statusForCode(code models.ErrorCode) int {
	switch code {
	case models.ErrMalformedRequest,
		models.ErrUnknownTool,
		models.ErrInvalidArguments,
		models.ErrUnknownProvider:
		return http.StatusBadRequest

	case models.ErrResilientLLMFailure,
		models.ErrInvalidAPIKey,
		models.ErrMissingAPIKey,
		models.ErrRateLimited,
		models.ErrProvider5xx,
		models.ErrProvider4xxNonRate,
		models.ErrTransientNetwork,
		models.ErrTimeout:
		return http.StatusBadGateway

	case models.ErrRequestTimeout:
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}
