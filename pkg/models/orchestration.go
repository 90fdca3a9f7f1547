package models

// OrchestrationRequest is one conversational turn submitted against an
// agent configuration. SessionID is optional; an empty or unknown id
// creates a fresh session.
type OrchestrationRequest struct {
	Message     string      `json:"message"`
	AgentConfig AgentConfig `json:"agent_config"`
	SessionID   string      `json:"session_id,omitempty"`
}

// ResponseMetadata carries execution accounting alongside the final
// content. ErrorCode is empty on full success and identifies the
// failure kind otherwise; MAX_ITERATIONS_REACHED and
// SUMMARIZATION_ERROR appear on otherwise-successful responses.
type ResponseMetadata struct {
	ErrorCode          string `json:"error_code,omitempty"`
	Attempts           int    `json:"attempts,omitempty"`
	PromptTokens       int    `json:"prompt_tokens"`
	CompletionTokens   int    `json:"completion_tokens"`
	Iterations         int    `json:"iterations"`
	SummarizationFired bool   `json:"summarization_fired"`
	Retried            bool   `json:"retried"`
}

// OrchestrationResponse is the terminal result of one request. On
// failure Content carries a sanitized user-facing message and
// Metadata.ErrorCode the taxonomy tag.
type OrchestrationResponse struct {
	Content         string           `json:"content"`
	SessionID       string           `json:"session_id"`
	Provider        string           `json:"provider"`
	Model           string           `json:"model"`
	DurationSeconds float64          `json:"duration_seconds"`
	Metadata        ResponseMetadata `json:"metadata"`
}
