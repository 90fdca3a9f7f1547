package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prismllm/prism/internal/agent"
	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/sessions"
	"github.com/prismllm/prism/pkg/models"
)

// errorBody is the envelope for every non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req models.OrchestrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, models.ErrMalformedRequest, "request body is not valid JSON")
		return
	}

	resp, err := s.executor.Execute(r.Context(), &req)
	if err != nil {
		var execErr *agent.ExecutionError
		if !errors.As(err, &execErr) {
			s.logger.Error(r.Context(), "orchestration failed without category", "error", err)
			s.writeError(w, http.StatusInternalServerError, models.ErrResilientLLMFailure, "internal error")
			return
		}

		status := statusForCode(execErr.Code)
		if resp != nil {
			// The failure response carries the sanitized content and
			// full metadata; serve it under the mapped status.
			s.writeJSON(w, status, resp)
			return
		}
		s.writeError(w, status, execErr.Code, execErr.Safe)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type createSessionRequest struct {
	AgentID  string         `json:"agent_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, models.ErrMalformedRequest, "request body is not valid JSON")
		return
	}
	if req.AgentID == "" {
		req.AgentID = "default"
	}

	session, err := s.store.Create(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, models.ErrMalformedRequest, "session creation failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// handleSessionHistory pages through a session's messages with
// limit/offset query parameters. The default window is the full
// history.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", len(session.Messages))
	if offset < 0 || limit < 0 {
		s.writeError(w, http.StatusBadRequest, models.ErrMalformedRequest, "limit and offset must be non-negative")
		return
	}

	messages := session.Messages
	if offset > len(messages) {
		offset = len(messages)
	}
	end := offset + limit
	if end > len(messages) {
		end = len(messages)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      session.ID,
		"messages":        messages[offset:end],
		"total":           len(session.Messages),
		"offset":          offset,
		"summary":         session.Summary,
		"summary_covered": session.SummaryCovered,
	})
}

// handleSessionMetrics reports per-session counters derived from the
// stored trace.
func (s *Server) handleSessionMetrics(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var llmCalls, toolCalls, retries, errorCount int
	providersSeen := map[string]bool{}
	for _, step := range session.Trace {
		switch step.Event {
		case observability.EventLLMCallSuccess, observability.EventLLMCallError:
			llmCalls++
			if provider, ok := step.Details["provider"].(string); ok && provider != "" {
				providersSeen[provider] = true
			}
		case observability.EventToolExecutionSuccess, observability.EventToolExecutionError:
			toolCalls++
		case observability.EventRetryAttemptFailed:
			retries++
		}
		switch step.Event {
		case observability.EventLLMCallError, observability.EventToolExecutionError, observability.EventSummarizationError:
			errorCount++
		}
	}
	providersUsed := make([]string, 0, len(providersSeen))
	for provider := range providersSeen {
		providersUsed = append(providersUsed, provider)
	}
	sort.Strings(providersUsed)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":       session.ID,
		"agent_id":         session.AgentID,
		"message_count":    session.MessageCount,
		"live_messages":    len(session.Messages),
		"summary_covered":  session.SummaryCovered,
		"trace_steps":      len(session.Trace),
		"llm_calls":        llmCalls,
		"tool_executions":  toolCalls,
		"retries":          retries,
		"errors":           errorCount,
		"providers_used":   providersUsed,
		"created_at":       session.CreatedAt,
		"updated_at":       session.UpdatedAt,
		"duration_seconds": session.UpdatedAt.Sub(session.CreatedAt).Seconds(),
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"providers": s.providerList.List(r.Context()),
	})
}

// handleHealth aggregates adapter readiness with the core's own
// status. The service reports degraded, not down, when every provider
// is unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	infos := s.providerList.List(r.Context())
	healthy := 0
	providerStatus := make(map[string]bool, len(infos))
	for _, info := range infos {
		providerStatus[info.Name] = info.Healthy
		if info.Healthy {
			healthy++
		}
	}

	status := "ok"
	if healthy == 0 {
		status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           s.version,
		"environment":       s.cfg.Environment,
		"uptime_seconds":    time.Since(s.startTime).Seconds(),
		"providers":         providerStatus,
		"healthy_providers": healthy,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/openmetrics-text; version=1.0.0; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.metrics.Render()))
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	id := r.PathValue("id")
	session, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, models.ErrMalformedRequest, "session not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, models.ErrMalformedRequest, "session lookup failed")
		}
		return nil, false
	}
	return session, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error(context.Background(), "response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	s.writeJSON(w, status, errorBody{Error: errorDetail{Code: string(code), Message: message}})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}
