package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/providers"
	"github.com/prismllm/prism/internal/sessions"
	"github.com/prismllm/prism/pkg/models"
)

const (
	componentOrchestrator = "Orchestrator"
	componentToolExecutor = "ToolExecutor"
)

// Defaults for the orchestration loop bounds.
const (
	DefaultMaxIterations  = 10
	DefaultToolTimeout    = 30 * time.Second
	DefaultRequestTimeout = 300 * time.Second
)

// Config bounds one orchestration request.
type Config struct {
	MaxIterations  int
	ToolTimeout    time.Duration
	RequestTimeout time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// HistorySummarizer collapses old history once a threshold is
// crossed. Failure is non-fatal; the loop proceeds unsummarized.
type HistorySummarizer interface {
	SummarizeIfNeeded(ctx context.Context, sessionID string, cfg models.AgentConfig, tracer *observability.Tracer) (bool, error)
}

// AdapterSource resolves provider adapters. *providers.Factory is the
// production implementation.
type AdapterSource interface {
	Known(provider string) bool
	Get(provider, model string) (providers.Adapter, error)
}

// Orchestrator drives the think/act loop for one request at a time.
// Instances are safe for concurrent use; each Execute call runs its
// own state machine.
type Orchestrator struct {
	factory    AdapterSource
	store      sessions.Store
	registry   *ToolRegistry
	summarizer HistorySummarizer
	metrics    *observability.Metrics
	logger     *observability.Logger
	cfg        Config
}

// NewOrchestrator wires the loop's collaborators. summarizer may be
// nil to disable summarization.
func NewOrchestrator(factory AdapterSource, store sessions.Store, registry *ToolRegistry, summarizer HistorySummarizer, metrics *observability.Metrics, logger *observability.Logger, cfg Config) *Orchestrator {
	cfg.ApplyDefaults()
	return &Orchestrator{
		factory:    factory,
		store:      store,
		registry:   registry,
		summarizer: summarizer,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Execute runs one orchestration request to a terminal response.
//
// The returned error is always *ExecutionError. When a session was
// already established, a sanitized failure response is returned
// alongside the error so the HTTP layer can serve both the body and
// the mapped status.
func (o *Orchestrator) Execute(ctx context.Context, req *models.OrchestrationRequest) (*models.OrchestrationResponse, error) {
	start := time.Now()

	cfg := req.AgentConfig
	cfg.ApplyDefaults()
	if err := o.validate(&cfg, req); err != nil {
		return nil, err
	}

	adapter, err := o.factory.Get(cfg.Provider, cfg.Model)
	if err != nil {
		code := providers.CodeOf(err)
		return nil, newExecutionError(code, 0, err)
	}

	session, created, err := o.resolveSession(ctx, req.SessionID, cfg.AgentID)
	if err != nil {
		return nil, newExecutionError(models.ErrMalformedRequest, 0, err)
	}

	tracer := observability.NewTracer(session.ID, o.store, o.metrics, o.logger)
	if created {
		tracer.Log(ctx, "SessionStore", observability.EventSessionCreated, map[string]any{
			"agent_name": cfg.AgentID,
		})
	}

	ctx, cancel := context.WithTimeout(observability.AddSessionID(ctx, session.ID), o.cfg.RequestTimeout)
	defer cancel()

	tracer.Log(ctx, componentOrchestrator, observability.EventOrchestrationStart, map[string]any{
		"agent_name": cfg.AgentID,
		"provider":   cfg.Provider,
		"model":      cfg.Model,
		"session_id": session.ID,
	})

	if err := o.store.AppendMessage(ctx, session.ID, models.Message{
		Role:      models.RoleUser,
		Content:   req.Message,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, newExecutionError(models.ErrMalformedRequest, 0, err)
	}

	run := &runState{
		orchestrator: o,
		adapter:      adapter,
		cfg:          cfg,
		tracer:       tracer,
		sessionID:    session.ID,
		start:        start,
	}
	return run.loop(ctx)
}

// validate enforces the request-time contract before any session or
// provider state is touched.
func (o *Orchestrator) validate(cfg *models.AgentConfig, req *models.OrchestrationRequest) error {
	if req.Message == "" {
		return newExecutionError(models.ErrMalformedRequest, 0, errors.New("message is required"))
	}
	if err := cfg.Validate(); err != nil {
		return newExecutionError(models.ErrMalformedRequest, 0, err)
	}
	if !o.factory.Known(cfg.Provider) {
		return newExecutionError(models.ErrUnknownProvider, 0, fmt.Errorf("provider %q", cfg.Provider))
	}
	for _, name := range cfg.Tools {
		if _, ok := o.registry.Get(name); !ok {
			return newExecutionError(models.ErrMalformedRequest, 0, fmt.Errorf("tool %q is not registered", name))
		}
	}
	if len(cfg.Tools) > 0 {
		adapter, err := o.factory.Get(cfg.Provider, cfg.Model)
		if err == nil && !adapter.SupportsTools() {
			return newExecutionError(models.ErrMalformedRequest, 0,
				fmt.Errorf("provider %q does not support tools", cfg.Provider))
		}
	}
	return nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, sessionID, agentID string) (*models.Session, bool, error) {
	if sessionID != "" {
		session, err := o.store.Get(ctx, sessionID)
		if err == nil {
			return session, false, nil
		}
		if !errors.Is(err, sessions.ErrNotFound) {
			return nil, false, err
		}
	}
	session, err := o.store.Create(ctx, agentID)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// runState carries one request through the state machine.
type runState struct {
	orchestrator *Orchestrator
	adapter      providers.Adapter
	cfg          models.AgentConfig
	tracer       *observability.Tracer
	sessionID    string
	start        time.Time

	iterations       int
	attempts         int
	promptTokens     int
	completionTokens int
	retried          bool
	summarized       bool
	lastContent      string
}

// loop walks the request through Summarizing, CallingModel, and
// ExecutingTools until the model emits a terminal answer, the
// iteration cap fires, or a non-recoverable error lands in Failed.
func (r *runState) loop(ctx context.Context) (*models.OrchestrationResponse, error) {
	o := r.orchestrator

	for r.iterations < o.cfg.MaxIterations {
		r.iterations++

		// Summarizing: conditional no-op below the threshold, and
		// failure never stops the loop.
		if o.summarizer != nil {
			fired, err := o.summarizer.SummarizeIfNeeded(ctx, r.sessionID, r.cfg, r.tracer)
			if err != nil {
				o.logger.Warn(ctx, "summarization failed, continuing", "error", err)
			}
			r.summarized = r.summarized || fired
		}

		session, err := o.store.Get(ctx, r.sessionID)
		if err != nil {
			return nil, newExecutionError(models.ErrMalformedRequest, 0, err)
		}

		history := buildHistory(session)
		tools := o.registry.Schemas(r.cfg.Tools)

		result, attempts, err := ResilientChatCompletion(ctx, r.adapter, r.cfg, history, tools, r.tracer)
		r.attempts += attempts
		r.retried = r.retried || attempts > 1
		if err != nil {
			return r.fail(ctx, err)
		}
		r.promptTokens += result.Usage.PromptTokens
		r.completionTokens += result.Usage.CompletionTokens

		assistant := result.Message
		if err := o.store.AppendMessage(ctx, r.sessionID, assistant); err != nil {
			return nil, newExecutionError(models.ErrMalformedRequest, 0, err)
		}
		if assistant.Content != "" {
			r.lastContent = assistant.Content
		}

		if !assistant.HasToolCalls() {
			return r.finalize(ctx, assistant.Content, "")
		}

		r.executeToolCalls(ctx, assistant.ToolCalls)
	}

	// Iteration cap: finalize with the last content or an apology.
	content := r.lastContent
	if content == "" {
		content = safeMessage(models.ErrMaxIterationsReached)
	}
	return r.finalize(ctx, content, string(models.ErrMaxIterationsReached))
}

// executeToolCalls runs the assistant's tool calls sequentially in the
// order the model emitted them. Individual failures are reported back
// into the history; they never abort the turn.
func (r *runState) executeToolCalls(ctx context.Context, calls []models.ToolCall) {
	o := r.orchestrator
	for _, call := range calls {
		body, errType, duration := r.executeOne(ctx, call)

		details := map[string]any{"tool_name": call.Name}
		if errType == "" {
			details["duration_seconds"] = duration
			r.tracer.Log(ctx, componentToolExecutor, observability.EventToolExecutionSuccess, details)
		} else {
			details["error_type"] = errType
			r.tracer.Log(ctx, componentToolExecutor, observability.EventToolExecutionError, details)
		}

		if err := o.store.AppendMessage(ctx, r.sessionID, models.Message{
			Role:       models.RoleTool,
			Content:    body,
			ToolCallID: call.ID,
			CreatedAt:  time.Now(),
		}); err != nil {
			o.logger.Error(ctx, "failed to append tool result", "tool", call.Name, "error", err)
		}
	}
}

// executeOne returns the serialized tool-result body, the error type
// recorded on the trace for failures, and the elapsed seconds.
func (r *runState) executeOne(ctx context.Context, call models.ToolCall) (body, errType string, duration float64) {
	o := r.orchestrator

	tool, ok := o.registry.Get(call.Name)
	if !ok {
		return toolErrorBody("unknown_tool", call.Name, ""), string(models.ErrUnknownTool), 0
	}

	if err := o.registry.ValidateArgs(call.Name, call.Arguments); err != nil {
		return toolErrorBody("invalid_arguments", call.Name, err.Error()), string(models.ErrInvalidArguments), 0
	}

	toolCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	defer cancel()

	start := time.Now()
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := tool.Execute(toolCtx, call.Arguments)
		done <- outcome{value, err}
	}()

	select {
	case <-toolCtx.Done():
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			return toolErrorBody("tool_timeout", call.Name, ""), string(models.ErrToolTimeout), time.Since(start).Seconds()
		}
		return toolErrorBody("canceled", call.Name, ""), string(models.ErrCanceled), time.Since(start).Seconds()
	case out := <-done:
		duration = time.Since(start).Seconds()
		if out.err != nil {
			return toolErrorBody("execution_failed", call.Name, out.err.Error()), "TOOL_EXECUTION_ERROR", duration
		}
		serialized, err := json.Marshal(out.value)
		if err != nil {
			return toolErrorBody("execution_failed", call.Name, "result not serializable"), "TOOL_EXECUTION_ERROR", duration
		}
		return string(serialized), "", duration
	}
}

func toolErrorBody(kind, name, detail string) string {
	payload := map[string]string{"error": kind, "name": name}
	if detail != "" {
		payload["detail"] = detail
	}
	body, _ := json.Marshal(payload)
	return string(body)
}

func (r *runState) finalize(ctx context.Context, content, errorCode string) (*models.OrchestrationResponse, error) {
	r.tracer.Log(ctx, componentOrchestrator, observability.EventFinalResponse, map[string]any{
		"response_length":     len(content),
		"total_iterations":    r.iterations,
		"summarization_fired": r.summarized,
	})

	sessionDuration := r.durationSinceSessionStart(ctx)
	r.tracer.Log(ctx, componentOrchestrator, observability.EventSessionCompleted, map[string]any{
		"agent_name":       r.cfg.AgentID,
		"duration_seconds": sessionDuration,
	})

	return &models.OrchestrationResponse{
		Content:         content,
		SessionID:       r.sessionID,
		Provider:        r.cfg.Provider,
		Model:           r.cfg.Model,
		DurationSeconds: time.Since(r.start).Seconds(),
		Metadata: models.ResponseMetadata{
			ErrorCode:          errorCode,
			Attempts:           r.attempts,
			PromptTokens:       r.promptTokens,
			CompletionTokens:   r.completionTokens,
			Iterations:         r.iterations,
			SummarizationFired: r.summarized,
			Retried:            r.retried,
		},
	}, nil
}

// fail builds the sanitized failure response. Request-deadline expiry
// overrides the inner category with REQUEST_TIMEOUT.
func (r *runState) fail(ctx context.Context, err error) (*models.OrchestrationResponse, error) {
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		execErr = newExecutionError(models.ErrResilientLLMFailure, r.attempts, err)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		execErr = newExecutionError(models.ErrRequestTimeout, execErr.Attempts, err)
	}

	resp := &models.OrchestrationResponse{
		Content:         execErr.Safe,
		SessionID:       r.sessionID,
		Provider:        r.cfg.Provider,
		Model:           r.cfg.Model,
		DurationSeconds: time.Since(r.start).Seconds(),
		Metadata: models.ResponseMetadata{
			ErrorCode:          string(execErr.Code),
			Attempts:           execErr.Attempts,
			PromptTokens:       r.promptTokens,
			CompletionTokens:   r.completionTokens,
			Iterations:         r.iterations,
			SummarizationFired: r.summarized,
			Retried:            r.retried,
		},
	}
	return resp, execErr
}

func (r *runState) durationSinceSessionStart(ctx context.Context) float64 {
	session, err := r.orchestrator.store.Get(ctx, r.sessionID)
	if err != nil {
		return time.Since(r.start).Seconds()
	}
	return time.Since(session.CreatedAt).Seconds()
}

// buildHistory renders the session for a provider call: the running
// summary leads as a system message, followed by the live messages.
func buildHistory(session *models.Session) []models.Message {
	if session.Summary == "" {
		return session.Messages
	}
	history := make([]models.Message, 0, len(session.Messages)+1)
	history = append(history, models.Message{
		Role:    models.RoleSystem,
		Content: "Summary of the conversation so far: " + session.Summary,
	})
	history = append(history, session.Messages...)
	return history
}
