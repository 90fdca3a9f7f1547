package agent

import (
	"context"
	"time"

	"github.com/prismllm/prism/internal/observability"
	"github.com/prismllm/prism/internal/providers"
	"github.com/prismllm/prism/internal/retry"
	"github.com/prismllm/prism/pkg/models"
)

const componentResilient = "ResilientCaller"

// ResilientChatCompletion wraps one adapter call with bounded
// exponential-backoff retries. Retry eligibility comes from the error
// category alone. The returned attempt count includes the final
// (successful or failing) attempt. All terminal failures are
// *ExecutionError with a sanitized user-facing message.
func ResilientChatCompletion(ctx context.Context, adapter providers.Adapter, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema, tracer *observability.Tracer) (*providers.ChatResult, int, error) {
	maxAttempts := cfg.Retry.MaxAttempts
	delayBase := time.Duration(cfg.Retry.DelayBase * float64(time.Second))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tracer.Log(ctx, componentResilient, observability.EventRetryAttemptStart, map[string]any{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		})

		start := time.Now()
		result, err := adapter.ChatCompletion(ctx, cfg, history, tools)
		duration := time.Since(start).Seconds()

		if err == nil {
			tracer.Log(ctx, componentResilient, observability.EventLLMCallSuccess, map[string]any{
				"provider":          adapter.Name(),
				"model":             adapter.ModelName(),
				"duration_seconds":  duration,
				"prompt_tokens":     result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens,
				"attempt":           attempt,
			})
			return result, attempt, nil
		}

		lastErr = err
		code := providers.CodeOf(err)

		if !code.Retryable() {
			tracer.Log(ctx, componentResilient, observability.EventLLMCallError, map[string]any{
				"provider":   adapter.Name(),
				"model":      adapter.ModelName(),
				"error_type": string(code),
				"attempt":    attempt,
			})
			return nil, attempt, newExecutionError(code, attempt, err)
		}

		tracer.Log(ctx, componentResilient, observability.EventRetryAttemptFailed, map[string]any{
			"attempt":    attempt,
			"error_type": string(code),
		})

		if attempt < maxAttempts {
			delay := retry.Backoff(attempt, delayBase)
			tracer.Log(ctx, componentResilient, observability.EventRetryBackoffDelay, map[string]any{
				"delay_seconds":   delay.Seconds(),
				"backoff_formula": "delay_base * 2^(attempt-1)",
			})
			if err := retry.Sleep(ctx, delay); err != nil {
				tracer.Log(ctx, componentResilient, observability.EventLLMCallError, map[string]any{
					"provider":   adapter.Name(),
					"model":      adapter.ModelName(),
					"error_type": string(models.ErrCanceled),
					"attempt":    attempt,
				})
				return nil, attempt, newExecutionError(models.ErrCanceled, attempt, err)
			}
		}
	}

	finalCode := providers.CodeOf(lastErr)
	execErr := newExecutionError(models.ErrResilientLLMFailure, maxAttempts, lastErr)
	// Each failed attempt already traced as retry_attempt_failed; the
	// exhaustion itself is a single max_retries_exceeded event.
	tracer.Log(ctx, componentResilient, observability.EventMaxRetriesExceeded, map[string]any{
		"max_attempts":       maxAttempts,
		"final_error_type":   string(finalCode),
		"safe_error_message": execErr.Safe,
	})
	return nil, maxAttempts, execErr
}
