package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/prismllm/prism/internal/keys"
	"github.com/prismllm/prism/pkg/models"
)

type anthropicAdapter struct {
	model  string
	client anthropic.Client
	hasKey bool
}

// NewAnthropic builds the Claude adapter. Key handling matches the
// OpenAI-compatible constructor.
func NewAnthropic(model, apiKey string) (Adapter, error) {
	a := &anthropicAdapter{model: model}
	if apiKey == "" {
		return a, nil
	}

	if _, err := keys.Validate(models.ProviderAnthropic, apiKey); err != nil {
		return nil, newError(models.ProviderAnthropic, model, models.ErrInvalidAPIKey, err.Error(), err)
	}

	a.client = anthropic.NewClient(option.WithAPIKey(apiKey))
	a.hasKey = true
	return a, nil
}

func (a *anthropicAdapter) Name() string        { return models.ProviderAnthropic }
func (a *anthropicAdapter) ModelName() string   { return a.model }
func (a *anthropicAdapter) SupportsTools() bool { return true }

func (a *anthropicAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (*ChatResult, error) {
	if !a.hasKey {
		return nil, newError(models.ProviderAnthropic, a.model, models.ErrMissingAPIKey, "no API key configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(cfg.MaxTokens),
		Temperature: anthropic.Float(cfg.Temperature),
		Messages:    toAnthropicMessages(history),
	}
	if system := anthropicSystem(cfg.SystemPrompt, history); len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		converted, err := toAnthropicTools(tools)
		if err != nil {
			return nil, newError(models.ProviderAnthropic, a.model, models.ErrMalformedRequest, err.Error(), err)
		}
		params.Tools = converted
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	msg := models.Message{Role: models.RoleAssistant, CreatedAt: time.Now()}
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			msg.Content += b.Text
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &args)
			}
			msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return &ChatResult{
		Message: msg,
		Usage: TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

func (a *anthropicAdapter) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	if !a.hasKey {
		return HealthStatus{OK: false, Error: string(models.ErrMissingAPIKey)}
	}
	return HealthStatus{OK: true, LatencySeconds: time.Since(start).Seconds()}
}

func (a *anthropicAdapter) wrapError(err error) *ProviderError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := classifyStatus(apiErr.StatusCode)
		pe := newError(models.ProviderAnthropic, a.model, code, apiErr.Error(), err)
		pe.Status = apiErr.StatusCode
		return pe
	}
	return newError(models.ProviderAnthropic, a.model, classifyTransport(err), err.Error(), err)
}

// anthropicSystem folds the configured system prompt and any
// system-role history entries (the running summary) into the
// top-level system blocks, since the Messages API has no system role.
func anthropicSystem(systemPrompt string, history []models.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if systemPrompt != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: systemPrompt})
	}
	for _, msg := range history {
		if msg.Role == models.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

func toAnthropicMessages(history []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem:
			// Folded into the system blocks.
		case models.RoleUser:
			flushResults()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input, _ := json.Marshal(call.Arguments)
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: json.RawMessage(input),
					},
				})
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case models.RoleTool:
			// Tool results for one assistant turn share a single
			// user message.
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
	}
	flushResults()
	return out
}

func toAnthropicTools(tools []models.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		converted := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if converted.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		if tool.Description != "" {
			converted.OfTool.Description = anthropic.String(tool.Description)
		}
		out = append(out, converted)
	}
	return out, nil
}
