package providers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/prismllm/prism/internal/keys"
	"github.com/prismllm/prism/pkg/models"
)

// baseURLs routes each OpenAI-compatible provider tag to its endpoint.
// An empty entry keeps the SDK default.
var baseURLs = map[string]string{
	models.ProviderOpenAI:   "",
	models.ProviderGrok:     "https://api.x.ai/v1",
	models.ProviderQwen:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	models.ProviderDeepSeek: "https://api.deepseek.com/v1",
	models.ProviderKimi:     "https://api.moonshot.ai/v1",
	models.ProviderMistral:  "https://api.mistral.ai/v1",
}

// openAICompatAdapter serves every provider that speaks the OpenAI
// chat-completions dialect. One instance is bound to a (tag, model)
// pair.
type openAICompatAdapter struct {
	provider string
	model    string
	client   *openai.Client
	hasKey   bool
}

// NewOpenAICompat builds an adapter for an OpenAI-compatible tag. An
// empty key yields an unhealthy adapter whose calls fail with
// MISSING_API_KEY; a malformed key fails construction with
// INVALID_API_KEY.
func NewOpenAICompat(provider, model, apiKey string) (Adapter, error) {
	a := &openAICompatAdapter{provider: provider, model: model}
	if apiKey == "" {
		return a, nil
	}

	if _, err := keys.Validate(provider, apiKey); err != nil {
		return nil, newError(provider, model, models.ErrInvalidAPIKey, err.Error(), err)
	}

	cfg := openai.DefaultConfig(apiKey)
	if url := baseURLs[provider]; url != "" {
		cfg.BaseURL = url
	}
	a.client = openai.NewClientWithConfig(cfg)
	a.hasKey = true
	return a, nil
}

func (a *openAICompatAdapter) Name() string        { return a.provider }
func (a *openAICompatAdapter) ModelName() string   { return a.model }
func (a *openAICompatAdapter) SupportsTools() bool { return true }

func (a *openAICompatAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (*ChatResult, error) {
	if !a.hasKey {
		return nil, newError(a.provider, a.model, models.ErrMissingAPIKey, "no API key configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    toOpenAIMessages(cfg.SystemPrompt, history),
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
		Tools:       toOpenAITools(tools),
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, a.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(a.provider, a.model, models.ErrProvider5xx, "response contained no choices", nil)
	}

	choice := resp.Choices[0].Message
	msg := models.Message{
		Role:      models.RoleAssistant,
		Content:   choice.Content,
		CreatedAt: time.Now(),
	}
	for _, call := range choice.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			// Malformed argument JSON surfaces at schema validation.
			_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		}
		msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	return &ChatResult{
		Message: msg,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (a *openAICompatAdapter) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	if !a.hasKey {
		return HealthStatus{OK: false, Error: string(models.ErrMissingAPIKey)}
	}
	return HealthStatus{OK: true, LatencySeconds: time.Since(start).Seconds()}
}

func (a *openAICompatAdapter) wrapError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := classifyStatus(apiErr.HTTPStatusCode)
		pe := newError(a.provider, a.model, code, apiErr.Message, err)
		pe.Status = apiErr.HTTPStatusCode
		return pe
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := classifyStatus(reqErr.HTTPStatusCode)
		pe := newError(a.provider, a.model, code, reqErr.Error(), err)
		pe.Status = reqErr.HTTPStatusCode
		return pe
	}
	return newError(a.provider, a.model, classifyTransport(err), err.Error(), err)
}

// toOpenAIMessages translates the canonical history. The system
// prompt, when present, is injected as the first message.
func toOpenAIMessages(systemPrompt string, history []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case models.RoleAssistant:
			converted := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Arguments)
				converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, converted)
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return out
}

func toOpenAITools(tools []models.ToolSchema) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}
