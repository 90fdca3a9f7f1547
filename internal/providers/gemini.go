package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/prismllm/prism/internal/keys"
	"github.com/prismllm/prism/pkg/models"
)

type geminiAdapter struct {
	model  string
	client *genai.Client
	hasKey bool
}

// NewGemini builds the Gemini adapter on the Google Gen AI SDK. Key
// handling matches the other constructors.
func NewGemini(model, apiKey string) (Adapter, error) {
	a := &geminiAdapter{model: model}
	if apiKey == "" {
		return a, nil
	}

	if _, err := keys.Validate(models.ProviderGemini, apiKey); err != nil {
		return nil, newError(models.ProviderGemini, model, models.ErrInvalidAPIKey, err.Error(), err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, newError(models.ProviderGemini, model, models.ErrTransientNetwork, "client init failed", err)
	}
	a.client = client
	a.hasKey = true
	return a, nil
}

func (a *geminiAdapter) Name() string        { return models.ProviderGemini }
func (a *geminiAdapter) ModelName() string   { return a.model }
func (a *geminiAdapter) SupportsTools() bool { return true }

func (a *geminiAdapter) ChatCompletion(ctx context.Context, cfg models.AgentConfig, history []models.Message, tools []models.ToolSchema) (*ChatResult, error) {
	if !a.hasKey {
		return nil, newError(models.ProviderGemini, a.model, models.ErrMissingAPIKey, "no API key configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	contents := toGeminiContents(history)
	config := a.buildConfig(cfg, tools)

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return nil, a.wrapError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, newError(models.ProviderGemini, a.model, models.ErrProvider5xx, "response contained no candidates", nil)
	}

	msg := models.Message{Role: models.RoleAssistant, CreatedAt: time.Now()}
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			msg.Content += part.Text
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				// Gemini omits call ids; mint a per-turn stable one.
				id = fmt.Sprintf("call_%d_%s", i, part.FunctionCall.Name)
			}
			msg.ToolCalls = append(msg.ToolCalls, models.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	result := &ChatResult{Message: msg}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return result, nil
}

func (a *geminiAdapter) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	if !a.hasKey {
		return HealthStatus{OK: false, Error: string(models.ErrMissingAPIKey)}
	}
	return HealthStatus{OK: true, LatencySeconds: time.Since(start).Seconds()}
}

func (a *geminiAdapter) buildConfig(cfg models.AgentConfig, tools []models.ToolSchema) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(cfg.Temperature)),
	}
	if cfg.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemPrompt}},
		}
	}
	if cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if len(tools) > 0 {
		config.Tools = toGeminiTools(tools)
	}
	return config
}

// wrapError classifies Gen AI SDK failures. The SDK wraps HTTP errors
// as genai.APIError with a status code; anything else is transport.
func (a *geminiAdapter) wrapError(err error) *ProviderError {
	msg := err.Error()
	if status := geminiStatusCode(msg); status > 0 {
		code := classifyStatus(status)
		pe := newError(models.ProviderGemini, a.model, code, msg, err)
		pe.Status = status
		return pe
	}
	return newError(models.ProviderGemini, a.model, classifyTransport(err), msg, err)
}

// geminiStatusCode sniffs an HTTP status from the SDK error string.
func geminiStatusCode(msg string) int {
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return 429
	case strings.Contains(msg, "500"), strings.Contains(msg, "INTERNAL"):
		return 500
	case strings.Contains(msg, "503"), strings.Contains(msg, "UNAVAILABLE"):
		return 503
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "API key"):
		return 401
	case strings.Contains(msg, "400"), strings.Contains(msg, "INVALID_ARGUMENT"):
		return 400
	case strings.Contains(msg, "404"):
		return 404
	default:
		return 0
	}
}

func toGeminiContents(history []models.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range history {
		content := &genai.Content{}
		switch msg.Role {
		case models.RoleSystem, models.RoleUser:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		case models.RoleAssistant:
			content.Role = genai.RoleModel
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: call.Name,
						Args: call.Arguments,
					},
				})
			}
		case models.RoleTool:
			content.Role = genai.RoleUser
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolNameForCall(history, msg.ToolCallID),
					Response: map[string]any{"result": msg.Content},
				},
			})
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

// toolNameForCall resolves the tool name a result answers, since
// Gemini keys function responses by name rather than call id.
func toolNameForCall(history []models.Message, toolCallID string) string {
	for _, msg := range history {
		for _, call := range msg.ToolCalls {
			if call.ID == toolCallID {
				return call.Name
			}
		}
	}
	return toolCallID
}

func toGeminiTools(tools []models.ToolSchema) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(parseSchema(tool.Parameters)),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func parseSchema(raw json.RawMessage) map[string]any {
	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil
	}
	return schemaMap
}

// toGeminiSchema converts a JSON Schema map to Gemini's Schema type.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}
