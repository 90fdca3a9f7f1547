package providers

import (
	"context"
	"sync"

	"github.com/prismllm/prism/pkg/models"
)

// knownModels advertises a representative model list per provider for
// the listing endpoint. Any model name is accepted at Get time; the
// vendor is the authority on validity.
var knownModels = map[string][]string{
	models.ProviderOpenAI:    {"gpt-4", "gpt-4o", "gpt-4o-mini", "gpt-4.1"},
	models.ProviderAnthropic: {"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022", "claude-opus-4-20250514"},
	models.ProviderGemini:    {"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"},
	models.ProviderMistral:   {"mistral-large-latest", "mistral-small-latest", "open-mistral-nemo"},
	models.ProviderGrok:      {"grok-3", "grok-3-mini"},
	models.ProviderQwen:      {"qwen-max", "qwen-plus", "qwen-turbo"},
	models.ProviderDeepSeek:  {"deepseek-chat", "deepseek-reasoner"},
	models.ProviderKimi:      {"kimi-k2-0711-preview", "moonshot-v1-128k"},
}

// constructors maps each provider tag to its adapter builder.
var constructors = map[string]func(model, apiKey string) (Adapter, error){
	models.ProviderOpenAI:    func(m, k string) (Adapter, error) { return NewOpenAICompat(models.ProviderOpenAI, m, k) },
	models.ProviderGrok:      func(m, k string) (Adapter, error) { return NewOpenAICompat(models.ProviderGrok, m, k) },
	models.ProviderQwen:      func(m, k string) (Adapter, error) { return NewOpenAICompat(models.ProviderQwen, m, k) },
	models.ProviderDeepSeek:  func(m, k string) (Adapter, error) { return NewOpenAICompat(models.ProviderDeepSeek, m, k) },
	models.ProviderKimi:      func(m, k string) (Adapter, error) { return NewOpenAICompat(models.ProviderKimi, m, k) },
	models.ProviderMistral:   func(m, k string) (Adapter, error) { return NewOpenAICompat(models.ProviderMistral, m, k) },
	models.ProviderAnthropic: NewAnthropic,
	models.ProviderGemini:    NewGemini,
}

// ProviderInfo is one row of the provider listing.
type ProviderInfo struct {
	Name           string   `json:"name"`
	Healthy        bool     `json:"healthy"`
	Models         []string `json:"models"`
	HasToolSupport bool     `json:"has_tool_support"`
}

// Factory builds and caches adapters. One instance per (provider tag,
// model) pair lives for the process lifetime.
type Factory struct {
	mu      sync.Mutex
	apiKeys map[string]string
	cache   map[string]Adapter
}

// NewFactory takes the provider→key map sourced from the environment.
// Missing entries are allowed; the resulting adapters are unhealthy.
func NewFactory(apiKeys map[string]string) *Factory {
	return &Factory{apiKeys: apiKeys, cache: map[string]Adapter{}}
}

// Known reports whether tag has a registered constructor.
func (f *Factory) Known(tag string) bool {
	_, ok := constructors[tag]
	return ok
}

// Get returns the cached adapter for (tag, model), constructing it on
// first use. Unknown tags fail with UNKNOWN_PROVIDER; construction
// failures (malformed keys) are not cached so a fixed key is picked up
// on restart paths.
func (f *Factory) Get(tag, model string) (Adapter, error) {
	build, ok := constructors[tag]
	if !ok {
		return nil, newError(tag, model, models.ErrUnknownProvider, "no adapter registered for provider", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cacheKey := tag + "/" + model
	if adapter, ok := f.cache[cacheKey]; ok {
		return adapter, nil
	}

	adapter, err := build(model, f.apiKeys[tag])
	if err != nil {
		return nil, err
	}
	f.cache[cacheKey] = adapter
	return adapter, nil
}

// List enumerates every registered provider with its health and
// capability surface.
func (f *Factory) List(ctx context.Context) []ProviderInfo {
	out := make([]ProviderInfo, 0, len(constructors))
	for _, tag := range models.KnownProviders() {
		modelList := knownModels[tag]
		info := ProviderInfo{Name: tag, Models: modelList}

		defaultModel := ""
		if len(modelList) > 0 {
			defaultModel = modelList[0]
		}
		if adapter, err := f.Get(tag, defaultModel); err == nil {
			health := adapter.Health(ctx)
			info.Healthy = health.OK
			info.HasToolSupport = adapter.SupportsTools()
		}
		out = append(out, info)
	}
	return out
}
