// Package keys validates provider API key formats and produces masked
// renderings safe for logs and error messages. Raw keys must never
// appear anywhere a user or log aggregator can see them; every error
// path that mentions a key routes through Mask.
package keys

import (
	"fmt"
	"regexp"
)

// keyFormats is the authoritative per-provider key shape table.
var keyFormats = map[string]*regexp.Regexp{
	"openai":    regexp.MustCompile(`^sk-[A-Za-z0-9\-_]{40,}$`),
	"anthropic": regexp.MustCompile(`^sk-ant-api03-[A-Za-z0-9\-_]{95}$`),
	"gemini":    regexp.MustCompile(`^AIza[A-Za-z0-9_\-]{33,}$`),
	"mistral":   regexp.MustCompile(`^[A-Za-z0-9]{32}$`),
	"grok":      regexp.MustCompile(`^xai-[A-Za-z0-9]{40}$`),
	"qwen":      regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
	"deepseek":  regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
	"kimi":      regexp.MustCompile(`^sk-[A-Za-z0-9]{40,}$`),
}

const ellipsis = "…"

// ErrInvalidKey reports a key that failed format validation. Masked
// carries the only rendering of the key that may be surfaced.
type ErrInvalidKey struct {
	Provider string
	Masked   string
}

func (e *ErrInvalidKey) Error() string {
	return fmt.Sprintf("invalid %s API key format: %s", e.Provider, e.Masked)
}

// ErrUnknownProvider reports a provider tag with no key-format entry.
type ErrUnknownProvider struct {
	Provider string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

// Validate checks key against the format table for provider and
// returns the key unchanged on success. The returned errors never
// contain the raw key.
func Validate(provider, key string) (string, error) {
	re, ok := keyFormats[provider]
	if !ok {
		return "", &ErrUnknownProvider{Provider: provider}
	}
	if !re.MatchString(key) {
		return "", &ErrInvalidKey{Provider: provider, Masked: Mask(key)}
	}
	return key, nil
}

// Known reports whether provider has a key-format entry.
func Known(provider string) bool {
	_, ok := keyFormats[provider]
	return ok
}

// Mask keeps the first and last 4 characters of a key and replaces the
// middle with an ellipsis. Keys shorter than 12 characters reduce to
// the ellipsis alone so no usable fragment leaks.
func Mask(key string) string {
	if len(key) < 12 {
		return ellipsis
	}
	return key[:4] + ellipsis + key[len(key)-4:]
}
