// Package provider picks the hosted language-model backend for a chat turn
// and builds an eino chat model for it.
//
// Selection only looks at whether credential variables are present. The
// priority is fixed: Anthropic, OpenAI, Gemini, then the local Ollama
// fallback, so Select never fails.
package provider

import (
	"os"
)

// Kind identifies a provider implementation.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindGemini    Kind = "gemini"
	KindOllama    Kind = "ollama"
)

const (
	EnvAnthropicKey     = "ANTHROPIC_API_KEY"
	EnvAnthropicBaseURL = "ANTHROPIC_BASE_URL"
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvGeminiKey        = "GEMINI_API_KEY"
	EnvOllamaHost       = "OLLAMA_HOST"
)

var defaultModels = map[Kind]string{
	KindAnthropic: "claude-opus-4-5-20251101",
	KindOpenAI:    "gpt-4o",
	KindGemini:    "gemini-2.0-flash-exp",
	KindOllama:    "mistral:7b",
}

// DefaultModel returns the built-in model identifier for a provider.
func DefaultModel(kind Kind) string {
	return defaultModels[kind]
}

// Choice is the provider and model resolved for one request.
type Choice struct {
	Provider Kind   `json:"provider"`
	Model    string `json:"model"`
}

// LookupFunc has the shape of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

var priority = []struct {
	kind Kind
	env  string
}{
	{KindAnthropic, EnvAnthropicKey},
	{KindOpenAI, EnvOpenAIKey},
	{KindGemini, EnvGeminiKey},
}

// Select returns the first provider whose credential variable is set.
func Select(lookup LookupFunc) Choice {
	for _, p := range priority {
		if present(lookup, p.env) {
			return Choice{Provider: p.kind, Model: defaultModels[p.kind]}
		}
	}
	return Choice{Provider: KindOllama, Model: defaultModels[KindOllama]}
}

// FromEnv selects a provider from the process environment.
func FromEnv() Choice {
	return Select(os.LookupEnv)
}

func present(lookup LookupFunc, key string) bool {
	if lookup == nil {
		return false
	}
	v, ok := lookup(key)
	return ok && v != ""
}
