package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"streamchat/internal/config"
)

func envMap(kv map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

func TestSelectPriority(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want Choice
	}{
		{"all keys", map[string]string{EnvAnthropicKey: "a", EnvOpenAIKey: "o", EnvGeminiKey: "g"},
			Choice{Provider: KindAnthropic, Model: "claude-opus-4-5-20251101"}},
		{"openai and gemini", map[string]string{EnvOpenAIKey: "o", EnvGeminiKey: "g"},
			Choice{Provider: KindOpenAI, Model: "gpt-4o"}},
		{"gemini only", map[string]string{EnvGeminiKey: "g"},
			Choice{Provider: KindGemini, Model: "gemini-2.0-flash-exp"}},
		{"nothing", map[string]string{},
			Choice{Provider: KindOllama, Model: "mistral:7b"}},
		{"empty values are absent", map[string]string{EnvAnthropicKey: "", EnvOpenAIKey: ""},
			Choice{Provider: KindOllama, Model: "mistral:7b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Select(envMap(tc.env))
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Select(envMap(tc.env)), "selection is deterministic")
		})
	}
	assert.Equal(t, KindOllama, Select(nil).Provider)
}

func TestResolveReadsCredentialsAndOverrides(t *testing.T) {
	env := envMap(map[string]string{
		EnvAnthropicKey:     "sk-ant",
		EnvAnthropicBaseURL: "https://proxy.example",
		EnvOllamaHost:       "http://gpu:11434",
	})

	b := Resolve(Select(env), nil, env)
	anth, ok := b.(Anthropic)
	assert.True(t, ok)
	assert.Equal(t, "sk-ant", anth.APIKey)
	assert.Equal(t, "https://proxy.example", anth.BaseURL)
	assert.Equal(t, config.DefaultMaxTokens, anth.MaxTokens)
	assert.Equal(t, KindAnthropic, b.Kind())

	cfg := config.Default()
	cfg.Providers["ollama"] = config.ProviderConfig{Model: "llama3.1:8b", BaseURL: "http://ignored"}
	local := Resolve(Choice{Provider: KindOllama, Model: DefaultModel(KindOllama)}, cfg, env)
	assert.Equal(t, Local{Host: "http://gpu:11434", ModelName: "llama3.1:8b"}, local)

	cfg.Providers["openai"] = config.ProviderConfig{BaseURL: "http://localhost:8080/v1"}
	oa := Resolve(Choice{Provider: KindOpenAI, Model: "gpt-4o"}, cfg, env)
	assert.Equal(t, OpenAI{BaseURL: "http://localhost:8080/v1", ModelName: "gpt-4o"}, oa)
	assert.Equal(t, "gpt-4o", oa.Model())
}
