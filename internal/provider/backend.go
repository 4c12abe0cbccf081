package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"streamchat/internal/config"
	"streamchat/internal/ollama"
)

// Backend is one provider variant carrying its own configuration.
type Backend interface {
	Kind() Kind
	Model() string
	NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error)
}

type Anthropic struct {
	APIKey    string
	BaseURL   string
	ModelName string
	MaxTokens int
}

func (a Anthropic) Kind() Kind { return KindAnthropic }
func (a Anthropic) Model() string { return a.ModelName }

func (a Anthropic) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	var baseURLPtr *string
	if a.BaseURL != "" {
		baseURLPtr = &a.BaseURL
	}
	cm, err := claude.NewChatModel(ctx, &claude.Config{
		APIKey:    a.APIKey,
		Model:     a.ModelName,
		BaseURL:   baseURLPtr,
		MaxTokens: a.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("init claude model: %w", err)
	}
	return cm, nil
}

type OpenAI struct {
	APIKey    string
	BaseURL   string
	ModelName string
}

func (o OpenAI) Kind() Kind { return KindOpenAI }
func (o OpenAI) Model() string { return o.ModelName }

func (o OpenAI) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: o.BaseURL,
		Model:   o.ModelName,
		APIKey:  o.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai model: %w", err)
	}
	return cm, nil
}

type Gemini struct {
	APIKey    string
	ModelName string
}

func (g Gemini) Kind() Kind { return KindGemini }
func (g Gemini) Model() string { return g.ModelName }

func (g Gemini) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  g.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini model: %w", err)
	}
	return cm, nil
}

// Local is the offline fallback served by an Ollama daemon.
type Local struct {
	Host      string
	ModelName string
}

func (l Local) Kind() Kind { return KindOllama }
func (l Local) Model() string { return l.ModelName }

func (l Local) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	cm, err := ollama.NewChatModel(l.Host, l.ModelName)
	if err != nil {
		return nil, fmt.Errorf("init ollama model: %w", err)
	}
	return cm, nil
}

// Resolve turns a Choice into a configured Backend. Config may override the
// model and base URL per provider; credentials are read through lookup.
func Resolve(choice Choice, cfg *config.Config, lookup LookupFunc) Backend {
	if cfg == nil {
		cfg = config.Default()
	}
	get := func(key string) string {
		if lookup == nil {
			return ""
		}
		v, _ := lookup(key)
		return v
	}
	override := cfg.Providers[string(choice.Provider)]
	modelName := choice.Model
	if override.Model != "" {
		modelName = override.Model
	}

	switch choice.Provider {
	case KindAnthropic:
		baseURL := get(EnvAnthropicBaseURL)
		if baseURL == "" {
			baseURL = override.BaseURL
		}
		return Anthropic{
			APIKey:    get(EnvAnthropicKey),
			BaseURL:   baseURL,
			ModelName: modelName,
			MaxTokens: cfg.Chat.MaxTokens,
		}
	case KindOpenAI:
		return OpenAI{APIKey: get(EnvOpenAIKey), BaseURL: override.BaseURL, ModelName: modelName}
	case KindGemini:
		return Gemini{APIKey: get(EnvGeminiKey), ModelName: modelName}
	default:
		host := get(EnvOllamaHost)
		if host == "" {
			host = override.BaseURL
		}
		return Local{Host: host, ModelName: modelName}
	}
}
