// Package ollama adapts a local Ollama daemon to eino's tool-calling chat
// model interface so it can stand in for the hosted providers.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

const DefaultHost = "http://localhost:11434"

// Chatter is the subset of the Ollama API client used here.
type Chatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

type ChatModel struct {
	client Chatter
	model  string
	tools  []api.Tool
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

func NewChatModel(host, modelName string) (*ChatModel, error) {
	if host == "" {
		host = DefaultHost
	}
	if modelName == "" {
		return nil, errors.New("model is required")
	}
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return NewChatModelWithClient(api.NewClient(parsedURL, http.DefaultClient), modelName), nil
}

func NewChatModelWithClient(client Chatter, modelName string) *ChatModel {
	return &ChatModel{client: client, model: modelName}
}

// WithTools returns a copy bound to the given tool definitions.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	converted, err := convertTools(tools)
	if err != nil {
		return nil, err
	}
	return &ChatModel{client: m.client, model: m.model, tools: converted}, nil
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	var chunks []*schema.Message
	err := m.chat(ctx, input, false, func(msg *schema.Message) error {
		chunks = append(chunks, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.ConcatMessages(chunks)
}

// Stream starts a streaming chat. The request runs until the daemon finishes,
// ctx is cancelled, or the returned reader is closed.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		err := m.chat(ctx, input, true, func(msg *schema.Message) error {
			if closed := sw.Send(msg, nil); closed {
				return context.Canceled
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			sw.Send(nil, err)
		}
	}()
	return sr, nil
}

func (m *ChatModel) chat(ctx context.Context, input []*schema.Message, stream bool, fn func(*schema.Message) error) error {
	messages, err := convertMessages(input)
	if err != nil {
		return err
	}
	req := &api.ChatRequest{
		Model:    m.model,
		Messages: messages,
		Tools:    m.tools,
		Stream:   &stream,
	}
	// tool calls may arrive one per chunk; indexes stay unique across the
	// stream so concatenation keeps them apart
	var nextIndex int
	err = m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		msg, err := convertResponse(resp.Message, &nextIndex)
		if err != nil {
			return err
		}
		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			return nil
		}
		return fn(msg)
	})
	if err != nil {
		return fmt.Errorf("ollama chat: %w", err)
	}
	return nil
}

func convertMessages(input []*schema.Message) ([]api.Message, error) {
	out := make([]api.Message, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		converted := api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, call := range msg.ToolCalls {
			var tc api.ToolCall
			tc.Function.Name = call.Function.Name
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &tc.Function.Arguments); err != nil {
					return nil, fmt.Errorf("decode tool arguments for %s: %w", call.Function.Name, err)
				}
			}
			converted.ToolCalls = append(converted.ToolCalls, tc)
		}
		out = append(out, converted)
	}
	return out, nil
}

func convertResponse(msg api.Message, nextIndex *int) (*schema.Message, error) {
	var calls []schema.ToolCall
	for _, tc := range msg.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("encode tool arguments: %w", err)
		}
		index := *nextIndex
		*nextIndex++
		calls = append(calls, schema.ToolCall{
			Index: &index,
			ID:    uuid.NewString(),
			Type:  "function",
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: string(args),
			},
		})
	}
	return schema.AssistantMessage(msg.Content, calls), nil
}

// convertTools maps eino tool infos onto Ollama's function tool format by
// going through the JSON schema representation.
func convertTools(tools []*schema.ToolInfo) ([]api.Tool, error) {
	out := make([]api.Tool, 0, len(tools))
	for _, info := range tools {
		if info == nil {
			continue
		}
		params := json.RawMessage(`{"type":"object","properties":{}}`)
		if info.ParamsOneOf != nil {
			js, err := info.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
			}
			if js != nil {
				raw, err := json.Marshal(js)
				if err != nil {
					return nil, fmt.Errorf("tool %s schema: %w", info.Name, err)
				}
				params = raw
			}
		}
		payload, err := json.Marshal(map[string]any{
			"name":        info.Name,
			"description": info.Desc,
			"parameters":  params,
		})
		if err != nil {
			return nil, err
		}
		var fn api.ToolFunction
		if err := json.Unmarshal(payload, &fn); err != nil {
			return nil, fmt.Errorf("tool %s: %w", info.Name, err)
		}
		out = append(out, api.Tool{Type: "function", Function: fn})
	}
	return out, nil
}
