package models

import "encoding/json"

// EventType names a stream event and doubles as the SSE event name.
type EventType string

const (
	EventTextDelta      EventType = "text-delta"
	EventToolCallStart  EventType = "tool-call-start"
	EventToolCallResult EventType = "tool-call-result"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

const (
	FinishStop          = "stop"
	FinishMaxIterations = "max_iterations"
)

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments string          `json:"arguments,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// Event is one item of an assistant turn's stream.
type Event struct {
	Type         EventType `json:"type"`
	MessageID    string    `json:"message_id,omitempty"`
	Delta        string    `json:"delta,omitempty"`
	ToolCall     *ToolCall `json:"tool_call,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Error        string    `json:"error,omitempty"`
}
