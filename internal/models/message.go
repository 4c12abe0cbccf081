package models

import (
	"encoding/json"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartText     PartType = "text"
	PartToolCall PartType = "tool-call"
)

// Part is one typed segment of a message. Text parts use Content; tool-call
// parts use ID, Name, Arguments and Output.
type Part struct {
	Type      PartType        `json:"type"`
	Content   string          `json:"content,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

func TextPart(content string) Part {
	return Part{Type: PartText, Content: content}
}

func ToolCallPart(id, name, arguments string, output json.RawMessage) Part {
	return Part{Type: PartToolCall, ID: id, Name: name, Arguments: arguments, Output: output}
}

// Message is a single conversation turn made of ordered parts.
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text joins the content of all text parts in order.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Content)
		}
	}
	return b.String()
}

// FirstText returns the first non-empty text part, used for read-aloud.
func (m Message) FirstText() string {
	for _, p := range m.Parts {
		if p.Type == PartText && p.Content != "" {
			return p.Content
		}
	}
	return ""
}

// Clone returns a deep copy so callers cannot mutate reducer state.
func (m Message) Clone() Message {
	out := Message{ID: m.ID, Role: m.Role}
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		for i, p := range m.Parts {
			cp := p
			if p.Output != nil {
				cp.Output = append(json.RawMessage(nil), p.Output...)
			}
			out.Parts[i] = cp
		}
	}
	return out
}
