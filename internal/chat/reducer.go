// Package chat is the client half of the streaming pipeline: it posts a
// conversation to the server, folds the returned event stream into messages
// and exposes the state a view renders.
package chat

import (
	"streamchat/internal/models"
)

// Reduce folds one stream event into msgs and returns the new slice. The
// input is never mutated. Changes are append-only: text deltas extend the
// open text part of the assistant message turnID (creating the message and
// part on first use) and resolved tool calls add a tool-call part.
func Reduce(msgs []models.Message, turnID string, ev *models.Event) []models.Message {
	if ev == nil {
		return msgs
	}
	switch ev.Type {
	case models.EventTextDelta:
		if ev.Delta == "" {
			return msgs
		}
		out, msg := openAssistant(msgs, turnID)
		if n := len(msg.Parts); n > 0 && msg.Parts[n-1].Type == models.PartText {
			msg.Parts[n-1].Content += ev.Delta
		} else {
			msg.Parts = append(msg.Parts, models.TextPart(ev.Delta))
		}
		return out
	case models.EventToolCallResult:
		if ev.ToolCall == nil || len(ev.ToolCall.Output) == 0 {
			return msgs
		}
		out, msg := openAssistant(msgs, turnID)
		msg.Parts = append(msg.Parts, models.ToolCallPart(
			ev.ToolCall.ID,
			ev.ToolCall.Name,
			ev.ToolCall.Arguments,
			ev.ToolCall.Output,
		))
		return out
	default:
		return msgs
	}
}

// openAssistant copies msgs and returns a pointer to the (cloned) assistant
// message of the turn inside the copy, appending it if it does not exist yet.
func openAssistant(msgs []models.Message, turnID string) ([]models.Message, *models.Message) {
	out := make([]models.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	if n := len(out); n > 0 && out[n-1].ID == turnID && out[n-1].Role == models.RoleAssistant {
		out[n-1] = out[n-1].Clone()
		return out, &out[n-1]
	}
	out = append(out, models.Message{ID: turnID, Role: models.RoleAssistant})
	return out, &out[len(out)-1]
}
