package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"streamchat/internal/models"
)

// RecommendTool is the tool whose result renders as a product card.
const RecommendTool = "recommendGuitar"

// Suggestions are offered while the conversation is empty.
var Suggestions = []string{
	"Recommend a guitar for a beginner playing rock",
	"Explain music theory basic chords and scales",
	"Write a song about a rainy day in London",
	"Compare Fender Stratocaster vs Telecaster",
}

type ItemKind string

const (
	ItemText           ItemKind = "text"
	ItemRecommendation ItemKind = "recommendation"
)

// Item is one renderable piece of a message. Recommendation items carry the
// guitar id and are keyed by the tool call id.
type Item struct {
	Kind     ItemKind
	Key      string
	Text     string
	GuitarID string
}

type MessageView struct {
	ID        string
	Role      models.Role
	Items     []Item
	ReadAloud string
	Playing   bool
}

// View is everything a front end needs to draw the conversation.
type View struct {
	Messages       []MessageView
	Suggestions    []string
	InputDisabled  bool
	CanStop        bool
	Error          string
	CanRetry       bool
	ScrollToBottom bool
}

// Render builds the view of conv. playingID is the message currently being
// read aloud, or "".
func Render(conv *Conversation, playingID string) View {
	return RenderSnapshot(conv.Snapshot(), playingID)
}

// RenderSnapshot builds the view of one consistent conversation snapshot.
func RenderSnapshot(snap Snapshot, playingID string) View {
	msgs := snap.Messages
	state := snap.State

	v := View{
		InputDisabled:  state == StateSending || state == StateStreaming,
		CanStop:        state == StateSending || state == StateStreaming,
		ScrollToBottom: len(msgs) > 0,
	}
	if len(msgs) == 0 {
		v.Suggestions = Suggestions
	}
	if state == StateError {
		if err := snap.Err; err != nil {
			v.Error = err.Error()
		} else {
			v.Error = "Unknown error"
		}
		v.CanRetry = true
	}
	for _, m := range msgs {
		v.Messages = append(v.Messages, renderMessage(m, playingID))
	}
	return v
}

func renderMessage(m models.Message, playingID string) MessageView {
	mv := MessageView{ID: m.ID, Role: m.Role}
	for i, p := range m.Parts {
		switch p.Type {
		case models.PartText:
			if p.Content == "" {
				continue
			}
			mv.Items = append(mv.Items, Item{Kind: ItemText, Key: m.ID + ":" + strconv.Itoa(i), Text: p.Content})
		case models.PartToolCall:
			if p.Name != RecommendTool {
				continue
			}
			if id, ok := RecommendationID(p.Output); ok {
				mv.Items = append(mv.Items, Item{Kind: ItemRecommendation, Key: p.ID, GuitarID: id})
			}
		}
	}
	if m.Role == models.RoleAssistant {
		mv.ReadAloud = m.FirstText()
		mv.Playing = mv.ReadAloud != "" && playingID == m.ID
	}
	return mv
}

// RecommendationID extracts a non-null id from a recommendGuitar output.
// Both numeric and string ids are accepted.
func RecommendationID(output json.RawMessage) (string, bool) {
	if len(output) == 0 {
		return "", false
	}
	var payload struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return "", false
	}
	raw := bytes.TrimSpace(payload.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	return string(raw), true
}

// AppendTranscript adds transcribed speech to whatever is already typed.
func AppendTranscript(input, transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return input
	}
	if input == "" {
		return transcript
	}
	return input + " " + transcript
}
