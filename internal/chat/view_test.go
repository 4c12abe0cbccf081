package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/internal/models"
)

func TestRenderEmptyConversationShowsSuggestions(t *testing.T) {
	v := Render(NewConversation(newFakeTransport()), "")
	assert.Empty(t, v.Messages)
	assert.Equal(t, Suggestions, v.Suggestions)
	assert.False(t, v.InputDisabled)
	assert.False(t, v.ScrollToBottom)
}

func TestRenderWhileStreaming(t *testing.T) {
	tr := newFakeTransport()
	conv := NewConversation(tr)
	require.NoError(t, conv.SendMessage(context.Background(), "hi"))

	v := Render(conv, "")
	assert.True(t, v.InputDisabled)
	assert.True(t, v.CanStop)
	assert.False(t, v.CanRetry)
	assert.Nil(t, v.Suggestions)
	assert.True(t, v.ScrollToBottom)

	tr.next(t)
	conv.Stop()
	v = Render(conv, "")
	assert.False(t, v.InputDisabled)
}

func TestRenderErrorOffersRetry(t *testing.T) {
	tr := newFakeTransport()
	tr.err = &StatusError{Code: 500, Message: "boom"}
	conv := NewConversation(tr)
	require.NoError(t, conv.SendMessage(context.Background(), "hi"))
	waitState(t, conv, StateError)

	v := Render(conv, "")
	assert.Equal(t, "boom", v.Error)
	assert.True(t, v.CanRetry)
	assert.False(t, v.InputDisabled)
}

func TestRenderSnapshotErrorWithoutMessage(t *testing.T) {
	v := RenderSnapshot(Snapshot{
		Messages: []models.Message{{ID: "u1", Role: models.RoleUser, Parts: []models.Part{models.TextPart("hi")}}},
		State:    StateError,
	}, "")
	assert.Equal(t, "Unknown error", v.Error)
	assert.True(t, v.CanRetry)
	require.Len(t, v.Messages, 1)
}

func TestRenderMessageItems(t *testing.T) {
	m := models.Message{ID: "a1", Role: models.RoleAssistant, Parts: []models.Part{
		models.TextPart(""),
		models.TextPart("Try this one:"),
		models.ToolCallPart("t0", "getGuitars", "{}", json.RawMessage(`[]`)),
		models.ToolCallPart("t1", RecommendTool, `{"id":4}`, json.RawMessage(`{"id":4}`)),
		models.ToolCallPart("t2", RecommendTool, `{}`, json.RawMessage(`{"id":null}`)),
	}}

	mv := renderMessage(m, "a1")
	require.Len(t, mv.Items, 2)
	assert.Equal(t, ItemText, mv.Items[0].Kind)
	assert.Equal(t, "Try this one:", mv.Items[0].Text)
	assert.Equal(t, ItemRecommendation, mv.Items[1].Kind)
	assert.Equal(t, "4", mv.Items[1].GuitarID)
	assert.Equal(t, "Try this one:", mv.ReadAloud)
	assert.True(t, mv.Playing)

	user := renderMessage(models.Message{ID: "u1", Role: models.RoleUser, Parts: []models.Part{models.TextPart("hi")}}, "u1")
	assert.Empty(t, user.ReadAloud)
	assert.False(t, user.Playing)
}

func TestRecommendationID(t *testing.T) {
	cases := []struct {
		output string
		want   string
		ok     bool
	}{
		{`{"id":"7"}`, "7", true},
		{`{"id":7}`, "7", true},
		{`{"id":null}`, "", false},
		{`{"id":""}`, "", false},
		{`{}`, "", false},
		{`"text"`, "", false},
		{``, "", false},
	}
	for _, tc := range cases {
		got, ok := RecommendationID(json.RawMessage(tc.output))
		assert.Equal(t, tc.ok, ok, tc.output)
		assert.Equal(t, tc.want, got, tc.output)
	}
}

func TestAppendTranscript(t *testing.T) {
	assert.Equal(t, "hello", AppendTranscript("", " hello "))
	assert.Equal(t, "I want a guitar", AppendTranscript("I want", "a guitar"))
	assert.Equal(t, "typed", AppendTranscript("typed", "  "))
}
