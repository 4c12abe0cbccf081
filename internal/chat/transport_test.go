package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/internal/models"
)

func TestSSEStreamParsesFrames(t *testing.T) {
	body := "event: text-delta\ndata: {\"type\":\"text-delta\",\"delta\":\"Hi\"}\n\n" +
		": keep-alive comment\n\n" +
		"event: tool-call-result\r\ndata: {\"type\":\"tool-call-result\",\"tool_call\":{\"id\":\"t1\",\"name\":\"recommendGuitar\",\"output\":{\"id\":\"2\"}}}\r\n\r\n" +
		"event: done\ndata: {\"finish_reason\":\"stop\"}\n\n"
	s := newSSEStream(io.NopCloser(strings.NewReader(body)))

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, models.EventTextDelta, ev.Type)
	assert.Equal(t, "Hi", ev.Delta)

	ev, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, models.EventToolCallResult, ev.Type)
	assert.JSONEq(t, `{"id":"2"}`, string(ev.ToolCall.Output))

	ev, err = s.Recv()
	require.NoError(t, err)
	assert.Equal(t, models.EventDone, ev.Type, "type falls back to the event name")
	assert.Equal(t, "stop", ev.FinishReason)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEStreamRejectsGarbage(t *testing.T) {
	s := newSSEStream(io.NopCloser(strings.NewReader("event: text-delta\ndata: {oops\n\n")))
	_, err := s.Recv()
	assert.Error(t, err)
}

func TestHTTPTransportStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1", req.ConversationID)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hi", req.Messages[0].Text())

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "event: text-delta\ndata: {\"type\":\"text-delta\",\"delta\":\"yo\"}\n\n")
		_, _ = io.WriteString(w, "event: done\ndata: {\"type\":\"done\"}\n\n")
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL + "/")
	stream, err := tr.Stream(context.Background(), Request{
		ConversationID: "c1",
		Messages:       []models.Message{{ID: "u", Role: models.RoleUser, Parts: []models.Part{models.TextPart("hi")}}},
	})
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "yo", ev.Delta)
	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, models.EventDone, ev.Type)
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHTTPTransportStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"Failed to process chat request"}`)
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(srv.URL).Stream(context.Background(), Request{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.EqualError(t, err, "Failed to process chat request")
	assert.False(t, IsClientClosed(err))
	assert.True(t, IsClientClosed(&StatusError{Code: 499}))
}
