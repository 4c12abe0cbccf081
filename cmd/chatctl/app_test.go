package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			n := calls.Add(1)
			if n == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error":"Failed to process chat request"}`)
				return
			}
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "event: text-delta\ndata: {\"type\":\"text-delta\",\"message_id\":\"a\",\"delta\":\"Try the \"}\n\n")
			_, _ = io.WriteString(w, "event: text-delta\ndata: {\"type\":\"text-delta\",\"message_id\":\"a\",\"delta\":\"Strat.\"}\n\n")
			_, _ = io.WriteString(w, "event: tool-call-result\ndata: {\"type\":\"tool-call-result\",\"tool_call\":{\"id\":\"t1\",\"name\":\"recommendGuitar\",\"output\":{\"id\":\"2\"}}}\n\n")
			_, _ = io.WriteString(w, "event: done\ndata: {\"type\":\"done\",\"finish_reason\":\"stop\"}\n\n")
		case "/api/speech/synthesize":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = io.WriteString(w, "ID3")
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestAppStreamsRetriesAndSpeaks(t *testing.T) {
	var calls atomic.Int32
	srv := newChatServer(t, &calls)
	defer srv.Close()

	dir := t.TempDir()
	a := newApp(srv.URL, dir, slog.LevelError)
	var out bytes.Buffer
	err := a.run(context.Background(), strings.NewReader("recommend a guitar\n/retry\n/quit\n"), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Failed to process chat request")
	assert.Contains(t, text, "Try the Strat.")
	assert.Contains(t, text, "[recommended guitar #2]")
	assert.EqualValues(t, 2, calls.Load())

	audio, err := os.ReadFile(filepath.Join(dir, "reply-1.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(audio))
}

func TestAppTranscribeMissingFile(t *testing.T) {
	a := newApp("http://127.0.0.1:0", "", slog.LevelError)
	var out bytes.Buffer
	err := a.run(context.Background(), strings.NewReader("/transcribe /does/not/exist.wav\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "error:")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel(""))
}
