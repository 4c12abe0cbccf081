package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/internal/config"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.Default().Speech
	cfg.BaseURL = srv.URL + "/v1/"
	svc, err := NewService("sk-test", cfg, option.WithMaxRetries(0))
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresKey(t *testing.T) {
	_, err := NewService("", config.Default().Speech)
	assert.Error(t, err)
}

func TestTranscribe(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip.webm", hdr.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "fake-audio", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  recommend a guitar "}`))
	})

	text, err := svc.Transcribe(context.Background(), strings.NewReader("fake-audio"), "clip.webm", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "recommend a guitar", text)
}

func TestTranscribeUpstreamError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
	})

	_, err := svc.Transcribe(context.Background(), strings.NewReader("x"), "", "audio/webm")
	assert.Error(t, err)
}

func TestSynthesize(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tts-1", req.Model)
		assert.Equal(t, "nova", req.Voice)
		assert.Equal(t, "Hello there", req.Input)
		assert.Equal(t, "mp3", req.ResponseFormat)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	})

	audio, err := svc.Synthesize(context.Background(), " Hello there ", "nova")
	require.NoError(t, err)
	defer audio.Close()
	data, err := io.ReadAll(audio)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(data))
}

func TestSynthesizeDefaultsVoice(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alloy", req.Voice)
		_, _ = w.Write([]byte("audio"))
	})

	audio, err := svc.Synthesize(context.Background(), "hi", "")
	require.NoError(t, err)
	audio.Close()
}

func TestSynthesizeValidatesInput(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := svc.Synthesize(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = svc.Synthesize(context.Background(), strings.Repeat("a", MaxSpeechInput+1), "")
	assert.ErrorIs(t, err, ErrTextTooLong)
}
