// Package speech wraps the OpenAI audio endpoints used for voice input and
// read-aloud.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"streamchat/internal/config"
)

const MaxSpeechInput = 4096

var (
	ErrEmptyAudio  = errors.New("audio is empty")
	ErrEmptyText   = errors.New("text is empty")
	ErrTextTooLong = fmt.Errorf("text exceeds %d characters", MaxSpeechInput)
)

type Service struct {
	client openai.Client
	cfg    config.SpeechConfig
}

// NewService returns an error when apiKey is empty; callers treat that as
// speech being unavailable.
func NewService(apiKey string, cfg config.SpeechConfig, opts ...option.RequestOption) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("speech requires an OpenAI API key")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &Service{client: openai.NewClient(reqOpts...), cfg: cfg}, nil
}

// Transcribe turns recorded audio into text.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	if audio == nil {
		return "", ErrEmptyAudio
	}
	if filename == "" {
		filename = "recording.webm"
	}
	resp, err := s.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, contentType),
		Model: openai.AudioModel(s.cfg.TranscriptionModel),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns mp3 audio for text. The caller closes the reader.
func (s *Service) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len([]rune(text)) > MaxSpeechInput {
		return nil, ErrTextTooLong
	}
	if voice == "" {
		voice = s.cfg.Voice
	}
	var resp *http.Response
	err := s.client.Post(ctx, "audio/speech", speechRequest{
		Model:          s.cfg.SpeechModel,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "mp3",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	return resp.Body, nil
}
