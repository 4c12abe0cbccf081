package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
)

// Synthesizer turns text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// PlayFunc plays audio until it ends or ctx is cancelled.
type PlayFunc func(ctx context.Context, audio io.Reader) error

// Player reads assistant messages aloud. At most one message plays at a time;
// starting another stops the current one. Playback failures are logged and
// never touch conversation state.
type Player struct {
	synth  Synthesizer
	play   PlayFunc
	logger *slog.Logger

	mu        sync.Mutex
	playingID string
	gen       uint64
	cancel    context.CancelFunc
	done      chan struct{}
	onChange  func(playingID string)
}

func NewPlayer(synth Synthesizer, play PlayFunc, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{synth: synth, play: play, logger: logger}
}

// OnChange is called with the new playing id whenever it changes.
func (p *Player) OnChange(fn func(playingID string)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

func (p *Player) PlayingID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playingID
}

// Speak starts reading text for messageID in the background.
func (p *Player) Speak(ctx context.Context, messageID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p.mu.Lock()
	p.stopLocked()
	p.gen++
	gen := p.gen
	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.playingID = messageID
	p.cancel = cancel
	p.done = done
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(messageID)
	}

	go func() {
		defer close(done)
		defer cancel()
		err := p.run(playCtx, text)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("read aloud failed", "message", messageID, "error", err)
		}
		p.finish(gen)
	}()
}

// Toggle stops playback if messageID is playing, otherwise starts it.
func (p *Player) Toggle(ctx context.Context, messageID, text string) {
	if p.PlayingID() == messageID {
		p.Stop()
		return
	}
	p.Speak(ctx, messageID, text)
}

func (p *Player) Stop() {
	p.mu.Lock()
	wasPlaying := p.playingID != ""
	p.stopLocked()
	p.gen++
	fn := p.onChange
	p.mu.Unlock()
	if wasPlaying && fn != nil {
		fn("")
	}
}

// Wait blocks until the latest playback goroutine exits.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.playingID = ""
}

func (p *Player) run(ctx context.Context, text string) error {
	audio, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	defer audio.Close()
	if p.play == nil {
		_, err = io.Copy(io.Discard, audio)
		return err
	}
	return p.play(ctx, audio)
}

func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.playingID = ""
	p.cancel = nil
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn("")
	}
}

// SpeechClient calls the server's speech routes.
type SpeechClient struct {
	BaseURL string
	Client  *http.Client
}

func NewSpeechClient(baseURL string) *SpeechClient {
	return &SpeechClient{BaseURL: strings.TrimRight(baseURL, "/"), Client: http.DefaultClient}
}

func (s *SpeechClient) httpClient() *http.Client {
	if s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}

func (s *SpeechClient) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/speech/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return resp.Body, nil
}

// Transcribe uploads recorded audio and returns the recognized text.
func (s *SpeechClient) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/api/speech/transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", readStatusError(resp)
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return payload.Text, nil
}

func readStatusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)
	return &StatusError{Code: resp.StatusCode, Message: payload.Error}
}
