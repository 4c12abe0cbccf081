package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"streamchat/internal/models"
)

// maxFrameSize bounds a single SSE line.
const maxFrameSize = 1 << 20

// Request is the body posted to the chat route.
type Request struct {
	Messages       []models.Message `json:"messages"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

// EventStream yields events until io.EOF.
type EventStream interface {
	Recv() (*models.Event, error)
	Close() error
}

// Transport starts one assistant turn. Cancelling ctx must abort the request.
type Transport interface {
	Stream(ctx context.Context, req Request) (EventStream, error)
}

// StatusError is a non-200 answer from the chat route.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat request failed: %s", http.StatusText(e.Code))
	}
	return e.Message
}

// HTTPTransport talks to the server's POST /api/chat route.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{BaseURL: strings.TrimRight(baseURL, "/"), Client: http.DefaultClient}
}

func (t *HTTPTransport) Stream(ctx context.Context, req Request) (EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return newSSEStream(resp.Body), nil
}

// sseStream decodes event frames written as "event: <type>\ndata: <json>\n\n".
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &sseStream{body: body, scanner: scanner}
}

func (s *sseStream) Recv() (*models.Event, error) {
	eventType, data, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}
	if ev.Type == "" {
		ev.Type = models.EventType(eventType)
	}
	return &ev, nil
}

func (s *sseStream) readFrame() (string, []byte, error) {
	var (
		eventType string
		dataLines [][]byte
	)
	for s.scanner.Scan() {
		line := bytes.TrimRight(s.scanner.Bytes(), "\r")
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			eventType = ""
			continue
		}
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			dataLines = append(dataLines, append([]byte(nil), data...))
		}
		// id:, retry: and comments are ignored
	}
	if err := s.scanner.Err(); err != nil {
		return "", nil, err
	}
	if len(dataLines) > 0 {
		return eventType, bytes.Join(dataLines, []byte("\n")), nil
	}
	return "", nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

// IsClientClosed reports whether err is the server's 499 answer.
func IsClientClosed(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 499
}
