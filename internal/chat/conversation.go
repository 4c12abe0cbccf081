package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"streamchat/internal/models"
)

var (
	ErrEmptyInput     = errors.New("message is empty")
	ErrTurnInFlight   = errors.New("a response is still streaming")
	ErrNothingToRetry = errors.New("no user message to retry")
)

type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

type turn struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Conversation is one chat session's client state. Turns run in the
// background; every event is tagged with the generation of the turn that
// produced it and dropped once that turn has been stopped or replaced.
type Conversation struct {
	id        string
	transport Transport
	logger    *slog.Logger

	mu        sync.Mutex
	messages  []models.Message
	state     State
	err       error
	gen       uint64
	current   *turn
	listeners []func()
}

type Option func(*Conversation)

func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) { c.logger = l }
}

// WithID fixes the conversation id the server uses for its turn lock.
func WithID(id string) Option {
	return func(c *Conversation) { c.id = id }
}

func NewConversation(transport Transport, opts ...Option) *Conversation {
	c := &Conversation{
		id:        uuid.NewString(),
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conversation) ID() string {
	return c.id
}

// OnChange registers fn to run after every state or message change. fn is
// called without the conversation lock held.
func (c *Conversation) OnChange(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Conversation) notify() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// SendMessage appends the user message and starts an assistant turn. The
// message is in Messages() by the time SendMessage returns; the response
// streams in the background.
func (c *Conversation) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.messages = append(c.messages, models.Message{
		ID:    uuid.NewString(),
		Role:  models.RoleUser,
		Parts: []models.Part{models.TextPart(text)},
	})
	c.startLocked(ctx)
	c.mu.Unlock()
	c.notify()
	return nil
}

// Reload re-issues the last user message with the history it was first sent
// with. A partial assistant reply after it is replaced by the new turn.
func (c *Conversation) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	last := -1
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == models.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	c.messages = c.messages[:last+1]
	c.startLocked(ctx)
	c.mu.Unlock()
	c.notify()
	return nil
}

// Stop cancels the in-flight turn. Content received so far is kept.
func (c *Conversation) Stop() {
	c.mu.Lock()
	if !c.busyLocked() {
		c.mu.Unlock()
		return
	}
	c.current.cancel()
	c.gen++
	c.state = StateIdle
	c.mu.Unlock()
	c.notify()
}

// Wait blocks until the current turn's goroutine has exited or ctx is done.
func (c *Conversation) Wait(ctx context.Context) error {
	c.mu.Lock()
	t := c.current
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DismissError clears the error without retrying.
func (c *Conversation) DismissError() {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.err = nil
	c.mu.Unlock()
	c.notify()
}

// Messages returns a deep copy of the conversation.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messagesLocked()
}

// Snapshot is the conversation as seen at one instant.
type Snapshot struct {
	Messages []models.Message
	State    State
	Err      error
}

// Snapshot copies messages, state and error under a single lock.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Messages: c.messagesLocked(), State: c.state, Err: c.err}
}

func (c *Conversation) messagesLocked() []models.Message {
	out := make([]models.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

func (c *Conversation) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

func (c *Conversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conversation) busyLocked() bool {
	return c.state == StateSending || c.state == StateStreaming
}

func (c *Conversation) startLocked(ctx context.Context) {
	c.gen++
	c.state = StateSending
	c.err = nil
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{gen: c.gen, cancel: cancel, done: make(chan struct{})}
	c.current = t

	history := make([]models.Message, len(c.messages))
	for i, m := range c.messages {
		history[i] = m.Clone()
	}
	go c.run(turnCtx, t, Request{ConversationID: c.id, Messages: history})
}

func (c *Conversation) run(ctx context.Context, t *turn, req Request) {
	defer close(t.done)
	defer t.cancel()

	stream, err := c.transport.Stream(ctx, req)
	if err != nil {
		c.finish(t.gen, err)
		return
	}
	defer stream.Close()

	turnID := uuid.NewString()
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.finish(t.gen, nil)
			return
		}
		if err != nil {
			c.finish(t.gen, err)
			return
		}
		if !c.apply(t.gen, turnID, ev) {
			return
		}
	}
}

// apply reports false once the turn should stop reading.
func (c *Conversation) apply(gen uint64, turnID string, ev *models.Event) bool {
	c.mu.Lock()
	if gen != c.gen || !c.busyLocked() {
		c.mu.Unlock()
		return false
	}
	c.state = StateStreaming
	keepReading := true
	switch ev.Type {
	case models.EventError:
		c.state = StateError
		c.err = errors.New(ev.Error)
		keepReading = false
	case models.EventDone:
		c.state = StateIdle
		keepReading = false
	default:
		c.messages = Reduce(c.messages, turnID, ev)
	}
	c.mu.Unlock()
	c.notify()
	return keepReading
}

func (c *Conversation) finish(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.busyLocked() {
		c.mu.Unlock()
		return
	}
	switch {
	case err == nil, errors.Is(err, context.Canceled), IsClientClosed(err):
		c.state = StateIdle
	default:
		c.logger.Warn("chat turn failed", "conversation", c.id, "error", err)
		c.state = StateError
		c.err = err
	}
	c.mu.Unlock()
	c.notify()
}
