package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"streamchat/internal/config"
	"streamchat/internal/models"
	"streamchat/internal/provider"
	"streamchat/internal/worker"
)

// ErrClientClosed reports that the caller went away before the provider
// call started. No request was made.
var ErrClientClosed = errors.New("client closed request")

// Runner schedules the background pump of a stream.
type Runner interface {
	Submit(key string, fn func()) error
}

// closingRunner is a Runner that may drop queued jobs when it shuts down.
type closingRunner interface {
	Done() <-chan struct{}
}

func runnerDone(r Runner) <-chan struct{} {
	if cr, ok := r.(closingRunner); ok {
		return cr.Done()
	}
	return nil
}

type goRunner struct{}

func (goRunner) Submit(_ string, fn func()) error {
	go fn()
	return nil
}

type Options struct {
	SystemPrompt  string
	MaxIterations int
	Tools         []tool.InvokableTool
	Runner        Runner
	Logger        *slog.Logger
}

// Service turns a conversation history into a stream of typed events by
// driving a provider chat model through a bounded tool-calling loop.
type Service struct {
	systemPrompt  string
	maxIterations int
	tools         map[string]tool.InvokableTool
	toolInfos     []*schema.ToolInfo
	runner        Runner
	logger        *slog.Logger
}

func NewService(ctx context.Context, opts Options) (*Service, error) {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = config.DefaultSystemPrompt
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = config.DefaultMaxIterations
	}
	if opts.Runner == nil {
		opts.Runner = goRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Service{
		systemPrompt:  opts.SystemPrompt,
		maxIterations: opts.MaxIterations,
		tools:         make(map[string]tool.InvokableTool, len(opts.Tools)),
		runner:        opts.Runner,
		logger:        opts.Logger,
	}
	for _, t := range opts.Tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		if _, dup := s.tools[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", info.Name)
		}
		s.tools[info.Name] = t
		s.toolInfos = append(s.toolInfos, info)
	}
	return s, nil
}

// MaxIterations reports the configured agent-loop bound.
func (s *Service) MaxIterations() int {
	return s.maxIterations
}

// StreamRequest is one assistant turn.
type StreamRequest struct {
	ConversationID string
	Messages       []models.Message
}

// Stream issues the chat call and returns a lazy, finite event sequence.
// The provider request is opened by the pump once the runner starts it;
// Stream waits for that so a failed first call is still returned here,
// before any event is produced. Cancelling ctx aborts the provider request,
// or the queued turn, and ends the sequence without further events. The
// caller must Close the reader.
func (s *Service) Stream(ctx context.Context, backend provider.Backend, req StreamRequest) (*schema.StreamReader[*models.Event], error) {
	if ctx.Err() != nil {
		return nil, ErrClientClosed
	}
	cm, err := backend.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	if len(s.toolInfos) > 0 {
		cm, err = cm.WithTools(s.toolInfos)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	input := make([]*schema.Message, 0, len(req.Messages)+1)
	input = append(input, schema.SystemMessage(s.systemPrompt))
	input = append(input, ToSchemaMessages(req.Messages)...)

	ctx = WithConversation(ctx, req.ConversationID)
	sr, sw := schema.Pipe[*models.Event](16)
	turn := &turn{
		service:   s,
		model:     cm,
		input:     input,
		messageID: uuid.NewString(),
		writer:    sw,
		logger:    s.logger.With("conversation", req.ConversationID, "provider", backend.Kind(), "model", backend.Model()),
	}
	started := make(chan error, 1)
	if err := s.runner.Submit(req.ConversationID, func() { turn.run(ctx, started) }); err != nil {
		turn.closeWriter()
		sr.Close()
		return nil, err
	}

	select {
	case err := <-started:
		if err != nil {
			sr.Close()
			return nil, err
		}
		return sr, nil
	case <-ctx.Done():
		// the pump sees ctx and exits without calling the provider
		sr.Close()
		return nil, ErrClientClosed
	case <-runnerDone(s.runner):
		sr.Close()
		return nil, worker.ErrDispatcherClosed
	}
}

type turn struct {
	service   *Service
	model     model.ToolCallingChatModel
	input     []*schema.Message
	messageID string
	logger    *slog.Logger

	mu     sync.Mutex
	writer *schema.StreamWriter[*models.Event]
	closed bool
}

// emit reports false once the consumer is gone or ctx is done.
func (t *turn) emit(ctx context.Context, ev *models.Event) bool {
	if ctx.Err() != nil {
		return false
	}
	ev.MessageID = t.messageID
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	return !t.writer.Send(ev, nil)
}

func (t *turn) closeWriter() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.writer.Close()
	}
}

func (t *turn) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	t.logger.Error("chat stream failed", "error", err)
	t.emit(ctx, &models.Event{Type: models.EventError, Error: err.Error()})
}

func (t *turn) run(ctx context.Context, started chan<- error) {
	defer t.closeWriter()
	if ctx.Err() != nil {
		started <- ErrClientClosed
		return
	}
	// the consumer unblocks on cancel even if the provider ignores ctx
	stop := context.AfterFunc(ctx, t.closeWriter)
	defer stop()

	reader, err := t.model.Stream(ctx, t.input)
	if err != nil {
		if ctx.Err() != nil {
			started <- ErrClientClosed
			return
		}
		started <- fmt.Errorf("generate ai stream failed: %w", err)
		return
	}
	started <- nil

	for round := 0; ; round++ {
		if round > 0 {
			reader, err = t.model.Stream(ctx, t.input)
			if err != nil {
				t.fail(ctx, fmt.Errorf("generate ai stream failed: %w", err))
				return
			}
		}
		full, ok := t.drain(ctx, reader)
		if !ok {
			return
		}
		if full == nil || len(full.ToolCalls) == 0 {
			t.emit(ctx, &models.Event{Type: models.EventDone, FinishReason: models.FinishStop})
			return
		}
		if round >= t.service.maxIterations {
			t.logger.Warn("agent loop reached max iterations", "max", t.service.maxIterations)
			t.emit(ctx, &models.Event{Type: models.EventDone, FinishReason: models.FinishMaxIterations})
			return
		}
		if !t.runTools(ctx, full) {
			return
		}
	}
}

// drain forwards text deltas and returns the concatenated model message.
func (t *turn) drain(ctx context.Context, reader *schema.StreamReader[*schema.Message]) (*schema.Message, bool) {
	defer reader.Close()
	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.fail(ctx, err)
			return nil, false
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			if !t.emit(ctx, &models.Event{Type: models.EventTextDelta, Delta: chunk.Content}) {
				return nil, false
			}
		}
	}
	if len(chunks) == 0 {
		return nil, true
	}
	full, err := schema.ConcatMessages(chunks)
	if err != nil {
		t.fail(ctx, fmt.Errorf("concat stream chunks: %w", err))
		return nil, false
	}
	return full, true
}

func (t *turn) runTools(ctx context.Context, full *schema.Message) bool {
	calls := make([]schema.ToolCall, len(full.ToolCalls))
	copy(calls, full.ToolCalls)
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.NewString()
		}
		if calls[i].Type == "" {
			calls[i].Type = "function"
		}
	}
	t.input = append(t.input, schema.AssistantMessage(full.Content, calls))

	for _, call := range calls {
		if !t.emit(ctx, &models.Event{
			Type: models.EventToolCallStart,
			ToolCall: &models.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}) {
			return false
		}
		output := t.service.invokeTool(ctx, call)
		if ctx.Err() != nil {
			return false
		}
		if !t.emit(ctx, &models.Event{
			Type: models.EventToolCallResult,
			ToolCall: &models.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
				Output:    output,
			},
		}) {
			return false
		}
		t.input = append(t.input, schema.ToolMessage(string(output), call.ID))
	}
	return true
}

// invokeTool never fails the turn: errors become a JSON error output the
// model can react to.
func (s *Service) invokeTool(ctx context.Context, call schema.ToolCall) json.RawMessage {
	impl, ok := s.tools[call.Function.Name]
	if !ok {
		return errorOutput(fmt.Errorf("unknown tool %q", call.Function.Name))
	}
	args := strings.TrimSpace(call.Function.Arguments)
	if args == "" {
		args = "{}"
	}
	out, err := impl.InvokableRun(ctx, args)
	if err != nil {
		s.logger.Warn("tool call failed", "tool", call.Function.Name, "error", err)
		return errorOutput(err)
	}
	return toRawJSON(out)
}

func errorOutput(err error) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return data
}

func toRawJSON(out string) json.RawMessage {
	trimmed := strings.TrimSpace(out)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	data, _ := json.Marshal(out)
	return data
}

// ToSchemaMessages converts wire messages into eino messages. Tool-call
// parts become an assistant tool call followed by its tool result.
func ToSchemaMessages(msgs []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			if text := m.Text(); text != "" {
				out = append(out, schema.UserMessage(text))
			}
		case models.RoleAssistant:
			out = append(out, assistantToSchema(m)...)
		}
	}
	return out
}

func assistantToSchema(m models.Message) []*schema.Message {
	var (
		out     []*schema.Message
		text    strings.Builder
		calls   []schema.ToolCall
		results []*schema.Message
	)
	flush := func() {
		if text.Len() == 0 && len(calls) == 0 {
			return
		}
		out = append(out, schema.AssistantMessage(text.String(), calls))
		out = append(out, results...)
		text.Reset()
		calls, results = nil, nil
	}
	for _, p := range m.Parts {
		switch p.Type {
		case models.PartText:
			if len(calls) > 0 {
				flush()
			}
			text.WriteString(p.Content)
		case models.PartToolCall:
			args := p.Arguments
			if args == "" {
				args = "{}"
			}
			calls = append(calls, schema.ToolCall{
				ID:       p.ID,
				Type:     "function",
				Function: schema.FunctionCall{Name: p.Name, Arguments: args},
			})
			results = append(results, schema.ToolMessage(string(p.Output), p.ID))
		}
	}
	flush()
	return out
}
