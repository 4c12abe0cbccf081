package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"streamchat/internal/chat"
	"streamchat/internal/models"
)

type app struct {
	conv   *chat.Conversation
	speech *chat.SpeechClient
	player *chat.Player
	logger *slog.Logger

	mu      sync.Mutex
	out     io.Writer
	printed map[string]int
}

func newApp(server, speakTo string, level slog.Level) *app {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	a := &app{
		conv:    chat.NewConversation(chat.NewHTTPTransport(server), chat.WithLogger(logger)),
		speech:  chat.NewSpeechClient(server),
		logger:  logger,
		printed: make(map[string]int),
	}
	if speakTo != "" {
		a.player = chat.NewPlayer(a.speech, saveAudio(speakTo), logger)
	}
	return a
}

// saveAudio plays by writing each reply to <dir>/reply-<n>.mp3.
func saveAudio(dir string) chat.PlayFunc {
	var (
		mu sync.Mutex
		n  int
	)
	return func(ctx context.Context, audio io.Reader) error {
		mu.Lock()
		n++
		name := filepath.Join(dir, fmt.Sprintf("reply-%d.mp3", n))
		mu.Unlock()
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(f, audio)
		return err
	}
}

func (a *app) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.out = out
	a.conv.OnChange(a.printDeltas)

	fmt.Fprintln(out, "Try one of:")
	for _, s := range chat.Suggestions {
		fmt.Fprintf(out, "  - %s\n", s)
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/retry":
			if err := a.conv.Reload(ctx); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
		case strings.HasPrefix(line, "/transcribe "):
			text, err := a.transcribe(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/transcribe ")))
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "(heard) %s\n", text)
			if err := a.conv.SendMessage(ctx, text); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
		default:
			if err := a.conv.SendMessage(ctx, line); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
		}
		a.waitTurn(ctx)
	}
}

// waitTurn blocks until the assistant finishes. Ctrl+C stops the reply
// instead of exiting.
func (a *app) waitTurn(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if err := a.conv.Wait(sigCtx); err != nil {
		a.conv.Stop()
		fmt.Fprintln(a.out, "\n[stopped]")
	}

	a.mu.Lock()
	fmt.Fprintln(a.out)
	a.mu.Unlock()

	if err := a.conv.Err(); err != nil {
		fmt.Fprintf(a.out, "error: %v (type /retry to try again)\n", err)
		a.conv.DismissError()
		return
	}
	a.renderCards()
	a.speak(ctx)
}

func (a *app) transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	text, err := a.speech.Transcribe(ctx, f, filepath.Base(path))
	if err != nil {
		return "", err
	}
	return chat.AppendTranscript("", text), nil
}

// printDeltas writes whatever assistant text arrived since the last change.
func (a *app) printDeltas() {
	msgs := a.conv.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleAssistant {
		return
	}
	text := last.Text()

	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.printed[last.ID]
	if len(text) > n {
		fmt.Fprint(a.out, text[n:])
		a.printed[last.ID] = len(text)
	}
}

func (a *app) renderCards() {
	view := chat.Render(a.conv, "")
	if len(view.Messages) == 0 {
		return
	}
	last := view.Messages[len(view.Messages)-1]
	for _, item := range last.Items {
		if item.Kind == chat.ItemRecommendation {
			fmt.Fprintf(a.out, "[recommended guitar #%s]\n", item.GuitarID)
		}
	}
}

func (a *app) speak(ctx context.Context) {
	if a.player == nil {
		return
	}
	view := chat.Render(a.conv, a.player.PlayingID())
	if len(view.Messages) == 0 {
		return
	}
	last := view.Messages[len(view.Messages)-1]
	if last.Role != models.RoleAssistant || last.ReadAloud == "" {
		return
	}
	a.player.Speak(ctx, last.ID, last.ReadAloud)
	a.player.Wait()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
