package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"streamchat/internal/models"
	"streamchat/internal/provider"
	"streamchat/internal/redis"
	"streamchat/internal/service/ai"
	"streamchat/internal/service/catalog"
	"streamchat/internal/service/speech"
	"streamchat/internal/worker"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// abandoned before a response was produced.
const StatusClientClosedRequest = 499

const (
	maxUploadBytes    = 25 << 20
	chatFailedMessage = "Failed to process chat request"
)

type ChatStreamer interface {
	Stream(ctx context.Context, backend provider.Backend, req ai.StreamRequest) (*schema.StreamReader[*models.Event], error)
}

type TurnLocker interface {
	AcquireTurn(ctx context.Context, conversationID string, ttl time.Duration) (func(), error)
}

type SpeechService interface {
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error)
	Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error)
}

// Options wires the handler. Turns and Speech are optional.
type Options struct {
	Chat    ChatStreamer
	Backend func() provider.Backend
	Catalog ai.Catalog
	Turns   TurnLocker
	TurnTTL time.Duration
	Speech  SpeechService
	Logger  *slog.Logger
}

// Handler wires HTTP routes to the chat pipeline and its side services.
type Handler struct {
	chat    ChatStreamer
	backend func() provider.Backend
	catalog ai.Catalog
	turns   TurnLocker
	turnTTL time.Duration
	speech  SpeechService
	logger  *slog.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Backend == nil {
		opts.Backend = func() provider.Backend {
			return provider.Resolve(provider.FromEnv(), nil, os.LookupEnv)
		}
	}
	if opts.TurnTTL <= 0 {
		opts.TurnTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		chat:    opts.Chat,
		backend: opts.Backend,
		catalog: opts.Catalog,
		turns:   opts.Turns,
		turnTTL: opts.TurnTTL,
		speech:  opts.Speech,
		logger:  opts.Logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	api := router.Group("/api")
	api.POST("/chat", h.streamChat)
	api.GET("/guitars", h.listGuitars)
	api.GET("/guitars/:id", h.getGuitar)
	api.POST("/speech/transcribe", h.transcribe)
	api.POST("/speech/synthesize", h.synthesize)
}

func (h *Handler) health(c *gin.Context) {
	backend := h.backend()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"provider": backend.Kind(),
		"model":    backend.Model(),
	})
}

type chatRequest struct {
	Messages       []models.Message `json:"messages"`
	ConversationID string           `json:"conversation_id"`
}

func validateMessages(msgs []models.Message) error {
	if len(msgs) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, m := range msgs {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
		for j, p := range m.Parts {
			if p.Type != models.PartText && p.Type != models.PartToolCall {
				return fmt.Errorf("messages[%d].parts[%d]: unknown part type %q", i, j, p.Type)
			}
		}
	}
	return nil
}

func (h *Handler) streamChat(c *gin.Context) {
	ctx := c.Request.Context()
	if ctx.Err() != nil {
		c.AbortWithStatus(StatusClientClosedRequest)
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if ctx.Err() != nil {
			c.AbortWithStatus(StatusClientClosedRequest)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.turns != nil && req.ConversationID != "" {
		release, err := h.turns.AcquireTurn(ctx, req.ConversationID, h.turnTTL)
		switch {
		case errors.Is(err, redis.ErrTurnInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "a response is already streaming for this conversation"})
			return
		case err != nil:
			h.logger.Warn("turn lock unavailable, continuing without it", "conversation", req.ConversationID, "error", err)
		default:
			defer release()
		}
	}

	backend := h.backend()
	sr, err := h.chat.Stream(ctx, backend, ai.StreamRequest{
		ConversationID: req.ConversationID,
		Messages:       req.Messages,
	})
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrClientClosed):
			c.AbortWithStatus(StatusClientClosedRequest)
		case errors.Is(err, worker.ErrDispatcherBusy), errors.Is(err, worker.ErrDispatcherClosed):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		default:
			h.logger.Error("chat request failed", "provider", backend.Kind(), "model", backend.Model(), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": chatFailedMessage})
		}
		return
	}
	defer sr.Close()

	// SSE response construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for {
		ev, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				_ = sendEvent(string(models.EventError), models.Event{Type: models.EventError, Error: err.Error()})
			}
			return
		}
		if err := sendEvent(string(ev.Type), ev); err != nil {
			h.logger.Debug("client went away mid-stream", "error", err)
			return
		}
	}
}

func (h *Handler) listGuitars(c *gin.Context) {
	guitars, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list guitars failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list guitars failed"})
		return
	}
	c.JSON(http.StatusOK, guitars)
}

func (h *Handler) getGuitar(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid guitar id"})
		return
	}
	guitar, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "guitar not found"})
			return
		}
		h.logger.Error("get guitar failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get guitar failed"})
		return
	}
	c.JSON(http.StatusOK, guitar)
}

func (h *Handler) transcribe(c *gin.Context) {
	if h.speech == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech is not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer f.Close()

	text, err := h.speech.Transcribe(c.Request.Context(), f, file.Filename, file.Header.Get("Content-Type"))
	if err != nil {
		h.logger.Error("transcription failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "transcription failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (h *Handler) synthesize(c *gin.Context) {
	if h.speech == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech is not configured"})
		return
	}
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	audio, err := h.speech.Synthesize(c.Request.Context(), req.Text, req.Voice)
	if err != nil {
		if errors.Is(err, speech.ErrEmptyText) || errors.Is(err, speech.ErrTextTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("speech synthesis failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "speech synthesis failed"})
		return
	}
	defer audio.Close()
	c.Header("Content-Type", "audio/mpeg")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, audio); err != nil {
		h.logger.Debug("audio copy interrupted", "error", err)
	}
}
