package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"streamchat/internal/api"
	"streamchat/internal/config"
	"streamchat/internal/provider"
	"streamchat/internal/redis"
	"streamchat/internal/service/ai"
	"streamchat/internal/service/catalog"
	"streamchat/internal/service/speech"
	"streamchat/internal/storage"
	"streamchat/internal/worker"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(os.Getenv("STREAMCHAT_LOG_LEVEL"))}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load(os.Getenv("STREAMCHAT_CONFIG"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := os.Getenv("STREAMCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logger.Info("opening database", "driver", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return err
	}
	if err := storage.Seed(ctx, db); err != nil {
		return err
	}
	guitars := catalog.NewService(db)

	var turns api.TurnLocker
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		turns = rdb
	}

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})
	defer dispatcher.Close()

	tools, err := ai.InitToolsChain(ctx, guitars, cfg.Tools.WebSearch)
	if err != nil {
		return err
	}
	chat, err := ai.NewService(ctx, ai.Options{
		SystemPrompt:  cfg.Chat.SystemPrompt,
		MaxIterations: cfg.Chat.MaxIterations,
		Tools:         tools,
		Runner:        dispatcher,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	var voice api.SpeechService
	if key := os.Getenv(provider.EnvOpenAIKey); key != "" {
		svc, err := speech.NewService(key, cfg.Speech)
		if err != nil {
			return err
		}
		voice = svc
	} else {
		logger.Info("speech routes disabled", "reason", provider.EnvOpenAIKey+" not set")
	}

	choice := provider.FromEnv()
	logger.Info("chat provider", "provider", choice.Provider, "model", choice.Model)

	handlers := api.NewHandler(api.Options{
		Chat: chat,
		Backend: func() provider.Backend {
			return provider.Resolve(provider.FromEnv(), cfg, os.LookupEnv)
		},
		Catalog: guitars,
		Turns:   turns,
		TurnTTL: time.Duration(cfg.Redis.TurnTTL) * time.Second,
		Speech:  voice,
		Logger:  logger,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.BasicConfig.ServerAddress,
		Handler: router,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// open streams must finish before the dispatcher drops queued turns
	return srv.Shutdown(shutdownCtx)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
