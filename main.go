package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/room4-2/voicerelay/config"
	"github.com/room4-2/voicerelay/gemini"
	"github.com/room4-2/voicerelay/logging"
	"github.com/room4-2/voicerelay/server"
	"github.com/room4-2/voicerelay/session"
	"github.com/room4-2/voicerelay/transcribe"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	generator, err := gemini.NewClient(ctx, gemini.Options{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	}, logging.Component(logger, "gemini"))
	if err != nil {
		logger.WithError(err).Fatal("failed to create gemini client")
	}

	transcriber := transcribe.NewWhisper(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logging.Component(logger, "whisper"))

	registry := session.NewRegistry(cfg, logging.Component(logger, "registry"))
	relay := session.NewRelay(registry, generator, cfg.GeminiTimeout, logging.Component(logger, "relay"))
	srv := server.New(cfg, registry, relay, transcriber, logging.Component(logger, "server"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		registry.StartPresenceRoutine(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Fatal("server error")
	}
	logger.Info("server stopped")
}
