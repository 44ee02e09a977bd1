package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/yuchenx/docpilot/internal/config"
	"github.com/yuchenx/docpilot/internal/handler"
	"github.com/yuchenx/docpilot/internal/ingest"
	"github.com/yuchenx/docpilot/internal/service/agent"
	"github.com/yuchenx/docpilot/internal/service/ai"
	"github.com/yuchenx/docpilot/internal/service/session"
	"github.com/yuchenx/docpilot/internal/service/sweeper"
	"github.com/yuchenx/docpilot/internal/storage"
	"github.com/yuchenx/docpilot/internal/tool"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Err(err).Msg("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	blobs, err := storage.NewDiskBlobs(cfg.Files.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Files.UploadDir).Msg("failed to prepare upload directory")
	}

	registry := session.NewRegistry()
	ingestor := ingest.New(blobs, cfg.Files.MaxUploadBytes)

	// The AI service backs vision extraction and the optional LLM classifier.
	// Without credentials the service still runs; image queries then fail
	// with a credential error instead of the process refusing to start.
	var aiSvc *ai.Service
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("AI service unavailable, continuing without vision support")
			aiSvc = nil
		} else {
			logger.Info().Str("model", cfg.AI.Model).Msg("AI service initialized")
		}
	} else {
		logger.Info().Msg("Ark credentials not configured, vision support disabled")
	}

	var vision tool.Extractor
	var classifier agent.Classifier
	if aiSvc != nil {
		vision = aiSvc
		if cfg.Router.LLMClassifier {
			classifier = aiSvc
			logger.Info().Msg("LLM tool classifier enabled")
		}
	}

	tools := []tool.Tool{
		tool.NewArithmetic(),
		tool.NewTabular(),
		tool.NewImageText(blobs, vision),
	}

	agentRouter := agent.NewRouter(registry, ingestor, blobs, tools, classifier, logger)

	sw := sweeper.New(registry, blobs, cfg.Files.SessionTTL, cfg.Files.SweepInterval, logger)
	go sw.Run(ctx)

	router := handler.NewRouter(agentRouter, cfg.Files.MaxUploadBytes, logger)
	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", serverCfg.Addr).Msg("docpilot backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
