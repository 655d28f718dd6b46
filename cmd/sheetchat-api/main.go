package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sheetchat/sheetchat/internal/analysis"
	"github.com/sheetchat/sheetchat/internal/api"
	catalogmemory "github.com/sheetchat/sheetchat/internal/catalog/memory"
	"github.com/sheetchat/sheetchat/internal/chat"
	chatmemory "github.com/sheetchat/sheetchat/internal/chat/memory"
	"github.com/sheetchat/sheetchat/internal/config"
	"github.com/sheetchat/sheetchat/internal/observability"
	duckdbengine "github.com/sheetchat/sheetchat/internal/query/duckdb"
	"github.com/sheetchat/sheetchat/internal/storage"
	s3store "github.com/sheetchat/sheetchat/internal/storage/s3"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("sheetchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if cfg.AI.APIKey == config.PlaceholderAPIKey {
		logger.Warn("no model API key configured; chat replies and suggestions will use fallbacks")
	}

	model, err := analysis.NewOpenAIModel(analysis.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}
	normalizer := analysis.NewNormalizer(model, analysis.NormalizerConfig{
		Temperature:   cfg.AI.Temperature,
		MaxTokens:     cfg.AI.MaxTokens,
		HistoryWindow: cfg.AI.HistoryWindow,
	}, logger)
	suggester := analysis.NewSuggester(model, analysis.SuggesterConfig{
		Temperature: cfg.AI.SuggestTemperature,
		MaxTokens:   cfg.AI.SuggestMaxTokens,
	}, logger)

	files := catalogmemory.NewSeededFileStore()
	sessions := chatmemory.NewSessionStore()
	chatService := chat.NewService(sessions, files, normalizer, logger, chat.WithHistoryWindow(cfg.AI.HistoryWindow))

	deps := api.Dependencies{
		Logger:    logger,
		Files:     files,
		Sessions:  sessions,
		Chat:      chatService,
		Suggester: suggester,
	}
	if cfg.Query.Enabled {
		deps.QueryEngine = duckdbengine.NewEngine()
	}
	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize upload archive", slog.Any("error", err))
			os.Exit(1)
		}
		archive, err := storage.NewUploadArchive(objectStore)
		if err != nil {
			logger.Error("failed to initialize upload archive", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archive = archive
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", model.Name()),
			slog.Bool("query_enabled", cfg.Query.Enabled),
			slog.Bool("archive_enabled", cfg.Archive.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
