package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dealhound/dealhound/internal/api/router"
	"github.com/dealhound/dealhound/internal/assistant"
	"github.com/dealhound/dealhound/internal/cache"
	appconfig "github.com/dealhound/dealhound/internal/config"
	"github.com/dealhound/dealhound/internal/http/handlers"
	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/internal/observability/metrics"
	"github.com/dealhound/dealhound/internal/tools"
	"github.com/dealhound/dealhound/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dealhound API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, running on in-memory fallbacks", "error", err)
		}
	} else {
		logger.Warn("REDIS_ADDR not set, running on in-memory fallbacks")
	}

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	gateway, err := llm.NewGateway(llm.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Timeout: cfg.LLMTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize LLM gateway", "error", err)
		os.Exit(1)
	}

	respCache := cache.New(rdb, cache.Config{
		ExactTTL: cfg.ExactCacheTTL,
		ToolTTL:  cfg.ToolCacheTTL,
	}, logger)
	limiter := cache.NewLimiter(rdb, cache.Limits{
		GuestPerMinute: cfg.GuestPerMinute,
		GuestPerDay:    cfg.GuestPerDay,
		AuthPerMinute:  cfg.AuthPerMinute,
		AuthPerDay:     cfg.AuthPerDay,
	}, logger)

	store := tools.NewPostgresStore(db)
	registry := tools.NewRegistry(store, respCache, cfg.MaxToolResults, logger)

	chatMetrics := metrics.NewChatMetrics(nil)
	classifier := assistant.NewClassifier(gateway, cfg.SimpleModel, cfg.ClassifierMaxTokens, logger)
	orchestrator := assistant.NewOrchestrator(
		gateway, classifier, registry, respCache, limiter, chatMetrics,
		assistant.Options{
			SimpleModel:      cfg.SimpleModel,
			ComplexModel:     cfg.ComplexModel,
			SimpleMaxTokens:  cfg.SimpleMaxTokens,
			ComplexMaxTokens: cfg.ComplexMaxTokens,
			MaxInputLength:   cfg.MaxInputLength,
			MaxHistoryTurns:  cfg.MaxHistoryTurns,
			CachingEnabled:   cfg.CachingEnabled,
			AIEnabled:        cfg.AIEnabled,
		}, logger)

	historyStore := assistant.NewHistoryStore(rdb, nil)
	feedbackStore := assistant.NewFeedbackStore(rdb, logger)

	var chatLog *logging.ChatLogger
	if cfg.ChatLogEnabled && cfg.ChatLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.ChatLogPath), 0o755); err == nil {
			f, err := os.OpenFile(cfg.ChatLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err == nil {
				defer f.Close()
				chatLog = logging.NewChatLogger(f)
			} else {
				logger.Warn("chat log disabled", "error", err)
			}
		}
	}

	chatHandler := handlers.NewChatHandler(
		orchestrator, historyStore, feedbackStore, gateway, respCache,
		chatLog, cfg.SimpleModel, cfg.StreamingEnabled, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: splitOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
		EdgeRatePerSecond:  cfg.EdgeRatePerSecond,
		EdgeBurst:          cfg.EdgeBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // streaming turns hold the connection open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
