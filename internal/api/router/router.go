// Package router wires the chat API routes and shared middleware.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dealhound/dealhound/internal/http/handlers"
	httpmiddleware "github.com/dealhound/dealhound/internal/http/middleware"
	"github.com/dealhound/dealhound/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Edge token-bucket limiter, per IP, in front of the product quota.
	EdgeRatePerSecond float64
	EdgeBurst         int
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/api/chat/health", cfg.ChatHandler.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Group(func(chat chi.Router) {
		if cfg.EdgeRatePerSecond > 0 {
			chat.Use(httpmiddleware.EdgeRateLimit(cfg.EdgeRatePerSecond, cfg.EdgeBurst))
		}
		chat.Post("/api/chat", cfg.ChatHandler.Chat)
		chat.Post("/api/chat/stream", cfg.ChatHandler.ChatStream)
		chat.Post("/api/chat/feedback", cfg.ChatHandler.Feedback)
	})

	return r
}
