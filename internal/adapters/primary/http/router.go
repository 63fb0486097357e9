package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/lorrc/coaching-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/coaching-realtime/internal/adapters/primary/sse"
	"github.com/lorrc/coaching-realtime/internal/auth"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/metrics"
)

// RouterConfig collects what the HTTP surface is built from. Limiters and
// Metrics may be nil.
type RouterConfig struct {
	Gateway          ports.RealtimeGateway
	Webhooks         ports.WebhookService
	Tokens           *auth.TokenManager
	DB               HealthChecker
	Connections      ConnectionCounter
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
	Stream           sse.Config
	WebSocket        WebSocketConfig
	CORSOrigins      []string
	RateLimiter      *mw.RateLimiter
	BroadcastLimiter *mw.RateLimiter
	Version          string
}

// NewRouter builds the chi router for the realtime service.
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	errorHandler := NewErrorHandler(logger)

	healthHandler := NewHealthHandler(cfg.DB, cfg.Connections, cfg.Version)
	presenceHandler := NewPresenceHandler(cfg.Gateway, errorHandler, logger)
	eventsHandler := NewEventsHandler(cfg.Gateway, errorHandler, logger)
	broadcastHandler := NewBroadcastHandler(cfg.Gateway, errorHandler, logger)
	webhookHandler := NewWebhookHandler(cfg.Webhooks, errorHandler, logger)
	streamHandler := NewStreamHandler(cfg.Gateway, cfg.Stream, errorHandler, logger)
	wsHandler := NewWebSocketHandler(cfg.Gateway, cfg.WebSocket, logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger, cfg.Metrics))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(corsHandler(cfg.CORSOrigins))

	// Health check endpoints (outside /api/v1 for standard probe paths)
	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := mw.JWTMiddleware(cfg.Tokens)
	requireAdmin := mw.RequireRole(auth.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		// Push channels; EventSource and browser websockets cannot set headers.
		r.Group(func(r chi.Router) {
			r.Use(mw.StreamJWTMiddleware(cfg.Tokens))
			r.Get("/stream", streamHandler.ServeHTTP)
			r.Get("/ws", wsHandler.ServeHTTP)
		})

		webhookHandler.RegisterRoutes(r, requireAuth, requireAdmin)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			presenceHandler.RegisterRoutes(r)
			eventsHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				if cfg.BroadcastLimiter != nil {
					r.Use(cfg.BroadcastLimiter.Middleware)
				}
				broadcastHandler.RegisterRoutes(r)
			})
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders: []string{mw.RequestIDHeader},
		MaxAge:         300,
	})
}
