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

	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/lorrc/coaching-realtime/internal/adapters/primary/http"
	mw "github.com/lorrc/coaching-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/coaching-realtime/internal/adapters/primary/sse"
	wsAdapter "github.com/lorrc/coaching-realtime/internal/adapters/primary/websocket"
	"github.com/lorrc/coaching-realtime/internal/adapters/secondary/memory"
	"github.com/lorrc/coaching-realtime/internal/adapters/secondary/postgres"
	"github.com/lorrc/coaching-realtime/internal/adapters/secondary/webhookhttp"
	"github.com/lorrc/coaching-realtime/internal/auth"
	"github.com/lorrc/coaching-realtime/internal/config"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/core/services"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/logging"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	m := metrics.NewMetrics()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Webhook endpoint store: Postgres when configured, memory otherwise
	var (
		repo ports.WebhookEndpointRepository
		db   httpAdapter.HealthChecker
		pool *pgxpool.Pool
	)
	if cfg.UsesDatabase() {
		pool, err = openPool(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connection established")

		if err := postgres.RunMigrations(cfg.Database.MigrationsPath, cfg.Database.URL); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		repo = postgres.NewWebhookEndpointRepository(pool)
		db = pool
	} else {
		logger.Warn("DATABASE_URL not set, webhook endpoints are kept in memory")
		repo = memory.NewWebhookEndpointRepository()
	}

	// 4. Webhook delivery
	sender := webhookhttp.NewSender(&http.Client{}, cfg.App.Name+"/"+cfg.App.Version, logger)
	dispatcher := services.NewWebhookDispatcher(repo, sender, services.WebhookConfig{
		Timeout:     cfg.Webhook.Timeout,
		MaxFailures: cfg.Webhook.MaxFailures,
		BackoffUnit: cfg.Webhook.BackoffUnit,
		Source:      cfg.Webhook.Source,
	}, m, logger)
	if err := dispatcher.Load(ctx); err != nil {
		logger.Error("failed to load webhook endpoints", "error", err)
		os.Exit(1)
	}

	// 5. Realtime core
	presence := services.NewPresenceTracker(services.PresenceConfig{
		OnlineTTL:     cfg.Presence.OnlineTTL,
		StaleTTL:      cfg.Presence.StaleTTL,
		SweepInterval: cfg.Presence.SweepInterval,
	}, m, logger)
	typing := services.NewTypingTracker(cfg.Presence.TypingDuration, m, logger)
	registry := services.NewConnectionRegistry(presence, typing, m, logger)
	gateway := services.NewGateway(registry, presence, typing, dispatcher, services.GatewayConfig{
		TypingDuration: cfg.Presence.TypingDuration,
		WebhookSource:  cfg.Webhook.Source,
	}, logger)
	go gateway.Run(ctx)

	// 6. Security
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	var generalRateLimiter, broadcastRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		broadcastRateLimiter = mw.NewUserRateLimiter(mw.BroadcastRateLimiterConfig(
			cfg.RateLimit.BroadcastRPS,
			cfg.RateLimit.BroadcastBurst,
		))
	}

	// 7. Router
	r := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Gateway:     gateway,
		Webhooks:    dispatcher,
		Tokens:      tokenManager,
		DB:          db,
		Connections: registry,
		Metrics:     m,
		Logger:      logger,
		Stream: sse.Config{
			HeartbeatInterval: cfg.Stream.HeartbeatInterval,
			SendBuffer:        cfg.Stream.SendBuffer,
			SendTimeout:       cfg.Stream.SendTimeout,
			WriteTimeout:      cfg.Stream.WriteTimeout,
		},
		WebSocket: httpAdapter.WebSocketConfig{
			AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			IsDevelopment:   cfg.IsDevelopment(),
			Client: wsAdapter.Config{
				PongWait:     cfg.WebSocket.PongWait,
				PingInterval: cfg.WebSocket.PingInterval,
				SendBuffer:   cfg.Stream.SendBuffer,
				SendTimeout:  cfg.Stream.SendTimeout,
			},
		},
		CORSOrigins:      cfg.CORS.AllowedOrigins,
		RateLimiter:      generalRateLimiter,
		BroadcastLimiter: broadcastRateLimiter,
		Version:          cfg.App.Version,
	})

	// 8. Start Server with Graceful Shutdown
	// WriteTimeout would cut long-lived streams, so it is left to the handlers.
	srv := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Push channels hold their requests open; close them before draining.
	gateway.Close()
	stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("webhook dispatcher did not drain", "error", err)
	}

	if generalRateLimiter != nil {
		generalRateLimiter.Stop()
	}
	if broadcastRateLimiter != nil {
		broadcastRateLimiter.Stop()
	}

	logger.Info("server shutdown complete")
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
