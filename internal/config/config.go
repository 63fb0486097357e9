package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Push stream configuration
	Stream StreamConfig

	// Presence and typing configuration
	Presence PresenceConfig

	// Webhook delivery configuration
	Webhook WebhookConfig

	// CORS configuration
	CORS CORSConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration. An empty URL keeps webhook
// endpoints in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	BroadcastRPS      float64 // Stricter limit for broadcast fan-out
	BroadcastBurst    int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
}

// StreamConfig holds push channel settings
type StreamConfig struct {
	HeartbeatInterval time.Duration
	SendBuffer        int
	SendTimeout       time.Duration
	WriteTimeout      time.Duration
}

// PresenceConfig holds presence and typing timings
type PresenceConfig struct {
	OnlineTTL      time.Duration
	StaleTTL       time.Duration
	SweepInterval  time.Duration
	TypingDuration time.Duration
}

// WebhookConfig holds webhook delivery settings
type WebhookConfig struct {
	Timeout     time.Duration
	MaxFailures int
	BackoffUnit time.Duration
	Source      string
}

// CORSConfig holds CORS settings for browser clients
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 0), // streams are long-lived
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			MigrationsPath:  getEnvOrDefault("DB_MIGRATIONS_PATH", "file://migrations"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: getDurationOrDefault("JWT_ACCESS_TOKEN_TTL", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
			BroadcastRPS:      getFloatOrDefault("BROADCAST_RPS", 0.2),
			BroadcastBurst:    getIntOrDefault("BROADCAST_BURST", 2),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
		},
		Stream: StreamConfig{
			HeartbeatInterval: getDurationOrDefault("STREAM_HEARTBEAT_INTERVAL", 30*time.Second),
			SendBuffer:        getIntOrDefault("STREAM_SEND_BUFFER", 64),
			SendTimeout:       getDurationOrDefault("STREAM_SEND_TIMEOUT", 2*time.Second),
			WriteTimeout:      getDurationOrDefault("STREAM_WRITE_TIMEOUT", 10*time.Second),
		},
		Presence: PresenceConfig{
			OnlineTTL:      getDurationOrDefault("PRESENCE_ONLINE_TTL", 2*time.Minute),
			StaleTTL:       getDurationOrDefault("PRESENCE_STALE_TTL", 5*time.Minute),
			SweepInterval:  getDurationOrDefault("PRESENCE_SWEEP_INTERVAL", 5*time.Minute),
			TypingDuration: getDurationOrDefault("TYPING_DURATION", 3*time.Second),
		},
		Webhook: WebhookConfig{
			Timeout:     getDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxFailures: getIntOrDefault("WEBHOOK_MAX_FAILURES", 5),
			BackoffUnit: getDurationOrDefault("WEBHOOK_BACKOFF_UNIT", time.Second),
			Source:      getEnvOrDefault("WEBHOOK_SOURCE", "coaching-app"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{}),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "coaching-realtime"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}

		if len(c.CORS.AllowedOrigins) == 0 {
			errs = append(errs, "CORS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if c.Presence.OnlineTTL <= 0 {
		errs = append(errs, "PRESENCE_ONLINE_TTL must be positive")
	}

	if c.Presence.StaleTTL < c.Presence.OnlineTTL {
		errs = append(errs, "PRESENCE_STALE_TTL cannot be shorter than PRESENCE_ONLINE_TTL")
	}

	if c.Presence.SweepInterval <= 0 {
		errs = append(errs, "PRESENCE_SWEEP_INTERVAL must be positive")
	}

	if c.Presence.TypingDuration <= 0 {
		errs = append(errs, "TYPING_DURATION must be positive")
	}

	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, "STREAM_HEARTBEAT_INTERVAL must be positive")
	}

	if c.Stream.SendBuffer < 1 {
		errs = append(errs, "STREAM_SEND_BUFFER must be at least 1")
	}

	if c.Webhook.MaxFailures < 1 {
		errs = append(errs, "WEBHOOK_MAX_FAILURES must be at least 1")
	}

	if c.Webhook.Timeout <= 0 || c.Webhook.BackoffUnit <= 0 {
		errs = append(errs, "WEBHOOK_TIMEOUT and WEBHOOK_BACKOFF_UNIT must be positive")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsesDatabase reports whether webhook endpoints are persisted in Postgres
func (c *Config) UsesDatabase() bool {
	return c.Database.URL != ""
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, JWT: [REDACTED], RateLimit: %v, Webhook: %s/%d failures, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.RateLimit.Enabled,
		c.Webhook.Timeout,
		c.Webhook.MaxFailures,
		c.App.Environment,
	)
}

// redactURL redacts sensitive parts of a database URL
func redactURL(url string) string {
	if url == "" {
		return "[MEMORY]"
	}
	// Very basic redaction - in production you'd want something more robust
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
