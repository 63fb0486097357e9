package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	wsAdapter "github.com/lorrc/coaching-realtime/internal/adapters/primary/websocket"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	gateway  ports.RealtimeGateway
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// WebSocketConfig holds configuration for the WebSocket handler
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	IsDevelopment   bool
	Client          wsAdapter.Config
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(gateway ports.RealtimeGateway, cfg WebSocketConfig, logger *slog.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     handler.checkOrigin,
	}

	return handler
}

// checkOrigin enforces the allowed origins list outside development.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// In development mode, allow all origins (but log a warning)
	if h.cfg.IsDevelopment {
		if origin != "" {
			h.logger.Warn("allowing websocket connection in development mode",
				"origin", origin,
				"remote_addr", r.RemoteAddr,
			)
		}
		return true
	}

	// No origin header (same-origin request or non-browser client)
	if origin == "" {
		return true
	}

	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		h.logger.Warn("failed to parse websocket origin",
			"origin", origin,
			"error", err,
		)
		return false
	}

	if originAllowed(parsedOrigin.Host, h.cfg.AllowedOrigins) {
		return true
	}

	h.logger.Warn("websocket connection rejected due to origin",
		"origin", origin,
		"remote_addr", r.RemoteAddr,
	)
	return false
}

// originAllowed matches host against entries like "app.example.com" or
// "*.example.com".
func originAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		// Entries may be written as full origins.
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			a = u.Host
		}
		if strings.HasPrefix(a, "*.") {
			if strings.HasSuffix(host, a[1:]) || host == a[2:] {
				return true
			}
		} else if host == a {
			return true
		}
	}
	return false
}

// ServeHTTP handles GET /ws. Authentication runs before the upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection", "error", err)
		return
	}

	client := wsAdapter.NewClient(conn, claims.UserID, h.gateway, h.cfg.Client, h.logger)
	connID, err := h.gateway.Connect(claims.UserID, client)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to register websocket client", "error", err)
		_ = conn.Close()
		return
	}

	h.logger.InfoContext(r.Context(), "websocket connection established",
		"connection_id", connID,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	go func() {
		client.ReadPump()
		h.gateway.Disconnect(claims.UserID, connID)
	}()
}
