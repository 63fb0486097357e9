package http

import (
	"log/slog"
	"net/http"

	"github.com/lorrc/coaching-realtime/internal/adapters/primary/sse"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/logging"
)

// StreamHandler opens Server-Sent Event push channels.
type StreamHandler struct {
	gateway      ports.RealtimeGateway
	cfg          sse.Config
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewStreamHandler(gateway ports.RealtimeGateway, cfg sse.Config, errorHandler *ErrorHandler, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		gateway:      gateway,
		cfg:          cfg,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "stream"),
	}
}

// ServeHTTP handles GET /stream. It blocks for the life of the connection.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	stream, err := sse.NewStream(w, h.cfg, h.logger)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	connID, err := h.gateway.Connect(claims.UserID, stream)
	if err != nil {
		// Headers are already out; all that is left is to drop the stream.
		stream.Close()
		h.logger.ErrorContext(r.Context(), "failed to register stream", "error", err)
		return
	}
	defer h.gateway.Disconnect(claims.UserID, connID)

	ctx := logging.WithConnectionID(r.Context(), connID)
	h.logger.InfoContext(ctx, "stream opened", "remote_addr", r.RemoteAddr)

	stream.Run(ctx)

	h.logger.InfoContext(ctx, "stream closed")
}
