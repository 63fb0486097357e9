package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/coaching-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

// BroadcastHandler serves admin fan-out to connected users.
type BroadcastHandler struct {
	gateway      ports.RealtimeGateway
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewBroadcastHandler(gateway ports.RealtimeGateway, errorHandler *ErrorHandler, logger *slog.Logger) *BroadcastHandler {
	return &BroadcastHandler{
		gateway:      gateway,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "broadcast"),
	}
}

// RegisterRoutes expects the caller to wrap r with admin and rate-limit
// middleware.
func (h *BroadcastHandler) RegisterRoutes(r chi.Router) {
	r.Post("/broadcast", h.HandleBroadcast)
	r.Post("/notifications", h.HandleNotify)
}

type NotificationRequest struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Link  string         `json:"link"`
	Data  map[string]any `json:"data"`
}

func (r *NotificationRequest) validate(v *validation.Validator) {
	v.Required("title", r.Title).
		MaxLength("title", r.Title, 200).
		MaxLength("body", r.Body, 2000).
		HTTPURL("link", r.Link)
}

func (r *NotificationRequest) payload() domain.NotificationPayload {
	return domain.NotificationPayload{Title: r.Title, Body: r.Body, Link: r.Link, Data: r.Data}
}

type BroadcastRequest struct {
	NotificationRequest
	Type string `json:"type"`
}

func (r *BroadcastRequest) Validate() error {
	v := validation.NewValidator()
	r.validate(v)
	v.OneOf("type", r.Type, []string{string(domain.EventAnnouncement), string(domain.EventNotification)})
	return v.Err()
}

type NotifyRequest struct {
	NotificationRequest
	UserID string `json:"userId"`
}

func (r *NotifyRequest) Validate() error {
	v := validation.NewValidator()
	v.Required("userId", r.UserID)
	r.validate(v)
	return v.Err()
}

// HandleBroadcast handles POST /broadcast
func (h *BroadcastHandler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[BroadcastRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	eventType := domain.EventAnnouncement
	if req.Type != "" {
		eventType = domain.EventType(req.Type)
	}

	h.gateway.Broadcast(eventType, req.payload())
	h.logger.InfoContext(r.Context(), "broadcast sent", "event_type", eventType)

	WriteAccepted(w, "broadcast queued")
}

// HandleNotify handles POST /notifications: one notification to one user.
func (h *BroadcastHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[NotifyRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.gateway.Notify(req.UserID, domain.EventNotification, req.payload())

	WriteAccepted(w, "notification queued")
}
