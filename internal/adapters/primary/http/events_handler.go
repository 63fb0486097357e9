package http

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/coaching-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/coaching-realtime/internal/auth"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

var appointmentActions = map[string]domain.EventType{
	"created":   domain.EventAppointmentCreated,
	"updated":   domain.EventAppointmentUpdated,
	"cancelled": domain.EventAppointmentCancelled,
}

// EventsHandler is the ingress the surrounding app calls after it has
// persisted a message or appointment.
type EventsHandler struct {
	gateway      ports.RealtimeGateway
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewEventsHandler(gateway ports.RealtimeGateway, errorHandler *ErrorHandler, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		gateway:      gateway,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "events"),
	}
}

func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.HandleMessageSent)
	r.Post("/appointments/{action}", h.HandleAppointment)
}

// HandleMessageSent handles POST /messages. Callers other than admins may
// only announce their own messages.
func (h *EventsHandler) HandleMessageSent(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	msg, err := validation.DecodeAndValidate[domain.Message](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := msg.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if !claims.HasRole(auth.RoleAdmin) && msg.SenderID != claims.UserID {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return
	}

	if err := h.gateway.MessageSent(*msg); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, "message event published")
}

// HandleAppointment handles POST /appointments/{action}
func (h *EventsHandler) HandleAppointment(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	action := strings.ToLower(chi.URLParam(r, "action"))
	eventType, known := appointmentActions[action]
	if !known {
		h.errorHandler.Handle(w, r, apperrors.NewNotFoundError(apperrors.ErrNotFound, "Unknown appointment action"))
		return
	}

	appt, err := validation.DecodeAndValidate[domain.Appointment](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := appt.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if !claims.HasRole(auth.RoleAdmin) && !slices.Contains(appt.Participants(), claims.UserID) {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return
	}

	if err := h.gateway.AppointmentChanged(eventType, *appt); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, "appointment event published")
}
