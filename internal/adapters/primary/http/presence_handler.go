package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/coaching-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/coaching-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/coaching-realtime/internal/auth"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

// PresenceHandler serves the status and typing endpoints.
type PresenceHandler struct {
	gateway      ports.RealtimeGateway
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewPresenceHandler(gateway ports.RealtimeGateway, errorHandler *ErrorHandler, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{
		gateway:      gateway,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "presence"),
	}
}

func (h *PresenceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/status", func(r chi.Router) {
		r.Post("/heartbeat", h.HandleHeartbeat)
		r.Get("/online", h.HandleOnline)
		r.Get("/{userID}", h.HandleStatus)
	})

	r.Route("/typing", func(r chi.Router) {
		r.Post("/", h.HandleTyping)
		r.Get("/", h.HandleTypingToMe)
	})
}

type TypingRequest struct {
	TargetUserID string `json:"targetUserId"`
	IsTyping     *bool  `json:"isTyping"`
}

func (r *TypingRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("targetUserId", r.TargetUserID).
		MaxLength("targetUserId", r.TargetUserID, 128).
		NotNil("isTyping", r.IsTyping)

	return v.Err()
}

// HandleHeartbeat handles POST /status/heartbeat
func (h *PresenceHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	WriteSuccess(w, h.gateway.Heartbeat(claims.UserID))
}

// HandleOnline handles GET /status/online
func (h *PresenceHandler) HandleOnline(w http.ResponseWriter, r *http.Request) {
	WriteList(w, h.gateway.OnlineUsers())
}

// HandleStatus handles GET /status/{userID}
func (h *PresenceHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		h.errorHandler.Handle(w, r, validation.NewValidator().Required("userID", userID).Err())
		return
	}

	WriteSuccess(w, h.gateway.Status(userID))
}

// HandleTyping handles POST /typing
func (h *PresenceHandler) HandleTyping(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[TypingRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if err := h.gateway.SetTyping(claims.UserID, strings.TrimSpace(req.TargetUserID), *req.IsTyping); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteNoContent(w)
}

// HandleTypingToMe handles GET /typing: who is typing to the caller.
func (h *PresenceHandler) HandleTypingToMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := getClaims(w, r)
	if !ok {
		return
	}

	WriteList(w, h.gateway.TypingTo(claims.UserID))
}

func getClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims := mw.GetClaims(r.Context())
	if claims == nil {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return nil, false
	}
	return claims, true
}
