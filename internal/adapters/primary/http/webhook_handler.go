package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/coaching-realtime/internal/adapters/primary/validation"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/core/services"
)

// WebhookHandler manages webhook endpoints.
type WebhookHandler struct {
	webhooks     ports.WebhookService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

func NewWebhookHandler(webhooks ports.WebhookService, errorHandler *ErrorHandler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks:     webhooks,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "webhooks"),
	}
}

// RegisterRoutes mounts the webhook routes. manage guards everything except
// the public signature verification helper.
func (h *WebhookHandler) RegisterRoutes(r chi.Router, manage ...func(http.Handler) http.Handler) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/verify", h.HandleVerify)

		r.Group(func(r chi.Router) {
			r.Use(manage...)
			r.Post("/", h.HandleRegister)
			r.Get("/", h.HandleList)
			r.Get("/{id}", h.HandleGet)
			r.Delete("/{id}", h.HandleUnregister)
			r.Post("/{id}/test", h.HandleTest)
			r.Post("/{id}/suspend", h.HandleSuspend)
			r.Post("/{id}/reactivate", h.HandleReactivate)
		})
	})
}

// WebhookEndpointDTO never carries the shared secret.
type WebhookEndpointDTO struct {
	ID                  string     `json:"id"`
	URL                 string     `json:"url"`
	Events              []string   `json:"events"`
	Status              string     `json:"status"`
	IsActive            bool       `json:"isActive"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastDeliveryAt      *time.Time `json:"lastDeliveryAt,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func toWebhookEndpointDTO(ep *domain.WebhookEndpoint) WebhookEndpointDTO {
	events := make([]string, 0, len(ep.Events))
	for _, e := range ep.Events {
		events = append(events, string(e))
	}
	return WebhookEndpointDTO{
		ID:                  ep.ID,
		URL:                 ep.URL,
		Events:              events,
		Status:              ep.Status(),
		IsActive:            ep.IsActive,
		ConsecutiveFailures: ep.ConsecutiveFailures,
		LastDeliveryAt:      ep.LastDeliveryAt,
		LastError:           ep.LastError,
		CreatedAt:           ep.CreatedAt,
		UpdatedAt:           ep.UpdatedAt,
	}
}

type RegisterWebhookRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func (r *RegisterWebhookRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("url", r.URL).
		HTTPURL("url", strings.TrimSpace(r.URL)).
		MaxLength("url", r.URL, 2048).
		Required("secret", r.Secret).
		MinLength("secret", r.Secret, domain.MinWebhookSecretLength).
		NotEmpty("events", len(r.Events))

	for _, e := range r.Events {
		v.Custom("events", domain.WebhookEventType(e).IsValid(), "Unknown event type: "+e)
	}

	return v.Err()
}

type TestWebhookRequest struct {
	Type string `json:"type"`
}

type VerifySignatureRequest struct {
	Body      string `json:"body"`
	Signature string `json:"signature"`
	Secret    string `json:"secret"`
}

func (r *VerifySignatureRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("signature", r.Signature).
		Required("secret", r.Secret)

	return v.Err()
}

// HandleRegister handles POST /webhooks
func (h *WebhookHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[RegisterWebhookRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	events := make([]domain.WebhookEventType, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, domain.WebhookEventType(e))
	}

	ep, err := h.webhooks.RegisterEndpoint(r.Context(), ports.RegisterWebhookParams{
		URL:    strings.TrimSpace(req.URL),
		Secret: req.Secret,
		Events: events,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "webhook endpoint registered", "endpoint_id", ep.ID)
	WriteCreated(w, toWebhookEndpointDTO(ep))
}

// HandleList handles GET /webhooks
func (h *WebhookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	endpoints := h.webhooks.ListEndpoints()

	response := make([]WebhookEndpointDTO, 0, len(endpoints))
	for _, ep := range endpoints {
		response = append(response, toWebhookEndpointDTO(ep))
	}

	WriteList(w, response)
}

// HandleGet handles GET /webhooks/{id}
func (h *WebhookHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ep, err := h.webhooks.GetEndpoint(chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, toWebhookEndpointDTO(ep))
}

// HandleUnregister handles DELETE /webhooks/{id}
func (h *WebhookHandler) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := h.webhooks.UnregisterEndpoint(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteNoContent(w)
}

// HandleTest handles POST /webhooks/{id}/test. The body is optional.
func (h *WebhookHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	var eventType domain.WebhookEventType
	if r.ContentLength != 0 {
		req, err := validation.DecodeAndValidate[TestWebhookRequest](r)
		if err != nil {
			h.errorHandler.Handle(w, r, err)
			return
		}
		eventType = domain.WebhookEventType(req.Type)
	}

	result, err := h.webhooks.SendTest(r.Context(), chi.URLParam(r, "id"), eventType)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, result)
}

// HandleSuspend handles POST /webhooks/{id}/suspend
func (h *WebhookHandler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.webhooks.SuspendEndpoint)
}

// HandleReactivate handles POST /webhooks/{id}/reactivate
func (h *WebhookHandler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.webhooks.ReactivateEndpoint)
}

func (h *WebhookHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) error) {
	id := chi.URLParam(r, "id")
	if err := apply(r.Context(), id); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ep, err := h.webhooks.GetEndpoint(id)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, toWebhookEndpointDTO(ep))
}

// HandleVerify handles POST /webhooks/verify, a helper for consumers checking
// their own signature code against a known body.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[VerifySignatureRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if err := services.VerifySignature([]byte(req.Body), req.Signature, req.Secret); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, map[string]bool{"valid": true})
}
