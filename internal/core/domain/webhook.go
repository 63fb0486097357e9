package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
)

// MinWebhookSecretLength is the shortest shared secret accepted at registration.
const MinWebhookSecretLength = 16

// WebhookEventType is the dotted event name external subscribers register for.
type WebhookEventType string

const (
	WebhookMessageSent          WebhookEventType = "message.sent"
	WebhookAppointmentCreated   WebhookEventType = "appointment.created"
	WebhookAppointmentUpdated   WebhookEventType = "appointment.updated"
	WebhookAppointmentCancelled WebhookEventType = "appointment.cancelled"
	WebhookUserOnline           WebhookEventType = "user.online"
	WebhookUserOffline          WebhookEventType = "user.offline"
	WebhookTest                 WebhookEventType = "webhook.test"
)

var knownWebhookEventTypes = []WebhookEventType{
	WebhookMessageSent,
	WebhookAppointmentCreated,
	WebhookAppointmentUpdated,
	WebhookAppointmentCancelled,
	WebhookUserOnline,
	WebhookUserOffline,
	WebhookTest,
}

// KnownWebhookEventTypes returns every event type an endpoint may subscribe to.
func KnownWebhookEventTypes() []WebhookEventType {
	return slices.Clone(knownWebhookEventTypes)
}

// IsValid reports whether t is a known event type.
func (t WebhookEventType) IsValid() bool {
	return slices.Contains(knownWebhookEventTypes, t)
}

// WebhookEndpoint is an external subscriber. Endpoints are soft-disabled after
// repeated failures and never deleted automatically.
type WebhookEndpoint struct {
	ID                  string             `json:"id"`
	URL                 string             `json:"url"`
	Secret              string             `json:"-"`
	Events              []WebhookEventType `json:"events"`
	IsActive            bool               `json:"isActive"`
	ConsecutiveFailures int                `json:"consecutiveFailures"`
	LastDeliveryAt      *time.Time         `json:"lastDeliveryAt,omitempty"`
	LastError           string             `json:"lastError,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// WebhookEndpointParams is the registration input.
type WebhookEndpointParams struct {
	URL    string
	Secret string
	Events []WebhookEventType
}

// Validate checks the registration input.
func (p *WebhookEndpointParams) Validate() error {
	errs := apperrors.NewValidationErrors()

	rawURL := strings.TrimSpace(p.URL)
	if rawURL == "" {
		errs.Add("url", apperrors.ErrURLRequired.Error())
	} else if u, err := url.Parse(rawURL); err != nil || !u.IsAbs() || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		errs.Add("url", apperrors.ErrURLInvalid.Error())
	}

	if p.Secret == "" {
		errs.Add("secret", apperrors.ErrSecretRequired.Error())
	} else if len(p.Secret) < MinWebhookSecretLength {
		errs.Add("secret", fmt.Sprintf("Must be at least %d characters", MinWebhookSecretLength))
	}

	if len(p.Events) == 0 {
		errs.Add("events", apperrors.ErrEventsRequired.Error())
	}
	for _, t := range p.Events {
		if !t.IsValid() {
			errs.Add("events", fmt.Sprintf("%s: %q", apperrors.ErrUnknownEventType.Error(), t))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// NewWebhookEndpoint builds an active endpoint with a fresh ID.
func NewWebhookEndpoint(params WebhookEndpointParams, now time.Time) (*WebhookEndpoint, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Deduplicate and order subscriptions so equal sets compare equal.
	events := slices.Clone(params.Events)
	slices.Sort(events)
	events = slices.Compact(events)

	return &WebhookEndpoint{
		ID:        uuid.NewString(),
		URL:       strings.TrimSpace(params.URL),
		Secret:    params.Secret,
		Events:    events,
		IsActive:  true,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Subscribes reports whether the endpoint wants events of type t.
func (e *WebhookEndpoint) Subscribes(t WebhookEventType) bool {
	return slices.Contains(e.Events, t)
}

// Status is a human-readable form of IsActive.
func (e *WebhookEndpoint) Status() string {
	if e.IsActive {
		return "active"
	}
	return "suspended"
}

// Clone returns a deep copy safe to hand outside the owning component.
func (e *WebhookEndpoint) Clone() *WebhookEndpoint {
	c := *e
	c.Events = slices.Clone(e.Events)
	if e.LastDeliveryAt != nil {
		t := *e.LastDeliveryAt
		c.LastDeliveryAt = &t
	}
	return &c
}

// WebhookEvent is an immutable event handed to the dispatcher. The payload is
// serialized once at construction so every delivery signs identical bytes.
type WebhookEvent struct {
	id        string
	eventType WebhookEventType
	data      json.RawMessage
	createdAt int64
	source    string
}

// NewWebhookEvent serializes payload and stamps the event with a new ID.
func NewWebhookEvent(eventType WebhookEventType, payload any, source string, now time.Time) (WebhookEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", apperrors.ErrUnserializablePayload, err)
	}
	return WebhookEvent{
		id:        uuid.NewString(),
		eventType: eventType,
		data:      data,
		createdAt: now.UnixMilli(),
		source:    source,
	}, nil
}

func (e WebhookEvent) ID() string              { return e.id }
func (e WebhookEvent) Type() WebhookEventType  { return e.eventType }
func (e WebhookEvent) CreatedAtEpochMs() int64 { return e.createdAt }
func (e WebhookEvent) Source() string          { return e.source }

// Data returns a copy of the serialized payload.
func (e WebhookEvent) Data() json.RawMessage {
	return slices.Clone(e.data)
}

// WebhookEnvelope is the wire shape of a delivery body. Field order here is
// the canonical key order.
type WebhookEnvelope struct {
	ID        string           `json:"id"`
	Type      WebhookEventType `json:"type"`
	Data      json.RawMessage  `json:"data"`
	Timestamp int64            `json:"timestamp"`
	Source    string           `json:"source"`
}

// Envelope returns the wire form of the event.
func (e WebhookEvent) Envelope() WebhookEnvelope {
	return WebhookEnvelope{
		ID:        e.id,
		Type:      e.eventType,
		Data:      e.Data(),
		Timestamp: e.createdAt,
		Source:    e.source,
	}
}

// Body returns the canonical JSON encoding of the envelope: struct field order,
// compact, no trailing newline. Signatures are computed over exactly these bytes.
func (e WebhookEvent) Body() ([]byte, error) {
	return json.Marshal(e.Envelope())
}
