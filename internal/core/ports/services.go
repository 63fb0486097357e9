package ports

import (
	"context"
	"time"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
)

// Channel is an outbound push sink bound to one client connection. Send must
// not block longer than the transport's send timeout.
type Channel interface {
	Send(eventType domain.EventType, payload any) error
	IsAlive() bool
	Close()
}

// PresenceListener receives presence transitions. Calls happen outside the
// tracker's lock, once per transition.
type PresenceListener interface {
	UserOnline(userID string, at time.Time)
	UserOffline(userID string, lastSeen time.Time)
}

// TypingListener receives typing transitions, once per transition.
type TypingListener interface {
	TypingStarted(fromUserID, toUserID string)
	TypingStopped(fromUserID, toUserID string)
}

// DeliveryRequest is one signed webhook POST.
type DeliveryRequest struct {
	URL       string
	Body      []byte
	Signature string
	EventType domain.WebhookEventType
	EventID   string
}

// DeliveryResult describes the outcome of a single attempt.
type DeliveryResult struct {
	StatusCode int    `json:"statusCode"`
	DurationMs int64  `json:"durationMs"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// WebhookSender performs one HTTP delivery. A non-2xx response or transport
// error is returned as an error.
type WebhookSender interface {
	Send(ctx context.Context, req DeliveryRequest) (DeliveryResult, error)
}

// WebhookPublisher accepts events for fire-and-forget delivery.
type WebhookPublisher interface {
	Dispatch(event domain.WebhookEvent)
}

// RegisterWebhookParams is the registration input for a webhook endpoint.
type RegisterWebhookParams struct {
	URL    string
	Secret string
	Events []domain.WebhookEventType
}

// WebhookService is the management surface of the dispatcher.
type WebhookService interface {
	WebhookPublisher
	RegisterEndpoint(ctx context.Context, params RegisterWebhookParams) (*domain.WebhookEndpoint, error)
	UnregisterEndpoint(ctx context.Context, id string) error
	GetEndpoint(id string) (*domain.WebhookEndpoint, error)
	ListEndpoints() []*domain.WebhookEndpoint
	SuspendEndpoint(ctx context.Context, id string) error
	ReactivateEndpoint(ctx context.Context, id string) error
	SendTest(ctx context.Context, id string, eventType domain.WebhookEventType) (DeliveryResult, error)
}

// RealtimeGateway is the facade domain code and transports call into.
type RealtimeGateway interface {
	Connect(userID string, ch Channel) (string, error)
	Disconnect(userID, connectionID string)
	Heartbeat(userID string) domain.PresenceStatus
	Status(userID string) domain.PresenceStatus
	OnlineUsers() []string
	SetTyping(fromUserID, toUserID string, isTyping bool) error
	TypingTo(userID string) []string
	MessageSent(msg domain.Message) error
	AppointmentChanged(eventType domain.EventType, appt domain.Appointment) error
	Notify(userID string, eventType domain.EventType, payload any)
	Broadcast(eventType domain.EventType, payload any)
}
