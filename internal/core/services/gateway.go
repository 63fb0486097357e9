package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

// GatewayConfig holds gateway settings
type GatewayConfig struct {
	TypingDuration time.Duration    // Indicator lifetime without refresh
	WebhookSource  string           // Source tag stamped on outgoing webhook events
	ReapInterval   time.Duration    // How often dead channels are unregistered
	Now            func() time.Time // Clock, defaults to time.Now
}

var appointmentWebhookTypes = map[domain.EventType]domain.WebhookEventType{
	domain.EventAppointmentCreated:   domain.WebhookAppointmentCreated,
	domain.EventAppointmentUpdated:   domain.WebhookAppointmentUpdated,
	domain.EventAppointmentCancelled: domain.WebhookAppointmentCancelled,
}

// Gateway is the event bus domain code and transports call into. It turns
// connection activity into presence and typing state, and domain actions into
// pushes to live channels plus webhook events.
type Gateway struct {
	registry *ConnectionRegistry
	presence *PresenceTracker
	typing   *TypingTracker
	webhooks ports.WebhookPublisher
	cfg      GatewayConfig
	now      func() time.Time
	logger   *slog.Logger
}

var (
	_ ports.RealtimeGateway  = (*Gateway)(nil)
	_ ports.PresenceListener = (*Gateway)(nil)
	_ ports.TypingListener   = (*Gateway)(nil)
)

// NewGateway wires the gateway as the listener of both trackers.
// webhooks may be nil, in which case no webhook events are produced.
func NewGateway(
	registry *ConnectionRegistry,
	presence *PresenceTracker,
	typing *TypingTracker,
	webhooks ports.WebhookPublisher,
	cfg GatewayConfig,
	logger *slog.Logger,
) *Gateway {
	if cfg.TypingDuration <= 0 {
		cfg.TypingDuration = DefaultTypingDuration
	}
	if cfg.WebhookSource == "" {
		cfg.WebhookSource = DefaultWebhookConfig().Source
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	g := &Gateway{
		registry: registry,
		presence: presence,
		typing:   typing,
		webhooks: webhooks,
		cfg:      cfg,
		now:      now,
		logger:   logger.With("component", "gateway"),
	}
	presence.SetListener(g)
	typing.SetListener(g)
	return g
}

// Connect assigns a connection ID, sends the connected frame and registers
// the channel. The connected frame is always the first one on the channel.
func (g *Gateway) Connect(userID string, ch ports.Channel) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", apperrors.ErrUserIDRequired
	}

	connectionID := uuid.NewString()
	online := g.presence.ListOnline()
	if !slices.Contains(online, userID) {
		online = append(online, userID)
	}

	err := ch.Send(domain.EventConnected, domain.ConnectedPayload{
		ConnectionID: connectionID,
		UserID:       userID,
		OnlineUsers:  online,
		ServerTime:   g.now().UTC(),
	})
	if err != nil {
		ch.Close()
		return "", fmt.Errorf("failed to send connected event: %w", err)
	}

	if err := g.registry.Register(userID, connectionID, ch); err != nil {
		ch.Close()
		return "", err
	}

	g.logger.Info("client connected", "user_id", userID, "connection_id", connectionID)
	return connectionID, nil
}

// Disconnect unregisters the channel. Unknown IDs are ignored.
func (g *Gateway) Disconnect(userID, connectionID string) {
	if g.registry.Unregister(userID, connectionID) {
		g.logger.Info("client disconnected", "user_id", userID, "connection_id", connectionID)
	}
}

// Heartbeat refreshes the user's presence and returns their status.
func (g *Gateway) Heartbeat(userID string) domain.PresenceStatus {
	g.presence.Heartbeat(userID)
	return g.presence.Status(userID)
}

func (g *Gateway) Status(userID string) domain.PresenceStatus {
	return g.presence.Status(userID)
}

func (g *Gateway) OnlineUsers() []string {
	return g.presence.ListOnline()
}

// SetTyping starts or stops fromUserID's indicator. Stopping with an empty
// target stops whatever the user is typing to.
func (g *Gateway) SetTyping(fromUserID, toUserID string, isTyping bool) error {
	if !isTyping {
		if toUserID == "" {
			g.typing.StopTyping(fromUserID)
		} else {
			g.typing.StopTypingTo(fromUserID, toUserID)
		}
		return nil
	}

	if err := g.typing.StartTyping(fromUserID, toUserID, g.cfg.TypingDuration); err != nil {
		return err
	}
	g.presence.Heartbeat(fromUserID)
	return nil
}

func (g *Gateway) TypingTo(userID string) []string {
	return g.typing.TypingTo(userID)
}

// MessageSent announces a persisted message: new_message to the recipient,
// message_sent to the sender's other channels, and a message.sent webhook.
func (g *Gateway) MessageSent(msg domain.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = g.now().UTC()
	}

	g.typing.StopTypingTo(msg.SenderID, msg.RecipientID)
	g.presence.Heartbeat(msg.SenderID)

	delivered := g.registry.PushToUser(msg.RecipientID, domain.EventNewMessage, msg)
	if msg.SenderID != msg.RecipientID {
		g.registry.PushToUser(msg.SenderID, domain.EventMessageSent, msg)
	}
	g.publishWebhook(domain.WebhookMessageSent, msg)

	g.logger.Debug("message announced",
		"message_id", msg.ID, "sender_id", msg.SenderID, "recipient_id", msg.RecipientID, "delivered", delivered)
	return nil
}

// AppointmentChanged pushes the appointment to both participants and
// publishes the matching appointment.* webhook.
func (g *Gateway) AppointmentChanged(eventType domain.EventType, appt domain.Appointment) error {
	webhookType, ok := appointmentWebhookTypes[eventType]
	if !ok {
		return apperrors.NewBadRequestError(apperrors.ErrBadRequest,
			fmt.Sprintf("Unsupported appointment event %q", eventType))
	}
	if err := appt.Validate(); err != nil {
		return err
	}
	if eventType == domain.EventAppointmentCancelled {
		appt.Status = domain.AppointmentCancelled
	}

	g.registry.PushToUsers(appt.Participants(), eventType, appt)
	g.publishWebhook(webhookType, appt)
	return nil
}

// Notify pushes an arbitrary event to one user.
func (g *Gateway) Notify(userID string, eventType domain.EventType, payload any) {
	g.registry.PushToUser(userID, eventType, payload)
}

// Broadcast pushes an event to every connected user.
func (g *Gateway) Broadcast(eventType domain.EventType, payload any) {
	n := g.registry.BroadcastAll(eventType, payload)
	g.logger.Info("broadcast sent", "event_type", eventType, "delivered", n)
}

// UserOnline implements ports.PresenceListener.
func (g *Gateway) UserOnline(userID string, at time.Time) {
	payload := domain.PresencePayload{UserID: userID, Online: true, LastSeenAt: at.UTC()}
	g.registry.BroadcastAll(domain.EventUserOnline, payload)
	g.publishWebhook(domain.WebhookUserOnline, payload)
}

// UserOffline implements ports.PresenceListener.
func (g *Gateway) UserOffline(userID string, lastSeen time.Time) {
	payload := domain.PresencePayload{UserID: userID, Online: false, LastSeenAt: lastSeen.UTC()}
	g.registry.BroadcastAll(domain.EventUserOffline, payload)
	g.publishWebhook(domain.WebhookUserOffline, payload)
}

// TypingStarted implements ports.TypingListener.
func (g *Gateway) TypingStarted(fromUserID, toUserID string) {
	g.registry.PushToUser(toUserID, domain.EventTypingStart,
		domain.TypingPayload{FromUserID: fromUserID, ToUserID: toUserID, IsTyping: true})
}

// TypingStopped implements ports.TypingListener.
func (g *Gateway) TypingStopped(fromUserID, toUserID string) {
	g.registry.PushToUser(toUserID, domain.EventTypingStop,
		domain.TypingPayload{FromUserID: fromUserID, ToUserID: toUserID, IsTyping: false})
}

func (g *Gateway) publishWebhook(eventType domain.WebhookEventType, payload any) {
	if g.webhooks == nil {
		return
	}
	event, err := domain.NewWebhookEvent(eventType, payload, g.cfg.WebhookSource, g.now())
	if err != nil {
		g.logger.Error("failed to build webhook event", "event_type", eventType, "error", err)
		return
	}
	g.webhooks.Dispatch(event)
}

// Run reaps dead channels every ReapInterval and sweeps presence every
// SweepInterval until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	reap := time.NewTicker(g.cfg.ReapInterval)
	defer reap.Stop()
	sweep := time.NewTicker(g.presence.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reap.C:
			if n := g.registry.ReapDead(); n > 0 {
				g.logger.Info("reaped dead channels", "count", n)
			}
		case <-sweep.C:
			if reaped, _ := g.registry.Sweep(); reaped > 0 {
				g.logger.Info("reaped dead channels", "count", reaped)
			}
		}
	}
}

// Close stops typing timers and closes every channel.
func (g *Gateway) Close() {
	g.typing.Close()
	g.registry.CloseAll()
}
