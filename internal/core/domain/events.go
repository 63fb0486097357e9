package domain

import "time"

// EventType names a frame delivered over a push channel.
type EventType string

// Reserved control events.
const (
	EventConnected   EventType = "connected"
	EventHeartbeat   EventType = "heartbeat"
	EventUserOnline  EventType = "user_online"
	EventUserOffline EventType = "user_offline"
	EventTypingStart EventType = "typing_start"
	EventTypingStop  EventType = "typing_stop"
)

// Domain events.
const (
	EventNewMessage           EventType = "new_message"
	EventMessageSent          EventType = "message_sent"
	EventAppointmentCreated   EventType = "appointment_created"
	EventAppointmentUpdated   EventType = "appointment_updated"
	EventAppointmentCancelled EventType = "appointment_cancelled"
	EventNotification         EventType = "notification"
	EventAnnouncement         EventType = "announcement"
)

// Event is one outbound frame queued for a push channel.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"data"`
}

// ConnectedPayload is sent once on every newly opened channel.
type ConnectedPayload struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	OnlineUsers  []string  `json:"onlineUsers"`
	ServerTime   time.Time `json:"serverTime"`
}

// HeartbeatPayload is the keep-alive frame body.
type HeartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PresencePayload accompanies user_online and user_offline.
type PresencePayload struct {
	UserID     string    `json:"userId"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// TypingPayload accompanies typing_start and typing_stop.
type TypingPayload struct {
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	IsTyping   bool   `json:"isTyping"`
}

// NotificationPayload is a free-form user notification.
type NotificationPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body,omitempty"`
	Link  string         `json:"link,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}
