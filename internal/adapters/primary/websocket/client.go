package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client message types.
const (
	MessageHeartbeat = "heartbeat"
	MessageTyping    = "typing"
)

// InboundHandler receives what a client sends over its socket.
type InboundHandler interface {
	Heartbeat(userID string) domain.PresenceStatus
	SetTyping(fromUserID, toUserID string, isTyping bool) error
}

// Config tunes a client.
type Config struct {
	PongWait     time.Duration
	PingInterval time.Duration
	SendBuffer   int
	SendTimeout  time.Duration
}

// DefaultConfig returns the client defaults. PingInterval must be less than
// PongWait.
func DefaultConfig() Config {
	return Config{
		PongWait:     60 * time.Second,
		PingInterval: 54 * time.Second,
		SendBuffer:   64,
		SendTimeout:  2 * time.Second,
	}
}

// Client is a ports.Channel over one websocket connection. Send queues frames
// for WritePump; ReadPump routes client messages to the handler.
type Client struct {
	conn    *websocket.Conn
	userID  string
	handler InboundHandler
	cfg     Config
	logger  *slog.Logger

	send      chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
}

var _ ports.Channel = (*Client)(nil)

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, userID string, handler InboundHandler, cfg Config, logger *slog.Logger) *Client {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 1
	}
	c := &Client{
		conn:    conn,
		userID:  userID,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("user_id", userID),
		send:    make(chan domain.Event, cfg.SendBuffer),
		done:    make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// Send queues one frame, waiting at most SendTimeout for room.
func (c *Client) Send(eventType domain.EventType, payload any) error {
	if !c.IsAlive() {
		return apperrors.ErrChannelClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnserializablePayload, err)
	}
	event := domain.Event{Type: eventType, Payload: json.RawMessage(data)}

	timer := time.NewTimer(c.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case c.send <- event:
		return nil
	case <-c.done:
		return apperrors.ErrChannelClosed
	case <-timer.C:
		return apperrors.ErrChannelBlocked
	}
}

// IsAlive reports whether the client still accepts frames.
func (c *Client) IsAlive() bool {
	return c.alive.Load()
}

// Close stops the client. WritePump sends a close frame and drops the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.done)
	})
}

// ReadPump pumps messages from the websocket connection to the handler.
// It returns when the peer goes away or the connection is closed.
func (c *Client) ReadPump() {
	defer func() {
		c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		// Any traffic counts as liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.handleIncomingMessage(message)
	}
}

// WritePump pumps queued frames to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
				c.logger.Debug("failed to send close message", "error", err)
			}
			return

		case event := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TypingMessage is the payload of a typing message.
type TypingMessage struct {
	TargetUserID string `json:"targetUserId"`
	IsTyping     bool   `json:"isTyping"`
}

func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case MessageHeartbeat:
		c.handler.Heartbeat(c.userID)

	case MessageTyping:
		var p TypingMessage
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.logger.Warn("failed to unmarshal typing payload", "error", err)
			return
		}
		if err := c.handler.SetTyping(c.userID, p.TargetUserID, p.IsTyping); err != nil {
			c.logger.Debug("typing signal rejected", "target_user_id", p.TargetUserID, "error", err)
		}

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}
