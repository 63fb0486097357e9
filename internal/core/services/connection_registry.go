package services

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/metrics"
)

type registeredChannel struct {
	conn domain.Connection
	ch   ports.Channel
}

// ConnectionRegistry holds every live push channel, grouped by user.
// Registration drives presence; the last unregister for a user also clears
// their typing indicator.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	users    map[string]map[string]*registeredChannel // userID -> connID -> channel
	presence *PresenceTracker
	typing   *TypingTracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewConnectionRegistry creates a registry bound to the given trackers.
func NewConnectionRegistry(presence *PresenceTracker, typing *TypingTracker, m *metrics.Metrics, logger *slog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		users:    make(map[string]map[string]*registeredChannel),
		presence: presence,
		typing:   typing,
		metrics:  m,
		logger:   logger.With("component", "connection_registry"),
	}
}

// Register stores the channel and marks the user online. Re-registering the
// same connection ID replaces the previous channel.
func (r *ConnectionRegistry) Register(userID, connectionID string, ch ports.Channel) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.ErrUserIDRequired
	}
	if strings.TrimSpace(connectionID) == "" {
		return apperrors.ErrConnectionNotFound
	}

	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]*registeredChannel)
		r.users[userID] = conns
	}
	replaced := conns[connectionID]
	conns[connectionID] = &registeredChannel{
		conn: domain.Connection{ID: connectionID, UserID: userID, OpenedAt: time.Now().UTC()},
		ch:   ch,
	}
	total := r.countLocked()
	r.mu.Unlock()

	if replaced != nil && replaced.ch != ch {
		replaced.ch.Close()
	}

	r.metrics.SetConnections(total)
	r.presence.MarkOnline(userID, connectionID)

	r.logger.Debug("channel registered", "user_id", userID, "connection_id", connectionID, "connections", total)
	return nil
}

// Unregister removes and closes the channel. Unknown IDs are a no-op and
// return false.
func (r *ConnectionRegistry) Unregister(userID, connectionID string) bool {
	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	entry, ok := conns[connectionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(conns, connectionID)
	last := len(conns) == 0
	if last {
		delete(r.users, userID)
	}
	total := r.countLocked()
	r.mu.Unlock()

	entry.ch.Close()
	r.metrics.SetConnections(total)
	r.presence.MarkOffline(userID, connectionID)
	if last {
		r.typing.Clear(userID)
	}

	r.logger.Debug("channel unregistered", "user_id", userID, "connection_id", connectionID, "last", last)
	return true
}

// PushToUser sends the event to every channel the user owns and returns how
// many accepted it. Channels that are dead or fail the send are unregistered;
// the failure is not returned.
func (r *ConnectionRegistry) PushToUser(userID string, eventType domain.EventType, payload any) int {
	r.mu.RLock()
	conns := r.users[userID]
	targets := make([]*registeredChannel, 0, len(conns))
	for _, entry := range conns {
		targets = append(targets, entry)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, entry := range targets {
		if !entry.ch.IsAlive() {
			r.evict(entry, nil)
			continue
		}
		if err := entry.ch.Send(eventType, payload); err != nil {
			r.metrics.RecordPush(string(eventType), false)
			r.evict(entry, err)
			continue
		}
		r.metrics.RecordPush(string(eventType), true)
		delivered++
	}
	return delivered
}

// PushToUsers pushes to each distinct user in turn.
func (r *ConnectionRegistry) PushToUsers(userIDs []string, eventType domain.EventType, payload any) int {
	seen := make(map[string]struct{}, len(userIDs))
	delivered := 0
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		delivered += r.PushToUser(userID, eventType, payload)
	}
	return delivered
}

// BroadcastAll pushes to every connected user. Callers are expected to
// rate-limit it.
func (r *ConnectionRegistry) BroadcastAll(eventType domain.EventType, payload any) int {
	return r.PushToUsers(r.ConnectedUsers(), eventType, payload)
}

func (r *ConnectionRegistry) evict(entry *registeredChannel, err error) {
	if r.Unregister(entry.conn.UserID, entry.conn.ID) {
		r.metrics.RecordEviction()
		if err != nil {
			r.logger.Warn("evicted channel after failed send",
				"user_id", entry.conn.UserID, "connection_id", entry.conn.ID, "error", err)
		} else {
			r.logger.Info("evicted dead channel", "user_id", entry.conn.UserID, "connection_id", entry.conn.ID)
		}
	}
}

// ConnectedUsers returns the sorted IDs of users with at least one channel.
func (r *ConnectionRegistry) ConnectedUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.users))
	for userID := range r.users {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// Connections returns the user's open connections ordered by open time.
func (r *ConnectionRegistry) Connections(userID string) []domain.Connection {
	r.mu.RLock()
	conns := make([]domain.Connection, 0, len(r.users[userID]))
	for _, entry := range r.users[userID] {
		conns = append(conns, entry.conn)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].OpenedAt.Before(conns[j].OpenedAt) })
	return conns
}

// ConnectionCount returns the total number of registered channels.
func (r *ConnectionRegistry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked()
}

// UserConnectionCount returns how many channels the user has open.
func (r *ConnectionRegistry) UserConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

func (r *ConnectionRegistry) countLocked() int {
	n := 0
	for _, conns := range r.users {
		n += len(conns)
	}
	return n
}

// ReapDead unregisters channels whose transport has gone away without a
// clean close. It returns the number removed.
func (r *ConnectionRegistry) ReapDead() int {
	r.mu.RLock()
	var dead []*registeredChannel
	for _, conns := range r.users {
		for _, entry := range conns {
			if !entry.ch.IsAlive() {
				dead = append(dead, entry)
			}
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, entry := range dead {
		if r.Unregister(entry.conn.UserID, entry.conn.ID) {
			removed++
		}
	}
	return removed
}

// Sweep reaps dead channels and then sweeps stale presence records, so a
// record is only swept once none of its connections are still registered.
func (r *ConnectionRegistry) Sweep() (reaped, swept int) {
	reaped = r.ReapDead()
	swept = r.presence.Sweep()
	return reaped, swept
}

// CloseAll unregisters and closes every channel.
func (r *ConnectionRegistry) CloseAll() {
	r.mu.RLock()
	var all []domain.Connection
	for _, conns := range r.users {
		for _, entry := range conns {
			all = append(all, entry.conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range all {
		r.Unregister(conn.UserID, conn.ID)
	}
	r.logger.Info("closed all channels", "count", len(all))
}
