package domain

import "time"

// Connection is one live push channel owned by a user.
type Connection struct {
	ID       string
	UserID   string
	OpenedAt time.Time
}

// PresenceRecord tracks when a user was last seen and which of their
// connections are open. A record with no connections may linger until the
// stale sweep removes it.
type PresenceRecord struct {
	UserID              string
	LastSeenAt          time.Time
	ActiveConnectionIDs map[string]struct{}
}

// NewPresenceRecord creates an empty record stamped at now.
func NewPresenceRecord(userID string, now time.Time) *PresenceRecord {
	return &PresenceRecord{
		UserID:              userID,
		LastSeenAt:          now,
		ActiveConnectionIDs: make(map[string]struct{}),
	}
}

// IsFresh reports whether the record was refreshed within ttl of now.
func (p *PresenceRecord) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.LastSeenAt) < ttl
}

// PresenceStatus is the read model exposed by the status endpoints.
type PresenceStatus struct {
	UserID      string     `json:"userId"`
	Online      bool       `json:"online"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
	Connections int        `json:"connections"`
}

// TypingRecord says FromUserID is composing a message to ToUserID.
// A user types to at most one target at a time.
type TypingRecord struct {
	FromUserID string
	ToUserID   string
	ExpiresAt  time.Time
}
