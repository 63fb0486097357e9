package services

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lorrc/coaching-realtime/internal/core/domain"
	"github.com/lorrc/coaching-realtime/internal/core/ports"
	"github.com/lorrc/coaching-realtime/internal/infrastructure/metrics"
)

// PresenceConfig holds presence timing configuration
type PresenceConfig struct {
	OnlineTTL     time.Duration    // A record older than this reports offline
	StaleTTL      time.Duration    // The sweep removes records older than this
	SweepInterval time.Duration    // How often the gateway sweeps
	Now           func() time.Time // Clock, defaults to time.Now
}

// DefaultPresenceConfig returns the recommended presence timings
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		OnlineTTL:     2 * time.Minute,
		StaleTTL:      5 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// PresenceTracker tracks which users are online and when they were last seen.
// It knows nothing about transports; connection IDs are opaque strings.
type PresenceTracker struct {
	mu       sync.RWMutex
	records  map[string]*domain.PresenceRecord
	cfg      PresenceConfig
	now      func() time.Time
	listener ports.PresenceListener
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPresenceTracker creates a new presence tracker
func NewPresenceTracker(cfg PresenceConfig, m *metrics.Metrics, logger *slog.Logger) *PresenceTracker {
	defaults := DefaultPresenceConfig()
	if cfg.OnlineTTL <= 0 {
		cfg.OnlineTTL = defaults.OnlineTTL
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = defaults.StaleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &PresenceTracker{
		records: make(map[string]*domain.PresenceRecord),
		cfg:     cfg,
		now:     now,
		metrics: m,
		logger:  logger.With("component", "presence_tracker"),
	}
}

// SetListener registers the receiver of online/offline transitions.
func (p *PresenceTracker) SetListener(l ports.PresenceListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

// MarkOnline adds connectionID to the user's record and stamps lastSeenAt.
// Calling it again with the same arguments only refreshes the timestamp.
func (p *PresenceTracker) MarkOnline(userID, connectionID string) {
	now := p.now()

	p.mu.Lock()
	rec, ok := p.records[userID]
	wasOnline := ok && rec.IsFresh(now, p.cfg.OnlineTTL)
	if !ok {
		rec = domain.NewPresenceRecord(userID, now)
		p.records[userID] = rec
	}
	rec.LastSeenAt = now
	if connectionID != "" {
		rec.ActiveConnectionIDs[connectionID] = struct{}{}
	}
	listener := p.listener
	count := len(p.records)
	p.mu.Unlock()

	p.metrics.SetPresenceRecords(count)
	if !wasOnline && listener != nil {
		listener.UserOnline(userID, now)
	}
}

// MarkOffline removes connectionID from the user's record. The user stays
// online while other connections remain. With an empty connectionID, or when
// the last connection goes, the record is dropped and true is returned.
func (p *PresenceTracker) MarkOffline(userID, connectionID string) bool {
	p.mu.Lock()
	rec, ok := p.records[userID]
	if !ok {
		p.mu.Unlock()
		return false
	}

	if connectionID != "" {
		delete(rec.ActiveConnectionIDs, connectionID)
		if len(rec.ActiveConnectionIDs) > 0 {
			p.mu.Unlock()
			return false
		}
	}

	delete(p.records, userID)
	lastSeen := rec.LastSeenAt
	listener := p.listener
	count := len(p.records)
	p.mu.Unlock()

	p.metrics.SetPresenceRecords(count)
	if listener != nil {
		listener.UserOffline(userID, lastSeen)
	}
	return true
}

// Heartbeat refreshes lastSeenAt without touching connections, creating the
// record if the user had none.
func (p *PresenceTracker) Heartbeat(userID string) {
	p.MarkOnline(userID, "")
}

// IsOnline reports whether the user has a record refreshed within OnlineTTL.
func (p *PresenceTracker) IsOnline(userID string) bool {
	now := p.now()

	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[userID]
	return ok && rec.IsFresh(now, p.cfg.OnlineTTL)
}

// LastSeen returns when the user was last seen, if a record exists.
func (p *PresenceTracker) LastSeen(userID string) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[userID]
	if !ok {
		return time.Time{}, false
	}
	return rec.LastSeenAt, true
}

// Status returns the read model for a single user.
func (p *PresenceTracker) Status(userID string) domain.PresenceStatus {
	now := p.now()

	p.mu.RLock()
	defer p.mu.RUnlock()

	status := domain.PresenceStatus{UserID: userID}
	rec, ok := p.records[userID]
	if !ok {
		return status
	}

	lastSeen := rec.LastSeenAt
	status.Online = rec.IsFresh(now, p.cfg.OnlineTTL)
	status.LastSeenAt = &lastSeen
	status.Connections = len(rec.ActiveConnectionIDs)
	return status
}

// ListOnline returns the sorted IDs of users passing the TTL check.
func (p *PresenceTracker) ListOnline() []string {
	now := p.now()

	p.mu.RLock()
	online := make([]string, 0, len(p.records))
	for userID, rec := range p.records {
		if rec.IsFresh(now, p.cfg.OnlineTTL) {
			online = append(online, userID)
		}
	}
	p.mu.RUnlock()

	sort.Strings(online)
	return online
}

// Sweep removes records not seen within StaleTTL that hold no connections
// and reports each removal as an offline transition. Records that still hold
// connections are kept; they report offline through the TTL until their
// connections are unregistered. It returns the number of records removed.
func (p *PresenceTracker) Sweep() int {
	now := p.now()

	type removed struct {
		userID   string
		lastSeen time.Time
	}

	p.mu.Lock()
	var stale []removed
	for userID, rec := range p.records {
		if now.Sub(rec.LastSeenAt) > p.cfg.StaleTTL && len(rec.ActiveConnectionIDs) == 0 {
			stale = append(stale, removed{userID: userID, lastSeen: rec.LastSeenAt})
			delete(p.records, userID)
		}
	}
	listener := p.listener
	count := len(p.records)
	p.mu.Unlock()

	p.metrics.SetPresenceRecords(count)
	if len(stale) > 0 {
		p.logger.Info("swept stale presence records", "removed", len(stale))
	}
	if listener != nil {
		for _, r := range stale {
			listener.UserOffline(r.userID, r.lastSeen)
		}
	}
	return len(stale)
}
