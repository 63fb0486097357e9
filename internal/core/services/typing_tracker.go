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

// DefaultTypingDuration is how long an indicator lives without a refresh.
const DefaultTypingDuration = 3 * time.Second

type typingNotice struct {
	from, to string
	started  bool
}

type typingEntry struct {
	record domain.TypingRecord
	timer  *time.Timer
	gen    uint64
}

// TypingTracker holds at most one typing indicator per sender. Repeated starts
// re-arm the expiry timer; a timer that fires after being superseded is
// ignored via its generation number.
//
// Transitions are queued under the lock in the order they happen and
// delivered by one goroutine at a time, so a listener never sees a sender's
// stop ahead of the start it ends. A caller that finds delivery in progress
// returns before its transitions are delivered.
type TypingTracker struct {
	mu       sync.Mutex
	entries  map[string]*typingEntry
	gen      uint64
	pending  []typingNotice
	draining bool
	duration time.Duration
	now      func() time.Time
	listener ports.TypingListener
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewTypingTracker creates a typing tracker. A non-positive duration falls
// back to DefaultTypingDuration.
func NewTypingTracker(duration time.Duration, m *metrics.Metrics, logger *slog.Logger) *TypingTracker {
	if duration <= 0 {
		duration = DefaultTypingDuration
	}
	return &TypingTracker{
		entries:  make(map[string]*typingEntry),
		duration: duration,
		now:      time.Now,
		metrics:  m,
		logger:   logger.With("component", "typing_tracker"),
	}
}

// SetListener registers the receiver of start/stop transitions.
func (t *TypingTracker) SetListener(l ports.TypingListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

// StartTyping marks fromUserID as typing to toUserID for d (or the default
// duration when d is zero). Switching targets stops the previous indicator
// first. Only the first start toward a target is reported to the listener.
func (t *TypingTracker) StartTyping(fromUserID, toUserID string, d time.Duration) error {
	if strings.TrimSpace(fromUserID) == "" {
		return apperrors.ErrUserIDRequired
	}
	if strings.TrimSpace(toUserID) == "" {
		return apperrors.ErrTargetRequired
	}
	if fromUserID == toUserID {
		return apperrors.ErrTypingToSelf
	}
	if d <= 0 {
		d = t.duration
	}

	t.mu.Lock()
	prev, hadPrev := t.entries[fromUserID]
	if hadPrev {
		prev.timer.Stop()
	}

	t.gen++
	gen := t.gen
	entry := &typingEntry{
		record: domain.TypingRecord{
			FromUserID: fromUserID,
			ToUserID:   toUserID,
			ExpiresAt:  t.now().Add(d),
		},
		gen: gen,
	}
	entry.timer = time.AfterFunc(d, func() { t.expire(fromUserID, gen) })
	t.entries[fromUserID] = entry
	if hadPrev && prev.record.ToUserID != toUserID {
		t.queueLocked(fromUserID, prev.record.ToUserID, false)
	}
	if !hadPrev || prev.record.ToUserID != toUserID {
		t.queueLocked(fromUserID, toUserID, true)
	}
	count := len(t.entries)
	t.mu.Unlock()

	t.metrics.SetTypingIndicators(count)
	t.drain()
	return nil
}

// StopTyping removes the sender's indicator. It reports the stop to the
// listener and returns true only if an indicator was active.
func (t *TypingTracker) StopTyping(fromUserID string) bool {
	t.mu.Lock()
	entry, ok := t.entries[fromUserID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	entry.timer.Stop()
	delete(t.entries, fromUserID)
	t.queueLocked(fromUserID, entry.record.ToUserID, false)
	count := len(t.entries)
	t.mu.Unlock()

	t.metrics.SetTypingIndicators(count)
	t.drain()
	return true
}

// StopTypingTo stops the sender's indicator only if it points at toUserID.
func (t *TypingTracker) StopTypingTo(fromUserID, toUserID string) bool {
	if !t.IsTyping(fromUserID, toUserID) {
		return false
	}
	return t.StopTyping(fromUserID)
}

// Clear drops any indicator from the user. Used when their last connection closes.
func (t *TypingTracker) Clear(fromUserID string) {
	t.StopTyping(fromUserID)
}

func (t *TypingTracker) expire(fromUserID string, gen uint64) {
	t.mu.Lock()
	entry, ok := t.entries[fromUserID]
	if !ok || entry.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.entries, fromUserID)
	t.queueLocked(fromUserID, entry.record.ToUserID, false)
	count := len(t.entries)
	t.mu.Unlock()

	t.metrics.SetTypingIndicators(count)
	t.logger.Debug("typing indicator expired", "from_user_id", fromUserID, "to_user_id", entry.record.ToUserID)
	t.drain()
}

func (t *TypingTracker) queueLocked(from, to string, started bool) {
	if t.listener == nil {
		return
	}
	t.pending = append(t.pending, typingNotice{from: from, to: to, started: started})
}

// drain delivers queued transitions outside the lock. Listener callbacks may
// re-enter the tracker; what they queue is delivered by the same loop.
func (t *TypingTracker) drain() {
	t.mu.Lock()
	if t.draining {
		t.mu.Unlock()
		return
	}
	t.draining = true
	for len(t.pending) > 0 {
		batch := t.pending
		t.pending = nil
		listener := t.listener
		t.mu.Unlock()

		for _, n := range batch {
			if listener == nil {
				continue
			}
			if n.started {
				listener.TypingStarted(n.from, n.to)
			} else {
				listener.TypingStopped(n.from, n.to)
			}
		}

		t.mu.Lock()
	}
	t.draining = false
	t.mu.Unlock()
}

// IsTyping reports whether fromUserID is typing. With an empty toUserID any
// target matches.
func (t *TypingTracker) IsTyping(fromUserID, toUserID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[fromUserID]
	if !ok {
		return false
	}
	return toUserID == "" || entry.record.ToUserID == toUserID
}

// TypingTo returns the sorted IDs of users currently typing to targetUserID.
func (t *TypingTracker) TypingTo(targetUserID string) []string {
	t.mu.Lock()
	users := make([]string, 0)
	for from, entry := range t.entries {
		if entry.record.ToUserID == targetUserID {
			users = append(users, from)
		}
	}
	t.mu.Unlock()

	sort.Strings(users)
	return users
}

// Close stops every pending timer without notifying the listener.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for from, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, from)
	}
	t.pending = nil
	t.metrics.SetTypingIndicators(0)
}
