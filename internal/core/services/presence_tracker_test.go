package services_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lorrc/coaching-realtime/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type presenceTransition struct {
	userID string
	online bool
}

type recordingPresenceListener struct {
	mu          sync.Mutex
	transitions []presenceTransition
}

func (l *recordingPresenceListener) UserOnline(userID string, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, presenceTransition{userID, true})
}

func (l *recordingPresenceListener) UserOffline(userID string, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, presenceTransition{userID, false})
}

func (l *recordingPresenceListener) all() []presenceTransition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]presenceTransition(nil), l.transitions...)
}

func newTestPresence(clock *fakeClock) *services.PresenceTracker {
	return services.NewPresenceTracker(services.PresenceConfig{
		OnlineTTL: 2 * time.Minute,
		StaleTTL:  5 * time.Minute,
		Now:       clock.Now,
	}, nil, testLogger())
}

func TestPresenceTracker_MultiDevice(t *testing.T) {
	clock := newFakeClock()
	p := newTestPresence(clock)

	p.MarkOnline("u1", "c1")
	p.MarkOnline("u1", "c2")
	assert.True(t, p.IsOnline("u1"))

	assert.False(t, p.MarkOffline("u1", "c1"), "one connection left")
	assert.True(t, p.IsOnline("u1"))

	assert.True(t, p.MarkOffline("u1", "c2"))
	assert.False(t, p.IsOnline("u1"))
	_, ok := p.LastSeen("u1")
	assert.False(t, ok)
}

func TestPresenceTracker_MarkOnlineIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	p := newTestPresence(clock)
	listener := &recordingPresenceListener{}
	p.SetListener(listener)

	p.MarkOnline("u1", "c1")
	clock.Advance(10 * time.Second)
	p.MarkOnline("u1", "c1")

	status := p.Status("u1")
	assert.True(t, status.Online)
	assert.Equal(t, 1, status.Connections)
	require.NotNil(t, status.LastSeenAt)
	assert.Equal(t, clock.Now(), *status.LastSeenAt)
	assert.Equal(t, []presenceTransition{{"u1", true}}, listener.all())
}

func TestPresenceTracker_MarkOfflineWithoutConnectionRemovesRecord(t *testing.T) {
	p := newTestPresence(newFakeClock())

	p.MarkOnline("u1", "c1")
	p.MarkOnline("u1", "c2")

	assert.True(t, p.MarkOffline("u1", ""))
	assert.False(t, p.IsOnline("u1"))
}

func TestPresenceTracker_UnknownOfflineIsNoOp(t *testing.T) {
	p := newTestPresence(newFakeClock())
	listener := &recordingPresenceListener{}
	p.SetListener(listener)

	assert.False(t, p.MarkOffline("ghost", "c1"))
	assert.False(t, p.MarkOffline("ghost", ""))
	assert.Empty(t, listener.all())
}

func TestPresenceTracker_OnlineTTL(t *testing.T) {
	clock := newFakeClock()
	p := newTestPresence(clock)

	p.MarkOnline("u1", "c1")
	clock.Advance(2*time.Minute - time.Second)
	assert.True(t, p.IsOnline("u1"))

	clock.Advance(time.Second)
	assert.False(t, p.IsOnline("u1"), "stale record reports offline without an explicit call")
	assert.Empty(t, p.ListOnline())

	p.Heartbeat("u1")
	assert.True(t, p.IsOnline("u1"))
	assert.Equal(t, 1, p.Status("u1").Connections, "heartbeat keeps connections")
}

func TestPresenceTracker_HeartbeatCreatesRecord(t *testing.T) {
	p := newTestPresence(newFakeClock())
	listener := &recordingPresenceListener{}
	p.SetListener(listener)

	p.Heartbeat("u1")

	assert.True(t, p.IsOnline("u1"))
	assert.Equal(t, 0, p.Status("u1").Connections)
	assert.Equal(t, []presenceTransition{{"u1", true}}, listener.all())
}

func TestPresenceTracker_ListOnlineIsSorted(t *testing.T) {
	clock := newFakeClock()
	p := newTestPresence(clock)

	p.MarkOnline("carol", "c3")
	p.MarkOnline("alice", "c1")
	clock.Advance(3 * time.Minute)
	p.MarkOnline("bob", "c2")
	p.Heartbeat("carol")

	assert.Equal(t, []string{"bob", "carol"}, p.ListOnline())
}

func TestPresenceTracker_Sweep(t *testing.T) {
	clock := newFakeClock()
	p := newTestPresence(clock)
	listener := &recordingPresenceListener{}
	p.SetListener(listener)

	p.Heartbeat("leaky")
	p.MarkOnline("connected", "c1")
	clock.Advance(4 * time.Minute)
	p.MarkOnline("fresh", "c2")

	assert.Equal(t, 0, p.Sweep(), "not yet past the stale TTL")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, p.Sweep())

	_, ok := p.LastSeen("leaky")
	assert.False(t, ok)
	_, ok = p.LastSeen("fresh")
	assert.True(t, ok)

	// Stale but still holding a connection: kept, reported offline by TTL.
	_, ok = p.LastSeen("connected")
	assert.True(t, ok)
	assert.False(t, p.IsOnline("connected"))
	assert.Equal(t, 1, p.Status("connected").Connections)

	assert.Equal(t, []presenceTransition{
		{"leaky", true},
		{"connected", true},
		{"fresh", true},
		{"leaky", false},
	}, listener.all())
}

func TestPresenceTracker_TransitionsReportedOnce(t *testing.T) {
	p := newTestPresence(newFakeClock())
	listener := &recordingPresenceListener{}
	p.SetListener(listener)

	p.MarkOnline("u1", "c1")
	p.MarkOnline("u1", "c2")
	p.Heartbeat("u1")
	p.MarkOffline("u1", "c1")
	p.MarkOffline("u1", "c2")
	p.MarkOffline("u1", "c2")

	assert.Equal(t, []presenceTransition{{"u1", true}, {"u1", false}}, listener.all())
}

func TestPresenceTracker_Concurrent(t *testing.T) {
	p := services.NewPresenceTracker(services.DefaultPresenceConfig(), nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := string(rune('a' + i%26))
			p.MarkOnline("u1", conn)
			p.IsOnline("u1")
			p.ListOnline()
			p.MarkOffline("u1", conn)
		}(i)
	}
	wg.Wait()

	assert.False(t, p.IsOnline("u1"))
}
