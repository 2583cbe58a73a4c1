package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"ripple-chat/internal/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type nopConn struct{}

func (nopConn) Push([]byte) error { return nil }
func (nopConn) Close()            {}

type countingLastSeen struct {
	mu      sync.Mutex
	touches int
	last    map[uuid.UUID]time.Time
}

func newCountingLastSeen() *countingLastSeen {
	return &countingLastSeen{last: make(map[uuid.UUID]time.Time)}
}

func (c *countingLastSeen) Touch(_ context.Context, userID uuid.UUID, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touches++
	c.last[userID] = t
	return nil
}

func (c *countingLastSeen) Get(_ context.Context, userID uuid.UUID) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[userID]
	return t, ok, nil
}

func TestOnlineTracksOccupancy(t *testing.T) {
	reg := registry.NewRegistry()
	tracker := NewTracker(reg, NewMemoryLastSeen())
	userID := uuid.New()
	scope := uuid.New()

	assert.False(t, tracker.IsOnline(userID))

	token1 := reg.Register(userID, scope, nopConn{})
	token2 := reg.Register(userID, scope, nopConn{})
	assert.True(t, tracker.IsOnline(userID))

	reg.Unregister(token1)
	assert.True(t, tracker.IsOnline(userID))

	reg.Unregister(token2)
	assert.False(t, tracker.IsOnline(userID))
}

func TestLastSeenWrittenOnceOnOfflineEdge(t *testing.T) {
	reg := registry.NewRegistry()
	store := newCountingLastSeen()
	tracker := NewTracker(reg, store)
	userID := uuid.New()
	scope := uuid.New()

	_, ok := tracker.LastSeen(userID)
	assert.False(t, ok)

	token1 := reg.Register(userID, scope, nopConn{})
	token2 := reg.Register(userID, scope, nopConn{})

	// Dropping one of two connections is not an offline edge.
	reg.Unregister(token1)
	store.mu.Lock()
	assert.Equal(t, 0, store.touches)
	store.mu.Unlock()

	before := time.Now()
	reg.Unregister(token2)
	store.mu.Lock()
	assert.Equal(t, 1, store.touches)
	store.mu.Unlock()

	lastSeen, ok := tracker.LastSeen(userID)
	assert.True(t, ok)
	assert.False(t, lastSeen.Before(before))
}

func TestTrackerFansOutTransitions(t *testing.T) {
	reg := registry.NewRegistry()
	tracker := NewTracker(reg, NewMemoryLastSeen())
	userID := uuid.New()

	var mu sync.Mutex
	var edges []bool
	tracker.OnTransition(func(id uuid.UUID, online bool) {
		mu.Lock()
		edges = append(edges, online)
		mu.Unlock()
	})

	token := reg.Register(userID, uuid.New(), nopConn{})
	reg.Unregister(token)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, edges)
}

func TestUnknownUserReportsOffline(t *testing.T) {
	reg := registry.NewRegistry()
	tracker := NewTracker(reg, NewMemoryLastSeen())

	assert.False(t, tracker.IsOnline(uuid.New()))
	_, ok := tracker.LastSeen(uuid.New())
	assert.False(t, ok)
}
