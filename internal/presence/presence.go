package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"ripple-chat/internal/registry"

	"github.com/google/uuid"
)

// LastSeenStore records the moment a user's last connection closed.
type LastSeenStore interface {
	Touch(ctx context.Context, userID uuid.UUID, t time.Time) error
	Get(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
}

// MemoryLastSeen is the default in-process store.
type MemoryLastSeen struct {
	mu   sync.RWMutex
	seen map[uuid.UUID]time.Time
}

func NewMemoryLastSeen() *MemoryLastSeen {
	return &MemoryLastSeen{seen: make(map[uuid.UUID]time.Time)}
}

func (m *MemoryLastSeen) Touch(_ context.Context, userID uuid.UUID, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[userID] = t
	return nil
}

func (m *MemoryLastSeen) Get(_ context.Context, userID uuid.UUID) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.seen[userID]
	return t, ok, nil
}

// Tracker derives online/offline state from registry occupancy. The online
// flag is never stored; it is recomputed from the registry on every query.
type Tracker struct {
	reg   *registry.Registry
	store LastSeenStore

	mu   sync.RWMutex
	subs []registry.TransitionFunc
}

func NewTracker(reg *registry.Registry, store LastSeenStore) *Tracker {
	t := &Tracker{reg: reg, store: store}
	reg.OnTransition(t.handleTransition)
	return t
}

// handleTransition records last-seen exactly once, on the non-zero to zero
// edge, then fans the edge out to subscribers.
func (t *Tracker) handleTransition(userID uuid.UUID, online bool) {
	if !online {
		if err := t.store.Touch(context.Background(), userID, time.Now()); err != nil {
			log.Printf("Presence: failed to record last-seen for user %s: %v", userID, err)
		}
	}

	t.mu.RLock()
	subs := make([]registry.TransitionFunc, len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()
	for _, fn := range subs {
		fn(userID, online)
	}
}

// IsOnline is true iff the registry holds at least one connection for the
// user. Unknown users report offline; presence queries never fail.
func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	return t.reg.Occupancy(userID) > 0
}

// LastSeen returns the recorded last-seen timestamp, if any.
func (t *Tracker) LastSeen(userID uuid.UUID) (time.Time, bool) {
	ts, ok, err := t.store.Get(context.Background(), userID)
	if err != nil {
		log.Printf("Presence: failed to read last-seen for user %s: %v", userID, err)
		return time.Time{}, false
	}
	return ts, ok
}

// OnTransition subscribes to online/offline edges.
func (t *Tracker) OnTransition(fn registry.TransitionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}
