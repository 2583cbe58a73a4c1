package registry

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type nopConn struct{}

func (nopConn) Push([]byte) error { return nil }
func (nopConn) Close()            {}

func TestRegisterAndOccupancy(t *testing.T) {
	reg := NewRegistry()
	userID := uuid.New()
	scope := uuid.New()

	assert.Equal(t, 0, reg.Occupancy(userID))

	token1 := reg.Register(userID, scope, nopConn{})
	token2 := reg.Register(userID, scope, nopConn{})
	assert.Equal(t, 2, reg.Occupancy(userID))
	assert.NotEqual(t, token1, token2)

	reg.Unregister(token1)
	assert.Equal(t, 1, reg.Occupancy(userID))
	reg.Unregister(token2)
	assert.Equal(t, 0, reg.Occupancy(userID))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	userID := uuid.New()

	token := reg.Register(userID, uuid.New(), nopConn{})
	assert.True(t, reg.Unregister(token))
	assert.False(t, reg.Unregister(token))
	assert.False(t, reg.Unregister(token))
	assert.Equal(t, 0, reg.Occupancy(userID))
}

func TestTransitionFiresOnEdgesOnly(t *testing.T) {
	reg := NewRegistry()
	userID := uuid.New()
	scope := uuid.New()

	var mu sync.Mutex
	var edges []bool
	reg.OnTransition(func(id uuid.UUID, online bool) {
		if id != userID {
			return
		}
		mu.Lock()
		edges = append(edges, online)
		mu.Unlock()
	})

	// Two overlapping connections: only the first register and the last
	// unregister are edges.
	token1 := reg.Register(userID, scope, nopConn{})
	token2 := reg.Register(userID, scope, nopConn{})
	reg.Unregister(token1)
	reg.Unregister(token2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, edges)
}

func TestScopedConnections(t *testing.T) {
	reg := NewRegistry()
	userID := uuid.New()
	scopeA := uuid.New()
	scopeB := uuid.New()

	reg.Register(userID, scopeA, nopConn{})
	reg.Register(userID, scopeA, nopConn{})
	reg.Register(userID, scopeB, nopConn{})

	assert.Len(t, reg.ScopedConnections(userID, scopeA), 2)
	assert.Len(t, reg.ScopedConnections(userID, scopeB), 1)
	assert.Len(t, reg.ConnectionsFor(userID), 3)
}

func TestConnectionsInScopeSpansUsers(t *testing.T) {
	reg := NewRegistry()
	scope := uuid.New()

	for i := 0; i < 5; i++ {
		reg.Register(uuid.New(), scope, nopConn{})
	}
	reg.Register(uuid.New(), uuid.New(), nopConn{})

	assert.Len(t, reg.ConnectionsInScope(scope), 5)
}

func TestScopeOf(t *testing.T) {
	reg := NewRegistry()
	userID := uuid.New()
	scope := uuid.New()

	token := reg.Register(userID, scope, nopConn{})
	got, ok := reg.ScopeOf(token)
	assert.True(t, ok)
	assert.Equal(t, scope, got)

	reg.Unregister(token)
	_, ok = reg.ScopeOf(token)
	assert.False(t, ok)
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	reg := NewRegistry()
	scope := uuid.New()
	users := make([]uuid.UUID, 8)
	for i := range users {
		users[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for _, userID := range users {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				token := reg.Register(id, scope, nopConn{})
				reg.Unregister(token)
			}(userID)
		}
	}
	wg.Wait()

	for _, userID := range users {
		assert.Equal(t, 0, reg.Occupancy(userID))
	}
	assert.Empty(t, reg.ConnectionsInScope(scope))
}
