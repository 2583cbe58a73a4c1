package registry

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Connection is one live transport session for one user, bound to a single
// scope (conversation or room). The registry owns the mapping, never the
// transport itself.
type Connection interface {
	// Push queues a payload on the connection's outbound stream. It must
	// return within a bounded window; an error means the connection is dead
	// or too slow and will be torn down by the caller.
	Push(payload []byte) error
	Close()
}

// Entry is one registered connection.
type Entry struct {
	Token  uuid.UUID
	UserID uuid.UUID
	Scope  uuid.UUID
	Conn   Connection
}

// TransitionFunc observes online/offline edges. It is invoked exactly when a
// user's occupancy crosses zero, not on every connect/disconnect.
type TransitionFunc func(userID uuid.UUID, online bool)

const shardCount = 16

// Connection sets are sharded by user ID so unrelated users' registrations
// never contend on the same lock.
type shard struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[uuid.UUID]*Entry // userID -> token -> entry
}

// Registry maps a user identity to the set of currently-open connections.
// Multiple concurrent registrations per user are legal (multi-device).
type Registry struct {
	shards [shardCount]*shard

	tokenMu sync.RWMutex
	tokens  map[uuid.UUID]uuid.UUID // token -> userID

	transMu     sync.RWMutex
	transitions []TransitionFunc
}

func NewRegistry() *Registry {
	r := &Registry{
		tokens: make(map[uuid.UUID]uuid.UUID),
	}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[uuid.UUID]map[uuid.UUID]*Entry)}
	}
	return r
}

func (r *Registry) shardFor(userID uuid.UUID) *shard {
	return r.shards[int(userID[0])%shardCount]
}

// OnTransition subscribes to online/offline edges.
func (r *Registry) OnTransition(fn TransitionFunc) {
	r.transMu.Lock()
	defer r.transMu.Unlock()
	r.transitions = append(r.transitions, fn)
}

func (r *Registry) notify(userID uuid.UUID, online bool) {
	r.transMu.RLock()
	subs := make([]TransitionFunc, len(r.transitions))
	copy(subs, r.transitions)
	r.transMu.RUnlock()
	for _, fn := range subs {
		fn(userID, online)
	}
}

// Register adds a connection for the user, scoped to one conversation, and
// returns the registration token used to unregister it later.
func (r *Registry) Register(userID, scope uuid.UUID, conn Connection) uuid.UUID {
	token := uuid.New()

	r.tokenMu.Lock()
	r.tokens[token] = userID
	r.tokenMu.Unlock()

	s := r.shardFor(userID)
	s.mu.Lock()
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = make(map[uuid.UUID]*Entry)
	}
	wentOnline := len(s.users[userID]) == 0
	s.users[userID][token] = &Entry{Token: token, UserID: userID, Scope: scope, Conn: conn}
	total := len(s.users[userID])
	s.mu.Unlock()

	log.Printf("Registry: connection registered for user %s (scope %s). Total connections for user: %d", userID, scope, total)

	if wentOnline {
		r.notify(userID, true)
	}
	return token
}

// Unregister removes a connection by token and reports whether it was still
// registered. Unregistering an already-removed token is a no-op.
func (r *Registry) Unregister(token uuid.UUID) bool {
	r.tokenMu.Lock()
	userID, ok := r.tokens[token]
	if ok {
		delete(r.tokens, token)
	}
	r.tokenMu.Unlock()
	if !ok {
		return false
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	wentOffline := false
	if conns, exists := s.users[userID]; exists {
		if _, held := conns[token]; held {
			delete(conns, token)
			if len(conns) == 0 {
				delete(s.users, userID)
				wentOffline = true
			}
		}
	}
	s.mu.Unlock()

	if wentOffline {
		log.Printf("Registry: user %s has no more connections.", userID)
		r.notify(userID, false)
	}
	return true
}

// Occupancy reports the number of live connections for the user.
func (r *Registry) Occupancy(userID uuid.UUID) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// ConnectionsFor returns all live connections for the user.
func (r *Registry) ConnectionsFor(userID uuid.UUID) []*Entry {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*Entry, 0, len(s.users[userID]))
	for _, e := range s.users[userID] {
		entries = append(entries, e)
	}
	return entries
}

// ScopedConnections returns the user's connections currently bound to the
// given conversation.
func (r *Registry) ScopedConnections(userID, scope uuid.UUID) []*Entry {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []*Entry
	for _, e := range s.users[userID] {
		if e.Scope == scope {
			entries = append(entries, e)
		}
	}
	return entries
}

// ConnectionsInScope returns every connection bound to the conversation,
// across all users. Used for scope-wide broadcasts (typing, presence edges).
func (r *Registry) ConnectionsInScope(scope uuid.UUID) []*Entry {
	var entries []*Entry
	for _, s := range r.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			for _, e := range conns {
				if e.Scope == scope {
					entries = append(entries, e)
				}
			}
		}
		s.mu.RUnlock()
	}
	return entries
}

// ScopeOf reports which conversation a registration token is bound to.
func (r *Registry) ScopeOf(token uuid.UUID) (uuid.UUID, bool) {
	r.tokenMu.RLock()
	userID, ok := r.tokens[token]
	r.tokenMu.RUnlock()
	if !ok {
		return uuid.Nil, false
	}

	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conns, exists := s.users[userID]; exists {
		if e, held := conns[token]; held {
			return e.Scope, true
		}
	}
	return uuid.Nil, false
}
