package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry maps live connections to the name they registered with.
// It only holds connection identities and never closes a connection: the
// transport owns that lifecycle.
type Registry struct {
	mu    sync.RWMutex
	names map[domain.ConnID]domain.DisplayName
	order []domain.ConnID // first registration order
}

func NewRegistry() *Registry {
	return &Registry{
		names: make(map[domain.ConnID]domain.DisplayName),
	}
}

// Register inserts or overwrites the name of conn and returns the previous
// one. A rename keeps the connection at its original position.
func (r *Registry) Register(conn domain.ConnID, name domain.DisplayName) (domain.DisplayName, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, existed := r.names[conn]
	if !existed {
		r.order = append(r.order, conn)
	}
	r.names[conn] = name
	return previous, existed
}

// Unregister removes conn and returns the name it had. Unknown connections
// are a no-op.
func (r *Registry) Unregister(conn domain.ConnID) (domain.DisplayName, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.names[conn]
	if !ok {
		return "", false
	}
	delete(r.names, conn)
	r.order = slices.DeleteFunc(r.order, func(c domain.ConnID) bool { return c == conn })
	return name, true
}

func (r *Registry) Lookup(conn domain.ConnID) (domain.DisplayName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.names[conn]
	return name, ok
}

// AllLive returns a snapshot of every registered peer in registration order.
func (r *Registry) AllLive() []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(conn domain.ConnID, _ int) domain.Peer {
		return domain.Peer{Conn: conn, Name: r.names[conn]}
	})
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
