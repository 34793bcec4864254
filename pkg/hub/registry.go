package hub

import (
	"sync"

	"chathub/pkg/models"
)

// Registry is the bidirectional mapping between live connections and
// identities. One identity may own many simultaneous connections
// (multi-device); a connection binds at most once, at open time. An
// unbound connection is a valid, inert state, not a failure.
type Registry struct {
	mu      sync.RWMutex
	byConn  map[string]string
	byIdent map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:  make(map[string]string),
		byIdent: make(map[string]map[string]struct{}),
	}
}

// Bind registers connID under identity. Rebinding an already-bound
// connection is ignored; bindings are set once at connection open.
func (r *Registry) Bind(connID, identity string) {
	identity = models.CanonIdentity(identity)
	if identity == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, bound := r.byConn[connID]; bound {
		return
	}
	r.byConn[connID] = identity
	set := r.byIdent[identity]
	if set == nil {
		set = make(map[string]struct{})
		r.byIdent[identity] = set
	}
	set[connID] = struct{}{}
	boundConnections.Inc()
}

// Unbind removes the mapping for connID. Idempotent; called on every
// connection close regardless of prior bind state.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	if set := r.byIdent[identity]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byIdent, identity)
		}
	}
	boundConnections.Dec()
}

// ConnectionsFor returns the live connection ids bound to identity. The
// result is a copy; empty when nobody is connected.
func (r *Registry) ConnectionsFor(identity string) []string {
	identity = models.CanonIdentity(identity)
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byIdent[identity]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// IdentityOf returns the identity bound to connID, if any.
func (r *Registry) IdentityOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[connID]
	return id, ok
}

// Bound returns the number of currently bound connections.
func (r *Registry) Bound() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
