// Package presence tracks which user profile is bound to each live connection.
//
// The registry is not safe for concurrent use. It is owned by the dispatcher
// goroutine, which serializes every access.
package presence

// Presence is the binding between a connection and an authenticated user.
type Presence struct {
	ConnID      string
	UserID      string
	DisplayName string
	AvatarRef   string
}

type Registry struct {
	byConn map[string]*Presence
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]*Presence)}
}

// Identify stores p, replacing any profile already bound to p.ConnID.
// It reports whether the connection was new.
func (r *Registry) Identify(p Presence) bool {
	if existing, ok := r.byConn[p.ConnID]; ok {
		*existing = p
		return false
	}
	stored := p
	r.byConn[p.ConnID] = &stored
	r.order = append(r.order, p.ConnID)
	return true
}

func (r *Registry) Get(connID string) (Presence, bool) {
	p, ok := r.byConn[connID]
	if !ok {
		return Presence{}, false
	}
	return *p, true
}

// Remove deletes the presence for connID. Removing an unknown connection is a no-op.
func (r *Registry) Remove(connID string) (Presence, bool) {
	p, ok := r.byConn[connID]
	if !ok {
		return Presence{}, false
	}
	delete(r.byConn, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *p, true
}

// All returns every presence in identification order.
func (r *Registry) All() []Presence {
	out := make([]Presence, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byConn[id])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.byConn)
}
