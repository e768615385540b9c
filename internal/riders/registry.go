package riders

import "sync"

// Registry holds the live rider entities, keyed by id. It is constructed at
// service start and injected into the service; there is no package-level
// instance.
type Registry struct {
	mu     sync.RWMutex
	riders map[string]*Rider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{riders: make(map[string]*Rider)}
}

// Put adds or replaces a rider entity.
func (r *Registry) Put(rider *Rider) {
	r.mu.Lock()
	r.riders[rider.ID] = rider
	r.mu.Unlock()
}

// Get returns the live entity for id, or nil.
func (r *Registry) Get(id string) *Rider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.riders[id]
}

// All returns a snapshot of the live entities.
func (r *Registry) All() []*Rider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Rider, 0, len(r.riders))
	for _, rd := range r.riders {
		out = append(out, rd)
	}
	return out
}
