package drivers

import "sync"

// Registry holds the live driver records. It is constructed at service start
// and injected wherever driver handles are needed; availability on the
// records it holds is the authoritative flag dispatch claims against.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]*Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]*Driver)}
}

// Put adds or replaces a driver record.
func (r *Registry) Put(d *Driver) {
	r.mu.Lock()
	r.drivers[d.ID] = d
	r.mu.Unlock()
}

// Get returns the live record for id, or nil.
func (r *Registry) Get(id string) *Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.drivers[id]
}

// Release returns a claimed driver to the available pool. Unknown ids are
// ignored (the driver may have gone offline mid-trip).
func (r *Registry) Release(id string) {
	if d := r.Get(id); d != nil {
		d.Release()
	}
}
