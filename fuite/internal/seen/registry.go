// Package seen tracks recently processed paste identifiers across all site
// pollers.
//
// The registry is a strict FIFO set with a fixed capacity: inserting at
// capacity evicts the oldest entry. Identifiers are namespaced by site so
// two sites using the same short ID scheme cannot shadow each other.
package seen

import "sync"

// Registry is a bounded FIFO recency set, safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	capacity int
	order    []string
	members  map[string]struct{}
}

// NewRegistry creates a registry holding at most capacity identifiers.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 500
	}
	return &Registry{
		capacity: capacity,
		members:  make(map[string]struct{}, capacity),
	}
}

func key(site, id string) string { return site + "/" + id }

// Contains reports whether the identifier was already processed.
func (r *Registry) Contains(site, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[key(site, id)]
	return ok
}

// Add records an identifier, evicting the oldest entry if at capacity.
// Adding an identifier that is already present is a no-op.
func (r *Registry) Add(site, id string) {
	k := key(site, id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[k]; ok {
		return
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.members, oldest)
	}
	r.order = append(r.order, k)
	r.members[k] = struct{}{}
}

// Len reports the current number of tracked identifiers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
