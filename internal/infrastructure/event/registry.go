package event

import (
	"sync"

	"github.com/erp/rostersync/internal/domain/shared"
)

// Registration is one locally present component and the listeners it binds
type Registration struct {
	Name     string
	Instance any
	Bindings shared.Bindings
}

// Registry keeps component registrations in registration order. Registering
// an existing name replaces the entry in place.
type Registry struct {
	mu      sync.RWMutex
	entries []Registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds or replaces a registration and reports whether it replaced one
func (r *Registry) Register(reg Registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].Name == reg.Name {
			r.entries[i] = reg
			return true
		}
	}
	r.entries = append(r.entries, reg)
	return false
}

// Unregister removes a registration by name and reports whether it existed
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].Name == name {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the registration for name
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Registration{}, false
}

// Snapshot returns a copy of the registrations in order. Dispatch iterates a
// snapshot so listeners may register or unregister components mid fan-out.
func (r *Registry) Snapshot() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the registered component names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of registrations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
