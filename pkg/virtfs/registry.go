package virtfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps URL schemes to backend drivers.
// It provides thread-safe registration and lookup.
//
// Example usage:
//
//	reg := virtfs.NewRegistry()
//	reg.Register("mem", memory.NewDriver(server))
//	fsys, err := virtfs.New("mem://host/export", virtfs.WithRegistry(reg))
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds a driver under scheme.
// Returns an error if the scheme is empty, the driver is nil, or a driver is
// already registered for the scheme.
func (r *Registry) Register(scheme string, d Driver) error {
	if d == nil {
		return fmt.Errorf("cannot register nil driver")
	}
	scheme = strings.ToLower(scheme)
	if scheme == "" {
		return fmt.Errorf("cannot register driver with empty scheme")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[scheme]; exists {
		return fmt.Errorf("driver for scheme %q already registered", scheme)
	}

	r.drivers[scheme] = d
	return nil
}

// Unregister removes the driver for scheme, if any.
func (r *Registry) Unregister(scheme string) {
	r.mu.Lock()
	delete(r.drivers, strings.ToLower(scheme))
	r.mu.Unlock()
}

// Lookup returns the driver registered for scheme.
func (r *Registry) Lookup(scheme string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[strings.ToLower(scheme)]
	return d, ok
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.drivers))
	for s := range r.drivers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used when New is not
// given WithRegistry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a driver to the default registry.
func Register(scheme string, d Driver) error {
	return defaultRegistry.Register(scheme, d)
}
