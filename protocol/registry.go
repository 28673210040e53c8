package protocol

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gobwas/glob"
)

// Names of the built-in descriptors.
const (
	NameIPv4   = "ipv4"
	NameICMPv4 = "icmpv4"
	NameUDP    = "udp"
)

// Registry maps protocol names to descriptors. It is safe for concurrent
// use; descriptors themselves are immutable.
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{protocols: map[string]Protocol{}}
}

// Builtin returns a registry populated with the built-in descriptors.
func Builtin() *Registry {
	r := NewRegistry()
	for _, p := range []Protocol{NewIPv4(), NewICMPv4(), NewUDP()} {
		if err := r.Register(p); err != nil {
			// Built-in names are distinct constants.
			panic(err)
		}
	}
	return r
}

// Register adds a descriptor. Registering a name twice is an error.
func (r *Registry) Register(p Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, ok := r.protocols[name]; ok {
		return fmt.Errorf("protocol %q is already registered", name)
	}
	r.protocols[name] = p
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.protocols[name]
	return p, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match returns the descriptors whose names match the given glob pattern,
// sorted by name.
func (r *Registry) Match(pattern string) ([]Protocol, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		if g.Match(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Protocol, 0, len(names))
	for _, name := range names {
		out = append(out, r.protocols[name])
	}
	return out, nil
}
