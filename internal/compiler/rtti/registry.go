package rtti

import (
	"sort"
	"sync"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
)

// Factory creates a fresh, attribute-less instance of a registered variant.
type Factory func() Typed

// Entry is one registered variant.
type Entry struct {
	Info    *TypeInfo
	Factory Factory
}

// Registry is the lifecycle-scoped table of known discrete types. It is built
// once at startup, sealed, and then passed by reference to whoever needs it.
// Reads are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	sealed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Key]*Entry),
	}
}

// Register adds info to the registry. Registering the same *TypeInfo twice is a
// no-op; registering a distinct TypeInfo with an existing (name, version) is a
// configuration error.
func (r *Registry) Register(info *TypeInfo, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errors.NewRegistrySealed(info.String())
	}

	if existing, ok := r.entries[info.Key()]; ok {
		if existing.Info == info {
			if factory != nil && existing.Factory == nil {
				existing.Factory = factory
			}
			return nil
		}
		return errors.NewDuplicateType(info.Name(), info.Version())
	}

	r.entries[info.Key()] = &Entry{Info: info, Factory: factory}
	return nil
}

// MustRegister is Register for package initialisation paths where a duplicate
// is a programming error.
func (r *Registry) MustRegister(info *TypeInfo, factory Factory) {
	if err := r.Register(info, factory); err != nil {
		panic(err)
	}
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup finds a registered variant by name and version.
func (r *Registry) Lookup(name string, version uint64) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{Name: name, Version: version}]
	return e, ok
}

// LookupLatest finds the highest registered version of name.
func (r *Registry) LookupLatest(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Entry
	for key, e := range r.entries {
		if key.Name != name {
			continue
		}
		if best == nil || key.Version > best.Info.Version() {
			best = e
		}
	}
	return best, best != nil
}

// Contains reports whether exactly this TypeInfo is registered.
func (r *Registry) Contains(info *TypeInfo) bool {
	e, ok := r.Lookup(info.Name(), info.Version())
	return ok && e.Info == info
}

// Types returns all registered infos sorted by name, then version.
func (r *Registry) Types() []*TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TypeInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name() != out[j].Name() {
			return out[i].Name() < out[j].Name()
		}
		return out[i].Version() < out[j].Version()
	})
	return out
}

// Len returns the number of registered variants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
