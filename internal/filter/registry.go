package filter

import "sync"

// Factory builds a Filter from its decoded configuration properties. The
// concrete props type is filter-kind specific; config wiring is responsible
// for passing the right shape.
type Factory func(props map[string]interface{}) (Filter, error)

// Registry is an explicit, non-global map of filter-kind name to Factory,
// injected at bootstrap time rather than held as package state — per the
// "inject registries explicitly" guidance applied throughout this module
// (see also upstream.poolRegistry).
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a Factory under kind, replacing any Factory already
// registered for it. Concurrent calls are serialized by the write lock; for
// the same kind the last writer wins.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Build looks up kind and invokes its Factory with props.
func (r *Registry) Build(kind string, props map[string]interface{}) (Filter, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownKindError{Kind: kind}
	}
	return f(props)
}

// UnknownKindError is returned by Build for an unregistered filter kind.
type UnknownKindError struct{ Kind string }

func (e *UnknownKindError) Error() string { return "filter: unknown kind " + e.Kind }
