package modules

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a fresh module instance.
type Factory func() Module

// Registry maps stable module class identifiers to constructors. It is
// built explicitly at startup and injected into the execution engine and
// the invalidation service; there is no process-wide registry state.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	kinds     map[string]Kind
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		kinds:     make(map[string]Kind),
	}
}

// Register binds a module class identifier to a constructor. Conformance is
// checked here, at registration time, not on each call: the factory must
// produce a module reporting a valid kind.
func (r *Registry) Register(class string, factory Factory) error {
	if class == "" {
		return fmt.Errorf("module class must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("module %q: factory must not be nil", class)
	}

	probe := factory()
	if probe == nil {
		return fmt.Errorf("module %q: factory returned nil", class)
	}
	kind := probe.Kind()
	if kind != KindSource && kind != KindProcessor {
		return fmt.Errorf("module %q: invalid kind %q", class, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[class]; exists {
		return fmt.Errorf("module %q already registered", class)
	}
	r.factories[class] = factory
	r.kinds[class] = kind
	return nil
}

// MustRegister panics on registration failure; meant for startup wiring.
func (r *Registry) MustRegister(class string, factory Factory) {
	if err := r.Register(class, factory); err != nil {
		panic(err)
	}
}

// New constructs a module instance for the class identifier.
func (r *Registry) New(class string) (Module, error) {
	r.mu.RLock()
	factory, ok := r.factories[class]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown module class %q", class)
	}
	return factory(), nil
}

// Kind reports the registered kind of a module class without constructing
// a new instance.
func (r *Registry) Kind(class string) (Kind, error) {
	r.mu.RLock()
	kind, ok := r.kinds[class]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown module class %q", class)
	}
	return kind, nil
}

// Classes returns the registered class identifiers in sorted order.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	classes := make([]string, 0, len(r.factories))
	for class := range r.factories {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}
