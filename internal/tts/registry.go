package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registration is one provider offered by this process. Available is the
// snapshot taken at startup and never re-probed.
type Registration struct {
	Name      string
	Provider  Provider
	Available bool
}

// Registry holds the providers that passed their startup probe. It is
// written during startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds a provider under name. Names are unique; a second
// registration under the same name is rejected.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return fmt.Errorf("registering provider %q: name and provider are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[name]; dup {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.entries[name] = Registration{Name: name, Provider: p, Available: true}
	r.order = append(r.order, name)
	return nil
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return reg.Provider, true
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Available returns the registered provider names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// All returns every registration in registration order, for voice catalog
// aggregation.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Build probes each candidate and registers those that report available.
// A probe that errors, panics or reports false is logged and skipped so one
// broken backend cannot keep the others from serving. The registry must end
// up containing required, otherwise ErrNoDefaultProvider is returned.
func Build(ctx context.Context, logger *slog.Logger, required string, candidates ...Provider) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry()
	for _, p := range candidates {
		if p == nil {
			continue
		}
		name := p.Capabilities().Name
		ok, err := probe(ctx, p)
		if err != nil {
			logger.Warn("provider probe failed, skipping", "provider", name, "error", err)
			continue
		}
		if !ok {
			logger.Info("provider not available, skipping", "provider", name)
			continue
		}
		if err := reg.Register(name, p); err != nil {
			logger.Warn("provider registration rejected", "provider", name, "error", err)
			continue
		}
		logger.Info("provider registered", "provider", name)
	}

	if !reg.Has(required) {
		return reg, fmt.Errorf("%w: %s", ErrNoDefaultProvider, required)
	}
	return reg, nil
}

func probe(ctx context.Context, p Provider) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Available(ctx)
}
