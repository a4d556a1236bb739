package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry routes a (provider, model) pair from a job's input to a Provider.
type Registry struct {
	mu          sync.RWMutex
	factories   map[string]ProviderFactory
	defaultName string
}

func NewRegistry(defaultName string) *Registry {
	return &Registry{
		factories:   make(map[string]ProviderFactory),
		defaultName: normalize(defaultName),
	}
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *Registry) Register(name string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalize(name)] = f
}

// Has reports whether name (or the default, when name is empty) is registered.
func (r *Registry) Has(name string) bool {
	name = normalize(name)
	if name == "" {
		name = r.defaultName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get resolves a provider. An empty name selects the registry default.
func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = normalize(name)
	if name == "" {
		name = r.defaultName
	}
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, strings.TrimSpace(model))
}
