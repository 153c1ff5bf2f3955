package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidbz/cookbook/internal/domain"
)

// Registry implements the AdapterRegistry interface.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderName]domain.Adapter
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:       sync.RWMutex{},
		adapters: make(map[domain.ProviderName]domain.Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(_ context.Context, adapter domain.Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	name := adapter.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.adapters[name] = adapter

	return nil
}

// Get retrieves an adapter by provider name.
func (r *Registry) Get(_ context.Context, name domain.ProviderName) (domain.Adapter, error) {
	if name == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}

	return adapter, nil
}

// List returns all registered provider names in sorted order.
func (r *Registry) List(_ context.Context) []domain.ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]domain.ProviderName, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}
