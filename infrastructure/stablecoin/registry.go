package stablecoin

import (
	"fmt"
	"sort"
	"sync"

	"settlement/domain/entities"
	"settlement/domain/interfaces"
)

// Registry resolves the adapter of each settlement currency
type Registry struct {
	mu       sync.RWMutex
	adapters map[entities.StablecoinType]interfaces.StablecoinAdapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[entities.StablecoinType]interfaces.StablecoinAdapter),
	}
}

// Register sets the adapter of its currency, replacing any previous one
func (r *Registry) Register(adapter interfaces.StablecoinAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Info().Currency] = adapter
}

// AdapterFor returns the adapter registered for currency
func (r *Registry) AdapterFor(currency entities.StablecoinType) (interfaces.StablecoinAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[currency]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %s", currency)
	}
	return adapter, nil
}

// Infos describes every registered adapter, ordered by currency
func (r *Registry) Infos() []interfaces.AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]interfaces.AdapterInfo, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		infos = append(infos, adapter.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Currency < infos[j].Currency })
	return infos
}
