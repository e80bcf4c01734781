package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider of one adapter family.
type Factory func(cfg ProviderConfig, opts Options) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an adapter family available under providerType.
// It panics on duplicates, so call it from init.
func Register(providerType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[providerType]; exists {
		panic(fmt.Sprintf("provider factory %s already registered", providerType))
	}
	factories[providerType] = f
}

func Get(providerType string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[providerType]
	if !ok {
		return nil, fmt.Errorf("provider factory not found for type: %s", providerType)
	}
	return f, nil
}

// Types lists the registered adapter families.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewProvider looks up the adapter family of cfg and builds it.
func NewProvider(cfg ProviderConfig, opts Options) (Provider, error) {
	f, err := Get(cfg.AdapterType())
	if err != nil {
		return nil, fmt.Errorf("factory lookup failed for %s: %w", cfg.ID, err)
	}
	return f(cfg, opts.withDefaults())
}
