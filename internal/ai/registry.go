package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry maps provider names to factories. The chat service resolves the
// configured provider on every turn, so switching providers or models is a
// config change; nothing holds a provider instance across turns.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterWithDefaultModel registers a provider whose model falls back to
// defaultModel when the caller does not name one. Both binaries wire their
// providers through this so the default lives in one place.
func (r *Registry) RegisterWithDefaultModel(name, defaultModel string, build func(model string) (Provider, error)) {
	r.Register(name, func(_ context.Context, model string) (Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = defaultModel
		}
		return build(m)
	})
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}
