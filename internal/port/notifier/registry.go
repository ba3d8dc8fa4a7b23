package notifier

import (
	"fmt"
	"sync"
)

// Factory builds a Notifier from provider-specific configuration.
type Factory func(config map[string]string) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a provider available by name. Adapters call it from
// init().
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("notifier: duplicate registration for %q", name))
	}
	factories[name] = f
}

// New constructs a Notifier by provider name.
func New(name string, config map[string]string) (Notifier, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notifier: unknown provider %q", name)
	}
	return f(config)
}

// Available lists registered provider names.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
