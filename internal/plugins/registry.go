package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/connprov/internal/connprov"
)

var (
	mu       sync.RWMutex
	registry = map[string]Plugin{}
)

// Register adds p, replacing any plugin of the same name.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	registry[p.Name] = p
}

func Get(name string) (Plugin, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// Names lists the registered types in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Construct builds a provider of the named type.
func Construct(name string, info connprov.ConstructInfo) (connprov.Provider, error) {
	p, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider type %q", name)
	}
	return p.Construct(info)
}
