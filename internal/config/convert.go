package config

import (
	"sort"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/workers"
)

const defaultWorkers = workers.DefaultSize

// ConstructOptions returns the provider options sorted by name so the
// transport sees them in a stable order.
func (p ProviderConfig) ConstructOptions() []connprov.Option {
	names := make([]string, 0, len(p.Options))
	for name := range p.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	opts := make([]connprov.Option, 0, len(names))
	for _, name := range names {
		opts = append(opts, connprov.Option{Name: name, Value: p.Options[name]})
	}
	return opts
}

func (p ProviderConfig) ProviderMode() (connprov.Mode, error) {
	return connprov.ParseMode(p.Mode)
}
