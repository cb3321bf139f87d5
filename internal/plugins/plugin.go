// Package plugins maps provider type names to their constructors.
package plugins

import "github.com/danmuck/connprov/internal/connprov"

// Factory constructs one provider.
type Factory func(info connprov.ConstructInfo) (connprov.Provider, error)

// Plugin is a named provider type.
type Plugin struct {
	Name      string
	Construct Factory
}
