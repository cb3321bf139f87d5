package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ProviderLogger returns the logger a provider writes through: the one passed
// at construction, or the global logger, tagged with the provider name.
func ProviderLogger(base *zerolog.Logger, provider string) zerolog.Logger {
	l := log.Logger
	if base != nil {
		l = *base
	}
	return l.With().Str("provider", provider).Logger()
}
