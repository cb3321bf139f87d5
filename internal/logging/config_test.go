package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevelAliases(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":       zerolog.TraceLevel,
		"Diagnostics": zerolog.TraceLevel,
		" debug ":     zerolog.DebugLevel,
		"WARNING":     zerolog.WarnLevel,
		"error":       zerolog.ErrorLevel,
		"off":         zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q): got %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("parseLevel accepted an unknown level")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("parseLevel accepted an empty level")
	}
}

func TestEnvOverridesApply(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "nonsense")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.WarnLevel || !cfg.Timestamp || !cfg.NoColor || cfg.Bypass {
		t.Fatalf("overrides: %+v", cfg)
	}
}

func TestLoggerOmitsTimestampWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(Config{Out: &buf, NoColor: true})
	l.Info().Str("k", "v").Msg("hello")

	line := buf.String()
	if !strings.HasPrefix(line, "INF") || !strings.Contains(line, "k=v") {
		t.Fatalf("unexpected line %q", line)
	}
}
