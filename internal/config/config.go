package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// EnvAdminToken overrides admin.token so the secret can stay out of the file.
const EnvAdminToken = "CONNPROV_ADMIN_TOKEN"

const (
	DefaultName      = "connprovd"
	DefaultAdminAddr = "127.0.0.1:6580"
	DefaultLogLevel  = "info"
)

// Provider types understood by the daemon.
const (
	TypeTCP      = "tcp"
	TypeLocalIPC = "localipc"
)

var ErrUnknownKeys = errors.New("config: unknown keys")

// DaemonConfig is the connprovd configuration file.
type DaemonConfig struct {
	Name      string           `toml:"name" validate:"required"`
	LogLevel  string           `toml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	Admin     AdminConfig      `toml:"admin"`
	Workers   WorkersConfig    `toml:"workers"`
	Providers []ProviderConfig `toml:"providers" validate:"required,min=1,unique=Name,dive"`
}

// AdminConfig controls the HTTP admin surface. An empty Addr disables it; a
// non-empty Token is required as a bearer token on every route but /health
// and /ready.
type AdminConfig struct {
	Addr  string `toml:"addr" validate:"omitempty,hostname_port"`
	Token string `toml:"token"`
}

// WorkersConfig sizes the pool accepted connections are dispatched onto.
type WorkersConfig struct {
	Size int `toml:"size" validate:"gte=1,lte=65536"`
}

// ProviderConfig is one [[providers]] table. Options are passed to the
// transport verbatim, e.g. Port = "6500" or "SSL/ServerCertificate" = "...".
type ProviderConfig struct {
	Name    string            `toml:"name" validate:"required"`
	Type    string            `toml:"type" validate:"required,oneof=tcp localipc"`
	Mode    string            `toml:"mode" validate:"omitempty,oneof=inbound outbound both"`
	Options map[string]string `toml:"options"`
}

// Default returns the configuration used when no file is given: one plain
// TCP provider and one local IPC provider.
func Default() DaemonConfig {
	return DaemonConfig{
		Name:     DefaultName,
		LogLevel: DefaultLogLevel,
		Admin:    AdminConfig{Addr: DefaultAdminAddr},
		Workers:  WorkersConfig{Size: defaultWorkers},
		Providers: []ProviderConfig{
			{Name: "tcp", Type: TypeTCP, Mode: "both"},
			{Name: "local", Type: TypeLocalIPC, Mode: "both"},
		},
	}
}

// Load decodes path over Default. Keys absent from the file keep their
// default; a present but empty admin.addr disables the admin server.
func Load(path string) (DaemonConfig, error) {
	cfg := Default()

	var raw DaemonConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return DaemonConfig{}, fmt.Errorf("%w in %s: %s", ErrUnknownKeys, path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("workers", "size") {
		cfg.Workers.Size = raw.Workers.Size
	}
	if meta.IsDefined("providers") {
		cfg.Providers = normalizeProviders(raw.Providers)
	}

	if err := Validate(cfg); err != nil {
		return DaemonConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg with its struct tags.
func Validate(cfg DaemonConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs)
		}
		return err
	}
	return nil
}

func describe(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "DaemonConfig.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func normalizeProviders(in []ProviderConfig) []ProviderConfig {
	out := make([]ProviderConfig, 0, len(in))
	for _, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		p.Mode = strings.ToLower(strings.TrimSpace(p.Mode))
		out = append(out, p)
	}
	return out
}
