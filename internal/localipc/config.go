package localipc

import (
	"os"
	"path/filepath"

	"github.com/danmuck/connprov/internal/connprov"
)

const (
	EnvInstanceName = "STAF_INSTANCE_NAME"
	EnvTempDir      = "STAF_TEMP_DIR"

	DefaultInstanceName = "STAF"
	DefaultTempDir      = "/tmp"

	OptIPCName = "IPCName"

	socketPrefix = "STAFIPC_"
)

// Config is the validated construction state of a local IPC provider.
type Config struct {
	// IPCName is the instance name with the IPCName option appended.
	IPCName    string
	TempDir    string
	SocketPath string
}

// ParseConfig reads the environment and validates opts.
func ParseConfig(opts []connprov.Option) (Config, error) {
	set, err := connprov.ParseOptions(opts, OptIPCName)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		IPCName: envOr(EnvInstanceName, DefaultInstanceName),
		TempDir: envOr(EnvTempDir, DefaultTempDir),
	}
	if suffix, ok := set.Get(OptIPCName); ok {
		cfg.IPCName += suffix
	}
	cfg.SocketPath = filepath.Join(cfg.TempDir, socketPrefix+cfg.IPCName)
	return cfg, nil
}

func (c Config) Options() []connprov.Option {
	return []connprov.Option{{Name: OptIPCName, Value: c.IPCName}}
}

// envOr treats an unset and an empty variable the same.
func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
