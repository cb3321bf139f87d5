package tcp

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
)

const (
	DefaultPort           uint16 = 6500
	DefaultSecurePort     uint16 = 6550
	DefaultConnectTimeout        = 5000 * time.Millisecond
)

// Option names, matched case-insensitively.
const (
	OptPort              = "Port"
	OptConnectTimeout    = "ConnectTimeout"
	OptSecure            = "Secure"
	OptProtocol          = "Protocol"
	OptServerCertificate = "SSL/ServerCertificate"
	OptServerKey         = "SSL/ServerKey"
	OptCACertificate     = "SSL/CACertificate"
)

// Default file names for secure providers, looked up next to the executable.
const (
	DefaultServerCertificate = "STAFDefault.crt"
	DefaultServerKey         = "STAFDefault.key"
	DefaultCACertificate     = "CAList.crt"
)

type Protocol string

const (
	ProtocolIPv4 Protocol = "IPv4"
	ProtocolIPv6 Protocol = "IPv6"
	ProtocolDual Protocol = "IPv4_IPv6"
)

func parseProtocol(raw string) (Protocol, error) {
	for _, p := range []Protocol{ProtocolIPv4, ProtocolIPv6, ProtocolDual} {
		if strings.EqualFold(strings.TrimSpace(raw), string(p)) {
			return p, nil
		}
	}
	return "", connprov.InvalidValue("PROTOCOL must be set to IPv4, IPv6, or IPv4_IPv6")
}

// Config is the validated construction state of a TCP provider.
type Config struct {
	Port              uint16
	ConnectTimeout    time.Duration
	Secure            bool
	Protocol          Protocol
	ServerCertificate string
	ServerKey         string
	CACertificate     string
}

// ParseConfig validates opts and fills defaults. When Secure is Yes every
// SSL file must exist.
func ParseConfig(opts []connprov.Option) (Config, error) {
	set, err := connprov.ParseOptions(opts,
		OptPort, OptConnectTimeout, OptSecure, OptProtocol,
		OptServerCertificate, OptServerKey, OptCACertificate)
	if err != nil {
		return Config{}, err
	}

	dir := defaultCertDir()
	cfg := Config{
		ConnectTimeout:    DefaultConnectTimeout,
		Protocol:          ProtocolDual,
		ServerCertificate: filepath.Join(dir, DefaultServerCertificate),
		ServerKey:         filepath.Join(dir, DefaultServerKey),
		CACertificate:     filepath.Join(dir, DefaultCACertificate),
	}

	port, portSet, err := set.Uint(OptPort, 65535)
	if err != nil {
		return Config{}, err
	}
	ms, msSet, err := set.Uint(OptConnectTimeout, 65535)
	if err != nil {
		return Config{}, err
	}
	if msSet {
		cfg.ConnectTimeout = time.Duration(ms) * time.Millisecond
	}
	if cfg.Secure, _, err = set.YesNo(OptSecure); err != nil {
		return Config{}, err
	}
	if raw, ok := set.Get(OptProtocol); ok {
		if cfg.Protocol, err = parseProtocol(raw); err != nil {
			return Config{}, err
		}
	}
	if v, ok := set.Get(OptServerCertificate); ok {
		cfg.ServerCertificate = v
	}
	if v, ok := set.Get(OptServerKey); ok {
		cfg.ServerKey = v
	}
	if v, ok := set.Get(OptCACertificate); ok {
		cfg.CACertificate = v
	}

	switch {
	case portSet:
		cfg.Port = uint16(port)
	case cfg.Secure:
		cfg.Port = DefaultSecurePort
	default:
		cfg.Port = DefaultPort
	}

	if cfg.Secure {
		for _, f := range []struct{ name, path string }{
			{OptServerCertificate, cfg.ServerCertificate},
			{OptServerKey, cfg.ServerKey},
			{OptCACertificate, cfg.CACertificate},
		} {
			if _, err := os.Stat(f.path); err != nil {
				return Config{}, connprov.InvalidValue("%s file %s does not exist", f.name, f.path)
			}
		}
	}
	return cfg, nil
}

// Options renders the effective configuration in construction-option form.
func (c Config) Options() []connprov.Option {
	opts := []connprov.Option{
		{Name: OptPort, Value: strconv.FormatUint(uint64(c.Port), 10)},
		{Name: OptConnectTimeout, Value: strconv.FormatInt(c.ConnectTimeout.Milliseconds(), 10)},
		{Name: OptSecure, Value: connprov.FormatBool(c.Secure)},
	}
	if c.Secure {
		opts = append(opts,
			connprov.Option{Name: OptServerCertificate, Value: c.ServerCertificate},
			connprov.Option{Name: OptServerKey, Value: c.ServerKey},
			connprov.Option{Name: OptCACertificate, Value: c.CACertificate},
		)
	}
	return append(opts, connprov.Option{Name: OptProtocol, Value: string(c.Protocol)})
}

// ioTimeout derives the per-chunk transfer bound from ConnectTimeout: 24
// seconds per whole second of connect timeout, 120s at the default.
func (c Config) ioTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout.Milliseconds()/1000*24) * time.Second
}

func defaultCertDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
