package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/observability"
	"github.com/danmuck/connprov/internal/tlsctx"
	"github.com/danmuck/connprov/internal/workers"
	"github.com/rs/zerolog"
)

// Name labels TCP providers in logs and metrics.
const Name = "tcp"

const hostLookupTimeout = 5 * time.Second

// Provider is the TCP connection provider.
type Provider struct {
	name       string
	mode       connprov.Mode
	cfg        Config
	tuning     connprov.Tuning
	ioTimeout  time.Duration
	dispatcher connprov.Dispatcher
	ownedPool  *workers.Pool
	log        zerolog.Logger

	logicalID  string
	physicalID string

	lc connprov.Lifecycle

	// Guarded by lc's transitions: written in Start/Stop/Close only.
	loop    *connprov.AcceptLoop
	fn      connprov.NewConnectionFunc
	data    any
	tlsHeld bool

	mu        sync.RWMutex
	boundPort uint16
	serverTLS *tls.Config
	clientTLS *tls.Config
}

// Construct validates info.Options and resolves this host's identifiers.
func Construct(info connprov.ConstructInfo) (*Provider, error) {
	switch info.Mode {
	case connprov.ModeInbound, connprov.ModeOutbound, connprov.ModeBoth:
	default:
		return nil, connprov.InvalidParm("invalid provider mode %d", int(info.Mode))
	}
	cfg, err := ParseConfig(info.Options)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:       instanceName(info.Name),
		mode:       info.Mode,
		cfg:        cfg,
		tuning:     info.Tuning.WithDefaults(),
		dispatcher: info.Dispatcher,
		log:        observability.ProviderLogger(info.Logger, instanceName(info.Name)),
		boundPort:  cfg.Port,
	}
	// An explicit tuning value wins over the ConnectTimeout-derived one.
	switch {
	case info.Tuning.IOTimeout > 0:
		p.ioTimeout = info.Tuning.IOTimeout
	case cfg.ioTimeout() > 0:
		p.ioTimeout = cfg.ioTimeout()
	default:
		p.ioTimeout = p.tuning.IOTimeout
	}
	if p.dispatcher == nil && info.Mode.Accepts() {
		p.ownedPool = workers.NewPool(workers.DefaultSize)
		p.dispatcher = p.ownedPool
	}
	p.logicalID, p.physicalID = p.myHostInfo()
	return p, nil
}

func (p *Provider) myHostInfo() (string, string) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		p.log.Warn().Err(err).Msg("tcp.Construct could not determine host name")
		host = connprov.DefaultHost
	}
	ctx, cancel := context.WithTimeout(context.Background(), hostLookupTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		p.log.Warn().Err(err).Str("host", host).Msg("tcp.Construct could not resolve host address")
		return host, "127.0.0.1"
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil && p.cfg.Protocol != ProtocolIPv6 {
			return host, v4.String()
		}
	}
	return host, addrs[0].IP.String()
}

// Start binds the listeners for inbound modes and runs the accept loop. An
// outbound-only provider is simply activated.
func (p *Provider) Start(fn connprov.NewConnectionFunc, data any) error {
	return p.lc.Start(func() error {
		if p.mode.Accepts() && fn == nil {
			return connprov.InvalidParm("a new connection callback is required for an inbound provider")
		}
		if err := p.acquireTLS(); err != nil {
			return err
		}
		if !p.mode.Accepts() {
			return nil
		}
		lns, err := p.listen()
		if err != nil {
			return err
		}
		p.fn, p.data = fn, data
		p.loop = &connprov.AcceptLoop{
			Listeners: lns,
			Active:    p.lc.Active,
			Handle:    p.handleAccepted,
			OnError:   func(error) { observability.RecordAccept(p.name, observability.OutcomeAcceptError) },
			Logger:    p.log,
		}
		p.loop.Start()
		p.log.Info().
			Str("port", strconv.FormatUint(uint64(p.Port()), 10)).
			Bool("secure", p.cfg.Secure).
			Str("protocol", string(p.cfg.Protocol)).
			Msg("tcp.Start listening")
		return nil
	})
}

// acquireTLS takes a reference on the shared TLS state on the first secure
// Start and builds the configs this provider's mode needs.
func (p *Provider) acquireTLS() error {
	if !p.cfg.Secure || p.tlsHeld {
		return nil
	}
	st := tlsctx.Acquire()
	var serverCfg, clientCfg *tls.Config
	var err error
	if p.mode.Accepts() {
		serverCfg, err = st.ServerConfig(p.cfg.ServerCertificate, p.cfg.ServerKey)
		if err != nil {
			_ = tlsctx.Release()
			return connprov.OSError("Error loading server certificate and key", "tls.LoadX509KeyPair()", err)
		}
	}
	if p.mode != connprov.ModeInbound {
		clientCfg, err = st.ClientConfig(p.cfg.CACertificate)
		if err != nil {
			_ = tlsctx.Release()
			return connprov.OSError("Error loading CA certificate "+p.cfg.CACertificate, "tlsctx.LoadCAPool()", err)
		}
	}
	p.mu.Lock()
	p.serverTLS, p.clientTLS = serverCfg, clientCfg
	p.mu.Unlock()
	p.tlsHeld = true
	return nil
}

// Stop stops accepting and waits for the accept loop. It does not touch
// connections already handed out.
func (p *Provider) Stop() error {
	return p.lc.Stop(func() {
		if p.loop == nil {
			return
		}
		p.loop.Stop(p.tuning.StopWait)
		p.loop = nil
		p.log.Info().Msg("tcp.Stop stopped")
	})
}

// Close releases the shared TLS reference and any worker pool the provider
// created for itself.
func (p *Provider) Close() error {
	return p.lc.Close(func() {
		if p.tlsHeld {
			if err := tlsctx.Release(); err != nil {
				p.log.Warn().Err(err).Msg("tcp.Close release tls state")
			}
			p.tlsHeld = false
		}
		if p.ownedPool != nil {
			p.ownedPool.Close()
		}
	})
}

// MyNetworkIDs returns this host's name and address.
func (p *Provider) MyNetworkIDs() (string, string) {
	return p.logicalID, p.physicalID
}

func (p *Provider) Options() []connprov.Option {
	return p.cfg.Options()
}

// Property answers Port ("@<port>", the bound port once started) and
// IsSecure ("0" or "1").
func (p *Provider) Property(name connprov.Property) (string, error) {
	switch name {
	case connprov.PropertyPort:
		return "@" + strconv.FormatUint(uint64(p.Port()), 10), nil
	case connprov.PropertyIsSecure:
		if p.cfg.Secure {
			return "1", nil
		}
		return "0", nil
	default:
		return "", connprov.InvalidValue("Invalid property: %s", name)
	}
}

// Port is the listening port: the bound one after Start, else the configured
// one.
func (p *Provider) Port() uint16 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.boundPort
}

func (p *Provider) State() connprov.State {
	return p.lc.State()
}

func (p *Provider) Mode() connprov.Mode {
	return p.mode
}

func (p *Provider) Config() Config {
	return p.cfg
}

var _ connprov.Provider = (*Provider)(nil)

func instanceName(name string) string {
	if name == "" {
		return Name
	}
	return name
}
