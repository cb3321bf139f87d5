package localipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/observability"
	"github.com/danmuck/connprov/internal/sockopt"
	"github.com/danmuck/connprov/internal/workers"
	"github.com/rs/zerolog"
)

// Name labels local IPC providers in logs and metrics.
const Name = "localipc"

// ConnectTimeout bounds a local connect.
const ConnectTimeout = 5 * time.Second

// Provider is the local IPC connection provider.
type Provider struct {
	name       string
	mode       connprov.Mode
	cfg        Config
	tuning     connprov.Tuning
	dispatcher connprov.Dispatcher
	ownedPool  *workers.Pool
	log        zerolog.Logger

	lc connprov.Lifecycle

	// Written only inside lifecycle transitions.
	loop  *connprov.AcceptLoop
	fn    connprov.NewConnectionFunc
	data  any
	bound bool
}

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
	}
	if p.dispatcher == nil && info.Mode.Accepts() {
		p.ownedPool = workers.NewPool(workers.DefaultSize)
		p.dispatcher = p.ownedPool
	}
	return p, nil
}

func (p *Provider) Start(fn connprov.NewConnectionFunc, data any) error {
	return p.lc.Start(func() error {
		if !p.mode.Accepts() {
			return nil
		}
		if fn == nil {
			return connprov.InvalidParm("a new connection callback is required for an inbound provider")
		}
		ln, err := p.listen()
		if err != nil {
			return err
		}
		p.bound = true
		p.fn, p.data = fn, data
		p.loop = &connprov.AcceptLoop{
			Listeners: []net.Listener{ln},
			Active:    p.lc.Active,
			Handle:    p.handleAccepted,
			OnError:   func(error) { observability.RecordAccept(p.name, observability.OutcomeAcceptError) },
			Logger:    p.log,
		}
		p.loop.Start()
		p.log.Info().Str("path", p.cfg.SocketPath).Msg("localipc.Start listening")
		return nil
	})
}

// listen removes a stale socket file left by an earlier run and binds.
func (p *Provider) listen() (net.Listener, error) {
	if err := os.Remove(p.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.log.Debug().Err(err).Str("path", p.cfg.SocketPath).Msg("localipc.Start remove stale socket")
	}
	lc := net.ListenConfig{Control: sockopt.ListenControl(false)}
	ln, err := lc.Listen(context.Background(), "unix", p.cfg.SocketPath)
	if err != nil {
		e := connprov.OSError("Error binding server socket", "bind()", err)
		hint := ""
		switch {
		case errors.Is(err, syscall.EACCES):
			hint = "The socket file is protected, and the current user has inadequate permission to access it. "
		case sockopt.IsAddrInUse(err):
			hint = "The socket file is already in use. "
		}
		hint += fmt.Sprintf("This occurs if the previous instance was not shut down properly or is still shutting down. "+
			"To resolve, remove socket file %s and retry", p.cfg.SocketPath)
		return nil, e.WithHint(hint)
	}
	// The listener must not unlink the path on Close; Close on the provider
	// owns that.
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	return ln, nil
}

func (p *Provider) handleAccepted(raw net.Conn) {
	if err := sockopt.PrepareAccepted(raw); err != nil {
		_ = raw.Close()
		p.log.Error().Err(err).Msg("Error getting non-inheritable socket")
		return
	}
	conn := newConn(p.name, raw, p.tuning.IOTimeout)
	fn, data := p.fn, p.data
	err := p.dispatcher.Dispatch(func() {
		defer connprov.CloseOnPanic(conn)
		if err := fn(p, conn, data); err != nil {
			p.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("localipc connection handler returned error")
		}
	})
	if err != nil {
		_ = conn.Close()
		observability.RecordAccept(p.name, observability.OutcomeDispatchFail)
		p.log.Error().Err(err).Msg("Error dispatching a thread")
		return
	}
	observability.RecordAccept(p.name, observability.OutcomeDispatched)
}

func (p *Provider) Stop() error {
	return p.lc.Stop(func() {
		if p.loop == nil {
			return
		}
		p.loop.Stop(p.tuning.StopWait)
		p.loop = nil
		p.log.Info().Msg("localipc.Stop stopped")
	})
}

// Close deletes the socket file if this provider bound it. Cleanup failures
// are logged, never returned.
func (p *Provider) Close() error {
	return p.lc.Close(func() {
		if p.bound {
			if err := os.Remove(p.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				p.log.Warn().Err(err).Str("path", p.cfg.SocketPath).Msg("localipc.Close remove socket")
			}
		}
		if p.ownedPool != nil {
			p.ownedPool.Close()
		}
	})
}

// Connect dials the local socket. The endpoint is ignored; there is only one
// local peer per IPC name.
func (p *Provider) Connect(ctx context.Context, endpoint string) (connprov.Connection, error) {
	if err := p.lc.RequireActive("Connect"); err != nil {
		return nil, err
	}
	if p.mode == connprov.ModeInbound {
		return nil, connprov.InvalidObject("Connect: provider is inbound only")
	}

	start := time.Now()
	conn, err := p.connect(ctx, endpoint)
	observability.RecordConnect(p.name, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (p *Provider) connect(ctx context.Context, endpoint string) (*Conn, error) {
	var raw net.Conn
	err := connprov.Retry(ctx, p.tuning.Refused, sockopt.IsRefused, func(attempt int) error {
		if attempt > 1 {
			observability.RecordRetry(p.name, observability.ReasonRefused)
		}
		d := net.Dialer{Timeout: ConnectTimeout, Control: sockopt.DialControl()}
		var derr error
		raw, derr = d.DialContext(ctx, "unix", p.cfg.SocketPath)
		return derr
	})
	if err != nil {
		return nil, p.dialError(endpoint, err)
	}
	if err := sockopt.Probe(raw); err != nil {
		_ = raw.Close()
		return nil, connprov.CommError("Error performing test read on connected endpoint", "recv()", err)
	}
	return newConn(p.name, raw, p.tuning.IOTimeout), nil
}

func (p *Provider) dialError(endpoint string, err error) error {
	msg := fmt.Sprintf("Error connecting to endpoint '%s'", endpoint)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return connprov.CommError("Timed out connecting to endpoint", "connect()", errors.Join(connprov.ErrTimeout, err))
	case sockopt.IsRefused(err):
		return connprov.CommError(msg, "connect()", errors.Join(connprov.ErrConnectRefused, err))
	case sockopt.IsNotExist(err):
		return connprov.CommError(msg, "connect()", err).WithHint(fmt.Sprintf(
			"There is no instance running with %s=%s and %s=%s on the local machine. "+
				"Verify that it is running and set these environment variables to the values it is using. "+
				"Or, if it is running with the same values, socket file '%s' may have been deleted",
			EnvInstanceName, p.cfg.IPCName, EnvTempDir, p.cfg.TempDir, p.cfg.SocketPath))
	default:
		return connprov.CommError(msg, "connect()", err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// MyNetworkIDs is always ("local", "local").
func (p *Provider) MyNetworkIDs() (string, string) {
	return connprov.Local, connprov.Local
}

func (p *Provider) Options() []connprov.Option {
	return p.cfg.Options()
}

// Property reports an empty Port and IsSecure "0".
func (p *Provider) Property(name connprov.Property) (string, error) {
	switch name {
	case connprov.PropertyPort:
		return "", nil
	case connprov.PropertyIsSecure:
		return "0", nil
	default:
		return "", connprov.InvalidValue("Invalid property: %s", name)
	}
}

func (p *Provider) State() connprov.State {
	return p.lc.State()
}

func (p *Provider) Mode() connprov.Mode {
	return p.mode
}

func (p *Provider) SocketPath() string {
	return p.cfg.SocketPath
}

var _ connprov.Provider = (*Provider)(nil)

func instanceName(name string) string {
	if name == "" {
		return Name
	}
	return name
}
