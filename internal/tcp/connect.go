package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/observability"
	"github.com/danmuck/connprov/internal/sockopt"
)

const clientHandshakeHint = "A possible cause is an invalid interface/port combination in the endpoint " +
	"(e.g. a secure tcp interface, but a port for a non-secure interface)"

// Connect opens a connection to endpoint ("[host][@port]"). The port
// defaults to this provider's port and the host to localhost.
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
		p.log.Debug().Err(err).Str("endpoint", endpoint).Msg("tcp.Connect failed")
		return nil, err
	}
	return conn, nil
}

func (p *Provider) connect(ctx context.Context, endpoint string) (*Conn, error) {
	host, port := connprov.ParseEndpoint(endpoint, p.Port())

	ip, err := p.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	network := "tcp4"
	if ip.To4() == nil {
		network = "tcp6"
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))

	var raw net.Conn
	err = connprov.Retry(ctx, p.tuning.Refused, sockopt.IsRefused, func(attempt int) error {
		if attempt > 1 {
			observability.RecordRetry(p.name, observability.ReasonRefused)
		}
		var derr error
		raw, derr = p.dial(ctx, network, addr)
		return derr
	})
	if err != nil {
		return nil, dialError(err)
	}

	if err := sockopt.Probe(raw); err != nil {
		_ = raw.Close()
		return nil, connprov.CommError("Error performing test read on connected endpoint", "recv()", err)
	}

	var tc *tls.Conn
	if p.cfg.Secure {
		tc, err = p.clientHandshake(ctx, raw)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
	}

	conn := newConn(p.name, raw, tc, p.ioTimeout)
	conn.logical, conn.physical = p.lookupPeer(raw.RemoteAddr())
	return conn, nil
}

// resolve maps host to one address of an allowed family, retrying transient
// resolver failures.
func (p *Provider) resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if !p.familyAllowed(ip) {
			return nil, connprov.CommError("Error getting IPv4 or IPv6 address info: "+host, "getaddrinfo()", connprov.ErrResolve)
		}
		return ip, nil
	}

	var addrs []net.IPAddr
	err := connprov.Retry(ctx, p.tuning.Resolve, sockopt.IsTransientResolve, func(attempt int) error {
		if attempt > 1 {
			observability.RecordRetry(p.name, observability.ReasonResolve)
		}
		var lerr error
		addrs, lerr = net.DefaultResolver.LookupIPAddr(ctx, host)
		return lerr
	})
	if err != nil {
		return nil, connprov.CommError("Error getting address info: "+host, "getaddrinfo()", errors.Join(connprov.ErrResolve, err))
	}
	for _, a := range addrs {
		if p.familyAllowed(a.IP) {
			return a.IP, nil
		}
	}
	return nil, connprov.CommError("Error getting IPv4 or IPv6 address info: "+host, "getaddrinfo()", connprov.ErrResolve)
}

func (p *Provider) familyAllowed(ip net.IP) bool {
	switch p.cfg.Protocol {
	case ProtocolIPv4:
		return ip.To4() != nil
	case ProtocolIPv6:
		return ip.To4() == nil
	default:
		return true
	}
}

func (p *Provider) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{
		Timeout: p.cfg.ConnectTimeout,
		Control: sockopt.DialControl(),
		// SO_KEEPALIVE is set by DialControl with the system default period.
		KeepAlive: -1,
	}
	return d.DialContext(ctx, network, addr)
}

func (p *Provider) clientHandshake(ctx context.Context, raw net.Conn) (*tls.Conn, error) {
	p.mu.RLock()
	clientCfg := p.clientTLS
	p.mu.RUnlock()

	tc := tls.Client(raw, clientCfg)
	hctx := ctx
	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := tc.HandshakeContext(hctx); err != nil {
		if hctx.Err() != nil || isTimeout(err) {
			return nil, connprov.CommError("Client SSL handshake timed out", "SSL_connect()",
				errors.Join(connprov.ErrHandshake, connprov.ErrTimeout, err))
		}
		return nil, connprov.CommError("Error in client SSL handshake", "SSL_connect()",
			errors.Join(connprov.ErrHandshake, err)).WithHint(clientHandshakeHint)
	}
	if len(tc.ConnectionState().PeerCertificates) == 0 {
		return nil, connprov.CommError("Error in getting server certificate", "SSL_get_peer_certificate()", connprov.ErrNoPeerCert)
	}
	return tc, nil
}

func dialError(err error) error {
	switch {
	case isTimeout(err):
		return connprov.CommError("Timed out connecting to endpoint", "connect()", errors.Join(connprov.ErrTimeout, err))
	case sockopt.IsRefused(err):
		return connprov.CommError("Error connecting to endpoint", "connect()", errors.Join(connprov.ErrConnectRefused, err))
	default:
		return connprov.CommError("Error connecting to endpoint", "connect()", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
