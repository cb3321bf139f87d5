package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/observability"
	"github.com/danmuck/connprov/internal/wire"
	"github.com/google/uuid"
)

// Conn is one TCP connection, optionally carrying a TLS session.
type Conn struct {
	provider string
	raw      net.Conn
	tls      *tls.Conn
	stream   *wire.Stream
	id       string

	logical  string
	physical string

	closeOnce sync.Once
	closeErr  error
}

func newConn(provider string, raw net.Conn, tc *tls.Conn, ioTimeout time.Duration) *Conn {
	cfg := wire.StreamConfig{ReadOp: "recv()", WriteOp: "send()", IOTimeout: ioTimeout}
	var t wire.Transport = raw
	if tc != nil {
		cfg.ReadOp, cfg.WriteOp = "SSL_read()", "SSL_write()"
		t = tc
	}
	observability.ConnOpened(provider)
	return &Conn{
		provider: provider,
		raw:      raw,
		tls:      tc,
		stream:   wire.NewStream(t, cfg),
		id:       uuid.NewString(),
	}
}

func (c *Conn) ReadExact(p []byte, t connprov.Timing) error {
	return c.stream.ReadExact(p, t)
}

func (c *Conn) ReadUint32(t connprov.Timing) (uint32, error) {
	return c.stream.ReadUint32(t)
}

func (c *Conn) ReadString(t connprov.Timing) (string, error) {
	return c.stream.ReadString(t)
}

func (c *Conn) WriteExact(p []byte, t connprov.Timing) error {
	return c.stream.WriteExact(p, t)
}

func (c *Conn) WriteUint32(v uint32, t connprov.Timing) error {
	return c.stream.WriteUint32(v, t)
}

func (c *Conn) WriteString(s string, t connprov.Timing) error {
	return c.stream.WriteString(s, t)
}

// PeerNetworkIDs returns the peer host name and IP address.
func (c *Conn) PeerNetworkIDs() (string, string) {
	return c.logical, c.physical
}

// ID is a per-connection correlation id for logs.
func (c *Conn) ID() string {
	return c.id
}

// Secure reports whether the connection carries a TLS session.
func (c *Conn) Secure() bool {
	return c.tls != nil
}

// IOTimeout is the per-chunk bound used by Timed transfers.
func (c *Conn) IOTimeout() time.Duration {
	return c.stream.IOTimeout()
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if c.tls != nil {
			c.closeErr = c.tls.Close()
		} else {
			c.closeErr = c.raw.Close()
		}
		observability.ConnClosed(c.provider)
	})
	return c.closeErr
}

// lookupPeerIDs resolves the logical and physical ids for addr. The host name
// falls back to the IP address when reverse lookup fails.
func lookupPeerIDs(ctx context.Context, addr net.Addr) (string, string) {
	ip := addrIP(addr)
	if ip == "" {
		return "0.0.0.0", "0.0.0.0"
	}
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ip, ip
	}
	return strings.TrimSuffix(names[0], "."), ip
}

func addrIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String()
		}
		return a.IP.String()
	case nil:
		return ""
	default:
		host, _, err := net.SplitHostPort(a.String())
		if err != nil {
			return ""
		}
		return host
	}
}

var _ connprov.Connection = (*Conn)(nil)
