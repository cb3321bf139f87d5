package localipc

import (
	"net"
	"sync"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/observability"
	"github.com/danmuck/connprov/internal/wire"
	"github.com/google/uuid"
)

// Conn is one local IPC connection.
type Conn struct {
	provider string
	raw      net.Conn
	stream   *wire.Stream
	id       string

	closeOnce sync.Once
	closeErr  error
}

func newConn(provider string, raw net.Conn, ioTimeout time.Duration) *Conn {
	observability.ConnOpened(provider)
	return &Conn{
		provider: provider,
		raw:      raw,
		stream:   wire.NewStream(raw, wire.StreamConfig{ReadOp: "recv()", WriteOp: "send()", IOTimeout: ioTimeout}),
		id:       uuid.NewString(),
	}
}

func (c *Conn) ReadExact(p []byte, t connprov.Timing) error { return c.stream.ReadExact(p, t) }

func (c *Conn) ReadUint32(t connprov.Timing) (uint32, error) { return c.stream.ReadUint32(t) }

func (c *Conn) ReadString(t connprov.Timing) (string, error) { return c.stream.ReadString(t) }

func (c *Conn) WriteExact(p []byte, t connprov.Timing) error { return c.stream.WriteExact(p, t) }

func (c *Conn) WriteUint32(v uint32, t connprov.Timing) error { return c.stream.WriteUint32(v, t) }

func (c *Conn) WriteString(s string, t connprov.Timing) error { return c.stream.WriteString(s, t) }

// PeerNetworkIDs is always ("local", "local").
func (c *Conn) PeerNetworkIDs() (string, string) {
	return connprov.Local, connprov.Local
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
		observability.ConnClosed(c.provider)
	})
	return c.closeErr
}

var _ connprov.Connection = (*Conn)(nil)
