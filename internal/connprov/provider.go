package connprov

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Mode selects which directions a provider serves.
type Mode int

const (
	ModeInbound Mode = iota
	ModeOutbound
	ModeBoth
)

func (m Mode) String() string {
	switch m {
	case ModeInbound:
		return "inbound"
	case ModeOutbound:
		return "outbound"
	case ModeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Accepts reports whether the mode listens for inbound connections.
func (m Mode) Accepts() bool {
	return m == ModeInbound || m == ModeBoth
}

// ParseMode maps config text to a Mode.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "both":
		return ModeBoth, nil
	case "inbound", "in":
		return ModeInbound, nil
	case "outbound", "out":
		return ModeOutbound, nil
	default:
		return ModeBoth, InvalidValue("mode must be inbound, outbound, or both: %q", raw)
	}
}

// State is the provider lifecycle state.
type State int

const (
	StateStopped State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "stopped"
}

// Property names a runtime-queryable provider property.
type Property string

const (
	PropertyPort     Property = "Port"
	PropertyIsSecure Property = "IsSecure"
)

// Local is the logical and physical identifier of every local IPC peer.
const Local = "local"

// Option is one construction option as given by configuration.
type Option struct {
	Name  string
	Value string
}

// Dispatcher runs accepted-connection work off the accept loop.
type Dispatcher interface {
	Dispatch(work func()) error
}

// NewConnectionFunc is invoked once per accepted connection on a dispatched
// worker. The callee owns conn and must Close it.
type NewConnectionFunc func(p Provider, conn Connection, data any) error

// ConstructInfo carries everything a transport needs at construction.
type ConstructInfo struct {
	// Name labels this provider instance in logs and metrics. Transports
	// fall back to their own name.
	Name       string
	Mode       Mode
	Options    []Option
	Dispatcher Dispatcher
	Tuning     Tuning
	Logger     *zerolog.Logger
}

// Provider is a configured transport endpoint producing Connections.
type Provider interface {
	// Start listens (inbound modes), starts the accept loop, and blocks until
	// the loop is ready.
	Start(fn NewConnectionFunc, data any) error
	// Stop stops accepting. It waits a bounded time for the accept loop.
	Stop() error
	// Close releases every resource held by a stopped provider.
	Close() error
	// Connect opens an outbound connection to endpoint.
	Connect(ctx context.Context, endpoint string) (Connection, error)

	MyNetworkIDs() (logical, physical string)
	Options() []Option
	Property(p Property) (string, error)
	State() State
	Mode() Mode
}

// Connection is one established duplex byte stream. It is owned by a single
// worker and must not be shared.
type Connection interface {
	ReadExact(p []byte, t Timing) error
	ReadUint32(t Timing) (uint32, error)
	ReadString(t Timing) (string, error)
	WriteExact(p []byte, t Timing) error
	WriteUint32(v uint32, t Timing) error
	WriteString(s string, t Timing) error

	PeerNetworkIDs() (logical, physical string)
	ID() string
	Close() error
}

// CloseOnPanic closes conn when the deferring handler panics and then
// re-panics so the dispatcher still sees the failure. Use it as
// `defer connprov.CloseOnPanic(conn)`.
func CloseOnPanic(conn Connection) {
	if r := recover(); r != nil {
		_ = conn.Close()
		panic(r)
	}
}

// Timing selects whether a transfer is bounded by the connection I/O timeout.
type Timing bool

const (
	Blocking Timing = false
	Timed    Timing = true
)
