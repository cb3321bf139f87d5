// Package node runs the providers of one connprovd instance against a shared
// worker pool and serves the echo exchange on every inbound connection.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/connprov/internal/config"
	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/plugins"
	"github.com/danmuck/connprov/internal/workers"
	"github.com/rs/zerolog"
)

type member struct {
	name     string
	kind     string
	provider connprov.Provider
}

type Node struct {
	name     string
	log      zerolog.Logger
	pool     *workers.Pool
	members  []*member
	byName   map[string]*member
	appeared time.Time

	mu      sync.Mutex
	started bool
	closed  bool

	served atomic.Uint64
	failed atomic.Uint64
}

// New constructs every configured provider. Nothing listens until Start.
func New(cfg config.DaemonConfig, logger *zerolog.Logger) (*Node, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	n := &Node{
		name:     cfg.Name,
		log:      logger.With().Str("node", cfg.Name).Logger(),
		pool:     workers.NewPool(cfg.Workers.Size),
		byName:   make(map[string]*member, len(cfg.Providers)),
		appeared: time.Now(),
	}
	for _, pc := range cfg.Providers {
		if _, dup := n.byName[pc.Name]; dup {
			n.release()
			return nil, fmt.Errorf("node: duplicate provider name %q", pc.Name)
		}
		mode, err := pc.ProviderMode()
		if err != nil {
			n.release()
			return nil, fmt.Errorf("node: provider %s: %w", pc.Name, err)
		}
		p, err := plugins.Construct(pc.Type, connprov.ConstructInfo{
			Name:       pc.Name,
			Mode:       mode,
			Options:    pc.ConstructOptions(),
			Dispatcher: n.pool,
			Logger:     logger,
		})
		if err != nil {
			n.release()
			return nil, fmt.Errorf("node: provider %s: %w", pc.Name, err)
		}
		m := &member{name: pc.Name, kind: pc.Type, provider: p}
		n.members = append(n.members, m)
		n.byName[pc.Name] = m
	}
	return n, nil
}

func (n *Node) NodeID() string {
	return n.name
}

func (n *Node) Kind() string {
	return "connprovd"
}

// Start starts every provider in configuration order. If one fails the ones
// already started are stopped again.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errors.New("node: already shut down")
	}
	if n.started {
		return errors.New("node: already started")
	}
	for i, m := range n.members {
		if err := m.provider.Start(n.serve, m); err != nil {
			for _, prev := range n.members[:i] {
				_ = prev.provider.Stop()
			}
			return fmt.Errorf("node: start provider %s: %w", m.name, err)
		}
		logical, physical := m.provider.MyNetworkIDs()
		port, _ := m.provider.Property(connprov.PropertyPort)
		n.log.Info().
			Str("provider", m.name).
			Str("type", m.kind).
			Str("mode", m.provider.Mode().String()).
			Str("port", port).
			Str("logical", logical).
			Str("physical", physical).
			Msg("node.Start provider active")
	}
	n.started = true
	return nil
}

// Shutdown stops every provider, waits for in-flight handlers until ctx is
// done, and then closes the providers.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	n.started = false

	var errs []error
	for _, m := range n.members {
		if err := m.provider.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m.name, err))
		}
	}
	if err := n.pool.Wait(ctx); err != nil {
		n.log.Warn().Err(err).Int64("in_flight", n.pool.Stats().InFlight).Msg("node.Shutdown handlers still running")
	}
	n.release()
	return errors.Join(errs...)
}

func (n *Node) release() {
	for _, m := range n.members {
		if err := m.provider.Close(); err != nil {
			n.log.Warn().Err(err).Str("provider", m.name).Msg("node.Shutdown close provider")
		}
	}
	n.pool.Close()
}

// Provider returns the named provider.
func (n *Node) Provider(name string) (connprov.Provider, bool) {
	m, ok := n.byName[name]
	if !ok {
		return nil, false
	}
	return m.provider, true
}

// Ready reports whether the node is started and every provider is active.
func (n *Node) Ready() bool {
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if !started {
		return false
	}
	for _, m := range n.members {
		if m.provider.State() != connprov.StateActive {
			return false
		}
	}
	return true
}

func (n *Node) serve(p connprov.Provider, conn connprov.Connection, data any) error {
	m, _ := data.(*member)
	defer conn.Close()

	logical, physical := conn.PeerNetworkIDs()
	err := Echo(conn)
	if err != nil {
		n.failed.Add(1)
		ev := n.log.Warn()
		if errors.Is(err, connprov.ErrPeerClosed) {
			ev = n.log.Debug()
		}
		ev.Err(err).
			Str("provider", memberName(m)).
			Str("conn_id", conn.ID()).
			Str("peer", logical).
			Str("peer_ip", physical).
			Msg("node.serve echo failed")
		return err
	}
	n.served.Add(1)
	return nil
}

func memberName(m *member) string {
	if m == nil {
		return ""
	}
	return m.name
}
