package tcp

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/observability"
	"github.com/danmuck/connprov/internal/sockopt"
)

// handleAccepted runs on the accept loop for every inbound socket. The TLS
// handshake happens here, bounded by ConnectTimeout, so a failed handshake
// never reaches a worker.
func (p *Provider) handleAccepted(raw net.Conn) {
	if err := sockopt.PrepareAccepted(raw); err != nil {
		p.log.Warn().Err(err).Str("peer", raw.RemoteAddr().String()).Msg("Error setting SO_KEEPALIVE option")
	}

	var tc *tls.Conn
	if p.cfg.Secure {
		p.mu.RLock()
		serverCfg := p.serverTLS
		p.mu.RUnlock()

		tc = tls.Server(raw, serverCfg)
		_ = raw.SetDeadline(time.Now().Add(p.handshakeTimeout()))
		if err := tc.Handshake(); err != nil {
			_ = raw.Close()
			observability.RecordAccept(p.name, observability.OutcomeHandshake)
			logical, physical := p.lookupPeer(raw.RemoteAddr())
			p.log.Warn().
				Err(err).
				Str("peer", logical).
				Str("peer_ip", physical).
				Msgf("Error in server SSL handshake originating from machine %s. A possible cause is a non-secure tcp interface submitted a request to a secure tcp interface which is not supported", logical)
			return
		}
		_ = raw.SetDeadline(time.Time{})
	}

	conn := newConn(p.name, raw, tc, p.ioTimeout)
	fn, data := p.fn, p.data
	err := p.dispatcher.Dispatch(func() {
		defer connprov.CloseOnPanic(conn)
		conn.logical, conn.physical = p.lookupPeer(raw.RemoteAddr())
		if err := fn(p, conn, data); err != nil {
			p.log.Debug().Err(err).Str("conn_id", conn.ID()).Str("peer", conn.logical).Msg("tcp connection handler returned error")
		}
	})
	if err != nil {
		_ = conn.Close()
		observability.RecordAccept(p.name, observability.OutcomeDispatchFail)
		p.log.Error().Err(err).Str("peer", raw.RemoteAddr().String()).Msg("Error dispatching a thread")
		return
	}
	observability.RecordAccept(p.name, observability.OutcomeDispatched)
}

func (p *Provider) handshakeTimeout() time.Duration {
	if p.cfg.ConnectTimeout > 0 {
		return p.cfg.ConnectTimeout
	}
	return p.ioTimeout
}

func (p *Provider) lookupPeer(addr net.Addr) (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), hostLookupTimeout)
	defer cancel()
	return lookupPeerIDs(ctx, addr)
}
