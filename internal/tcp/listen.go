package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/sockopt"
)

// listen binds one listener per configured family. In dual-stack mode the
// IPv6 socket is bound first with IPV6_V6ONLY so both families can share the
// port; a zero port is resolved by the first bind and reused by the second.
func (p *Provider) listen() ([]net.Listener, error) {
	port := p.cfg.Port
	var lns []net.Listener
	closeAll := func() {
		for _, ln := range lns {
			_ = ln.Close()
		}
	}

	if p.cfg.Protocol == ProtocolIPv6 || p.cfg.Protocol == ProtocolDual {
		ln, err := listenFamily("tcp6", port)
		switch {
		case err == nil:
			lns = append(lns, ln)
			port = listenerPort(ln)
		case p.cfg.Protocol == ProtocolDual && ipv6Unavailable(err):
			p.log.Warn().Err(err).Msg("tcp.Start IPv6 unavailable, listening on IPv4 only")
		default:
			return nil, startError("Error binding server socket: IPv6", port, err)
		}
	}

	if p.cfg.Protocol == ProtocolIPv4 || p.cfg.Protocol == ProtocolDual {
		ln, err := listenFamily("tcp4", port)
		switch {
		case err == nil:
			lns = append(lns, ln)
			port = listenerPort(ln)
		case sockopt.IsAddrInUse(err) && len(lns) > 0:
			// The IPv6 listener is already taking IPv4 traffic.
			p.log.Debug().Err(err).Msg("tcp.Start IPv4 port held by IPv6 listener")
		default:
			closeAll()
			return nil, startError("Error binding server socket", port, err)
		}
	}

	p.mu.Lock()
	p.boundPort = port
	p.mu.Unlock()
	return lns, nil
}

func listenFamily(network string, port uint16) (net.Listener, error) {
	lc := net.ListenConfig{Control: sockopt.ListenControl(network == "tcp6")}
	host := "0.0.0.0"
	if network == "tcp6" {
		host = "::"
	}
	return lc.Listen(context.Background(), network, net.JoinHostPort(host, strconv.Itoa(int(port))))
}

func listenerPort(ln net.Listener) uint16 {
	if a, ok := ln.Addr().(*net.TCPAddr); ok {
		return uint16(a.Port)
	}
	return 0
}

func startError(msg string, port uint16, err error) error {
	op := "bind()"
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		op = sysErr.Syscall + "()"
	}
	e := connprov.OSError(msg, op, err)
	if sockopt.IsAddrInUse(err) {
		e = e.WithHint(fmt.Sprintf("Port %d is already in use; stop the other process or set a different Port option", port))
	}
	return e
}

func ipv6Unavailable(err error) bool {
	return errors.Is(err, syscall.EAFNOSUPPORT) ||
		errors.Is(err, syscall.EADDRNOTAVAIL) ||
		errors.Is(err, syscall.EPROTONOSUPPORT)
}
