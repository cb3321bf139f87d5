package sockopt

import (
	"errors"
	"net"
	"syscall"
)

// Control is the net.ListenConfig/net.Dialer hook applied to every socket
// before bind or connect.
type Control func(network, address string, c syscall.RawConn) error

// Classifiers for the errno values the transports act on.

func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func IsNotExist(err error) bool {
	return errors.Is(err, syscall.ENOENT)
}

func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

func IsInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// IsTransientResolve reports whether a lookup failure may clear on retry.
func IsTransientResolve(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return false
}

// rawConner is satisfied by *net.TCPConn, *net.UnixConn and their listeners.
type rawConner interface {
	SyscallConn() (syscall.RawConn, error)
}

func control(c rawConner, fn func(fd uintptr) error) error {
	raw, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := raw.Control(func(fd uintptr) { opErr = fn(fd) }); err != nil {
		return err
	}
	return opErr
}
