//go:build unix

package sockopt

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenControl marks listening sockets close-on-exec and allows rebinding a
// port still in TIME_WAIT.
func ListenControl(v6Only bool) Control {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			unix.CloseOnExec(int(fd))
			if network == "unix" {
				return
			}
			if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
				return
			}
			if network == "tcp6" {
				opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, boolInt(v6Only))
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// DialControl marks outbound sockets close-on-exec and enables keep-alive
// before connect.
func DialControl() Control {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			unix.CloseOnExec(int(fd))
			if network != "unix" {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}

// PrepareAccepted applies the per-connection setup to an accepted socket.
// Keep-alive is skipped for unix sockets.
func PrepareAccepted(conn net.Conn) error {
	c, ok := conn.(rawConner)
	if !ok {
		return nil
	}
	_, isUnix := conn.(*net.UnixConn)
	return control(c, func(fd uintptr) error {
		unix.CloseOnExec(int(fd))
		if isUnix {
			return nil
		}
		return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	})
}

// Probe checks that a freshly connected socket is usable: the pending socket
// error must be clear and a non-blocking zero-byte peek must not fail with
// anything other than EAGAIN. A peer that has already closed is reported as
// the error the next read would return.
func Probe(conn net.Conn) error {
	c, ok := conn.(rawConner)
	if !ok {
		return nil
	}
	return control(c, func(fd uintptr) error {
		soErr, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return err
		}
		if soErr != 0 {
			return syscall.Errno(soErr)
		}
		var b [1]byte
		for {
			_, _, err = unix.Recvfrom(int(fd), b[:0], unix.MSG_PEEK|unix.MSG_DONTWAIT)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			break
		}
		if err == nil || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		return err
	})
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
