//go:build !unix

package sockopt

import (
	"net"
	"syscall"
)

func ListenControl(v6Only bool) Control {
	return func(network, address string, c syscall.RawConn) error { return nil }
}

func DialControl() Control {
	return func(network, address string, c syscall.RawConn) error { return nil }
}

func PrepareAccepted(conn net.Conn) error {
	if tc, ok := conn.(*net.TCPConn); ok {
		return tc.SetKeepAlive(true)
	}
	return nil
}

func Probe(conn net.Conn) error {
	return nil
}
