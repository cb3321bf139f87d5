package node

import (
	"fmt"

	"github.com/danmuck/connprov/internal/connprov"
)

// MaxEchoStrings caps the count a peer may announce.
const MaxEchoStrings = 4096

// Echo serves one request on conn: a uint32 count followed by that many
// strings. The same count and strings are written back.
func Echo(conn connprov.Connection) error {
	count, err := conn.ReadUint32(connprov.Timed)
	if err != nil {
		return err
	}
	if count > MaxEchoStrings {
		return connprov.InvalidValue("echo: count %d exceeds %d", count, MaxEchoStrings)
	}
	items := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		s, err := conn.ReadString(connprov.Timed)
		if err != nil {
			return err
		}
		items = append(items, s)
	}
	return writeItems(conn, items)
}

// EchoRequest is the client side of Echo.
func EchoRequest(conn connprov.Connection, items []string) ([]string, error) {
	if len(items) > MaxEchoStrings {
		return nil, connprov.InvalidValue("echo: %d strings exceeds %d", len(items), MaxEchoStrings)
	}
	if err := writeItems(conn, items); err != nil {
		return nil, err
	}
	count, err := conn.ReadUint32(connprov.Timed)
	if err != nil {
		return nil, err
	}
	if count != uint32(len(items)) {
		return nil, fmt.Errorf("echo: sent %d strings, peer answered %d", len(items), count)
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		s, err := conn.ReadString(connprov.Timed)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeItems(conn connprov.Connection, items []string) error {
	if err := conn.WriteUint32(uint32(len(items)), connprov.Timed); err != nil {
		return err
	}
	for _, s := range items {
		if err := conn.WriteString(s, connprov.Timed); err != nil {
			return err
		}
	}
	return nil
}
