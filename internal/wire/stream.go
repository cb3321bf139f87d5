package wire

import (
	"errors"
	"io"
	"math"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/sockopt"
)

// Transport is the byte stream under a Stream: a raw socket or a TLS session.
type Transport interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// StreamConfig names the transfer calls for error text and sets the timeout.
type StreamConfig struct {
	ReadOp    string
	WriteOp   string
	IOTimeout time.Duration
	Limits    Limits
}

// Stream moves exact byte counts through a fixed scratch buffer. The lock is
// held only for the duration of one transfer.
type Stream struct {
	mu  sync.Mutex
	t   Transport
	cfg StreamConfig
	buf [ChunkSize]byte
}

func NewStream(t Transport, cfg StreamConfig) *Stream {
	if cfg.ReadOp == "" {
		cfg.ReadOp = "recv()"
	}
	if cfg.WriteOp == "" {
		cfg.WriteOp = "send()"
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = connprov.DefaultTuning().IOTimeout
	}
	if cfg.Limits.MaxStringBytes == 0 {
		cfg.Limits = DefaultLimits()
	}
	return &Stream{t: t, cfg: cfg}
}

// IOTimeout returns the per-chunk bound used by Timed transfers.
func (s *Stream) IOTimeout() time.Duration {
	return s.cfg.IOTimeout
}

// ReadExact fills p completely or fails with a CommunicationError.
func (s *Stream) ReadExact(p []byte, timing connprov.Timing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for cur := 0; cur < len(p); {
		want := min(len(p)-cur, ChunkSize)
		if err := s.t.SetReadDeadline(s.deadline(timing)); err != nil {
			return s.transferError("Error reading from socket", s.cfg.ReadOp, err)
		}
		n, err := s.t.Read(s.buf[:want])
		if n > 0 {
			copy(p[cur:], s.buf[:n])
			cur += n
		}
		if err != nil {
			if sockopt.IsInterrupted(err) {
				continue
			}
			if n > 0 && cur == len(p) {
				return nil
			}
			return s.transferError("Error reading from socket", s.cfg.ReadOp, err)
		}
		if n == 0 {
			return connprov.CommError("Error reading from socket", s.cfg.ReadOp, connprov.ErrPeerClosed)
		}
	}
	return nil
}

// WriteExact sends all of p or fails with a CommunicationError.
func (s *Stream) WriteExact(p []byte, timing connprov.Timing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for cur := 0; cur < len(p); {
		chunk := copy(s.buf[:], p[cur:])
		sent := 0
		for sent < chunk {
			if err := s.t.SetWriteDeadline(s.deadline(timing)); err != nil {
				return s.transferError("Error writing to socket", s.cfg.WriteOp, err)
			}
			n, err := s.t.Write(s.buf[sent:chunk])
			sent += n
			if err != nil {
				if sockopt.IsInterrupted(err) {
					continue
				}
				return s.transferError("Error writing to socket", s.cfg.WriteOp, err)
			}
			if n == 0 {
				return connprov.CommError("Error writing to socket", s.cfg.WriteOp, connprov.ErrPeerClosed)
			}
		}
		cur += chunk
	}
	return nil
}

func (s *Stream) ReadUint32(timing connprov.Timing) (uint32, error) {
	var b [Uint32Len]byte
	if err := s.ReadExact(b[:], timing); err != nil {
		return 0, err
	}
	return DecodeUint32(b[:])
}

func (s *Stream) WriteUint32(v uint32, timing connprov.Timing) error {
	b := EncodeUint32(v)
	return s.WriteExact(b[:], timing)
}

// ReadString reads one length-prefixed string. An empty string is valid.
func (s *Stream) ReadString(timing connprov.Timing) (string, error) {
	n, err := s.ReadUint32(timing)
	if err != nil {
		return "", err
	}
	if s.cfg.Limits.MaxStringBytes > 0 && n > s.cfg.Limits.MaxStringBytes {
		return "", connprov.CommError("Error reading string", s.cfg.ReadOp, ErrStringTooLarge)
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if err := s.ReadExact(buf, timing); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteString writes one length-prefixed string. A string the peer's read
// limit would reject, or one whose length does not fit the prefix, is refused
// before any byte is sent.
func (s *Stream) WriteString(str string, timing connprov.Timing) error {
	n := uint64(len(str))
	if n > math.MaxUint32 || (s.cfg.Limits.MaxStringBytes > 0 && n > uint64(s.cfg.Limits.MaxStringBytes)) {
		return connprov.InvalidValue("string of %d bytes exceeds the %d byte limit", n, s.maxWrite())
	}
	if err := s.WriteUint32(uint32(n), timing); err != nil {
		return err
	}
	if len(str) == 0 {
		return nil
	}
	return s.WriteExact([]byte(str), timing)
}

func (s *Stream) maxWrite() uint64 {
	if s.cfg.Limits.MaxStringBytes > 0 {
		return uint64(s.cfg.Limits.MaxStringBytes)
	}
	return math.MaxUint32
}

func (s *Stream) deadline(timing connprov.Timing) time.Time {
	if timing == connprov.Timed {
		return time.Now().Add(s.cfg.IOTimeout)
	}
	return time.Time{}
}

func (s *Stream) transferError(msg, op string, err error) error {
	switch {
	case isTimeout(err):
		return connprov.CommError(msg+": timed out", op, errors.Join(connprov.ErrTimeout, err))
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrClosedPipe):
		return connprov.CommError(msg, op, errors.Join(connprov.ErrPeerClosed, err))
	default:
		return connprov.CommError(msg, op, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
