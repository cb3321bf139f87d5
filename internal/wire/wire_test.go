package wire

import (
	"errors"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/connprov/internal/connprov"
	"github.com/danmuck/connprov/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint32IsLittleEndian(t *testing.T) {
	testlog.Start(t)

	b := EncodeUint32(0x01020304)
	assert.Equal(t, [4]byte{0x04, 0x03, 0x02, 0x01}, b)

	for _, v := range []uint32{0, 1, 42, 0xff, 0x100, 0xdeadbeef, math.MaxUint32} {
		enc := EncodeUint32(v)
		got, err := DecodeUint32(enc[:])
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := DecodeUint32([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortUint32)
}

func TestStringEncodingRoundTrip(t *testing.T) {
	testlog.Start(t)

	cases := []string{"", "ping", "with\x00nul", "héllo wörld ✓", strings.Repeat("x", 3*ChunkSize+17)}
	for _, s := range cases {
		enc := AppendString(nil, s)
		require.Len(t, enc, Uint32Len+len(s))
		got, n, err := DecodeString(enc, DefaultLimits())
		require.NoError(t, err)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, s, got)
	}

	_, _, err := DecodeString([]byte{5, 0, 0, 0, 'a'}, DefaultLimits())
	assert.ErrorIs(t, err, ErrShortString)

	_, _, err = DecodeString(AppendString(nil, "toolong"), Limits{MaxStringBytes: 3})
	assert.ErrorIs(t, err, ErrStringTooLarge)
}

func TestStreamReadsExactLengthFromSmallChunks(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	payload := []byte(strings.Repeat("0123456789abcdef", 700))
	go func() {
		for i := 0; i < len(payload); i += 7 {
			end := min(i+7, len(payload))
			if _, err := a.Write(payload[i:end]); err != nil {
				return
			}
		}
	}()

	s := NewStream(b, StreamConfig{IOTimeout: 2 * time.Second})
	got := make([]byte, len(payload))
	require.NoError(t, s.ReadExact(got, connprov.Timed))
	assert.Equal(t, payload, got)
}

func TestStreamUint32AndStringAcrossPipe(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	writer := NewStream(a, StreamConfig{})
	reader := NewStream(b, StreamConfig{})

	long := strings.Repeat("ü", ChunkSize)
	errc := make(chan error, 1)
	go func() {
		if err := writer.WriteUint32(42, connprov.Blocking); err != nil {
			errc <- err
			return
		}
		if err := writer.WriteString("ping", connprov.Blocking); err != nil {
			errc <- err
			return
		}
		if err := writer.WriteString("", connprov.Blocking); err != nil {
			errc <- err
			return
		}
		errc <- writer.WriteString(long, connprov.Blocking)
	}()

	v, err := reader.ReadUint32(connprov.Blocking)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	s, err := reader.ReadString(connprov.Blocking)
	require.NoError(t, err)
	assert.Equal(t, "ping", s)

	s, err = reader.ReadString(connprov.Blocking)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	s, err = reader.ReadString(connprov.Blocking)
	require.NoError(t, err)
	assert.Equal(t, long, s)

	require.NoError(t, <-errc)
}

func TestStreamPeerCloseMidReadIsCommunicationError(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte("short"))
		_ = a.Close()
	}()

	s := NewStream(b, StreamConfig{})
	buf := make([]byte, 64)
	err := s.ReadExact(buf, connprov.Blocking)
	require.Error(t, err)
	assert.ErrorIs(t, err, connprov.ErrCommunication)
	assert.ErrorIs(t, err, connprov.ErrPeerClosed)
	assert.False(t, errors.Is(err, connprov.ErrTimeout))
}

func TestStreamTimedReadAgainstSilentPeer(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	timeout := 150 * time.Millisecond
	s := NewStream(b, StreamConfig{IOTimeout: timeout})

	start := time.Now()
	_, err := s.ReadUint32(connprov.Timed)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, connprov.ErrCommunication)
	assert.ErrorIs(t, err, connprov.ErrTimeout)
	assert.False(t, errors.Is(err, connprov.ErrPeerClosed))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestStreamTimedWriteAgainstSilentPeer(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	s := NewStream(a, StreamConfig{IOTimeout: 100 * time.Millisecond})
	err := s.WriteString("nobody is reading", connprov.Timed)
	require.Error(t, err)
	assert.ErrorIs(t, err, connprov.ErrTimeout)
}

func TestStreamWriteAfterPeerCloseFails(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	_ = b.Close()
	defer a.Close()

	s := NewStream(a, StreamConfig{})
	err := s.WriteUint32(7, connprov.Blocking)
	require.Error(t, err)
	assert.ErrorIs(t, err, connprov.ErrCommunication)
	assert.ErrorIs(t, err, connprov.ErrPeerClosed)
}

func TestStreamRejectsOversizedString(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		enc := EncodeUint32(1 << 20)
		_, _ = a.Write(enc[:])
	}()

	s := NewStream(b, StreamConfig{Limits: Limits{MaxStringBytes: 1024}})
	_, err := s.ReadString(connprov.Blocking)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStringTooLarge)
}

func TestStreamRefusesStringOverLimitBeforeWriting(t *testing.T) {
	testlog.Start(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	s := NewStream(a, StreamConfig{Limits: Limits{MaxStringBytes: 8}})
	err := s.WriteString("0123456789", connprov.Blocking)
	require.Error(t, err)
	assert.ErrorIs(t, err, connprov.ErrInvalidValue)

	// Nothing reached the wire, so the next string frames cleanly.
	reader := NewStream(b, StreamConfig{})
	errc := make(chan error, 1)
	go func() { errc <- s.WriteString("ok", connprov.Blocking) }()
	got, err := reader.ReadString(connprov.Blocking)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	require.NoError(t, <-errc)
}
