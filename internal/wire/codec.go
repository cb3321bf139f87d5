package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Uint32Len is the wire width of a FixedUint32.
	Uint32Len = 4
	// ChunkSize is the scratch buffer size every transfer is chunked through.
	ChunkSize = 4096
)

var (
	ErrShortUint32    = errors.New("wire: short uint32")
	ErrShortString    = errors.New("wire: short string")
	ErrStringTooLarge = errors.New("wire: string too large")
)

// Limits constrains decode memory use.
type Limits struct {
	MaxStringBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxStringBytes: 1 << 30,
	}
}

// EncodeUint32 returns v as 4 little-endian bytes.
func EncodeUint32(v uint32) [Uint32Len]byte {
	var b [Uint32Len]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b
}

// DecodeUint32 reads a little-endian uint32 from the first 4 bytes of b.
func DecodeUint32(b []byte) (uint32, error) {
	if len(b) < Uint32Len {
		return 0, ErrShortUint32
	}
	return binary.LittleEndian.Uint32(b), nil
}

// AppendString appends the length-prefixed encoding of s to dst.
func AppendString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
	return append(dst, s...)
}

// DecodeString decodes one length-prefixed string from b and returns it with
// the number of bytes consumed.
func DecodeString(b []byte, limits Limits) (string, int, error) {
	n, err := DecodeUint32(b)
	if err != nil {
		return "", 0, ErrShortString
	}
	if limits.MaxStringBytes > 0 && n > limits.MaxStringBytes {
		return "", 0, fmt.Errorf("%w: %d bytes", ErrStringTooLarge, n)
	}
	end := Uint32Len + int(n)
	if len(b) < end {
		return "", 0, ErrShortString
	}
	return string(b[Uint32Len:end]), end, nil
}
