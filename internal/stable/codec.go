package stable

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrSizeBoundExceeded indicates an encoded value is larger than the
	// codec's declared bound. The write that triggered it was rejected and
	// prior state is unchanged.
	ErrSizeBoundExceeded = errors.New("encoded value exceeds declared size bound")

	// ErrCorrupted indicates stored bytes failed validation or decoding.
	// Collections never produce such bytes, so hitting this means the
	// backing store itself is inconsistent and the operation must abort.
	ErrCorrupted = errors.New("stable region is corrupted")

	// ErrRegionExhausted indicates the backing store cannot grow any further.
	ErrRegionExhausted = errors.New("backing store capacity exhausted")
)

// Bound declares the maximum encoded size of a value type. Bounded codecs
// have every write checked against MaxSize; unbounded codecs accept any
// encoded length (used where text length is caller-controlled).
type Bound struct {
	MaxSize   uint32
	Unbounded bool
}

// BoundedAt declares a bounded encoding of at most max bytes.
func BoundedAt(max uint32) Bound {
	return Bound{MaxSize: max}
}

// Unbounded declares an encoding with no size bound.
func Unbounded() Bound {
	return Bound{Unbounded: true}
}

// Check rejects encodings larger than the bound.
func (b Bound) Check(encoded []byte) error {
	if b.Unbounded {
		return nil
	}
	if uint32(len(encoded)) > b.MaxSize {
		return fmt.Errorf("%w: %d bytes over bound %d", ErrSizeBoundExceeded, len(encoded), b.MaxSize)
	}
	return nil
}

// Codec serializes values of one type for storage in a durable collection.
// Decode must invert Encode for every value Encode accepts; a Decode failure
// on stored bytes is reported as corruption by the collection.
//
// Codecs used for map keys must additionally be order-preserving: comparing
// two encodings byte-lexicographically must order them the same way the
// domain orders the keys. Fixed-width big-endian encodings have this
// property.
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(encoded []byte) (T, error)
	Bound() Bound
}

// U64Codec encodes unsigned 64-bit ids as fixed-width big-endian bytes, so
// byte order matches numeric order.
type U64Codec struct{}

// Encode returns the 8-byte big-endian form of the id.
func (U64Codec) Encode(value uint64) ([]byte, error) {
	encoded := make([]byte, 8)
	binary.BigEndian.PutUint64(encoded, value)
	return encoded, nil
}

// Decode parses an 8-byte big-endian id.
func (U64Codec) Decode(encoded []byte) (uint64, error) {
	if len(encoded) != 8 {
		return 0, fmt.Errorf("%w: u64 key is %d bytes", ErrCorrupted, len(encoded))
	}
	return binary.BigEndian.Uint64(encoded), nil
}

// Bound declares the fixed 8-byte width.
func (U64Codec) Bound() Bound {
	return BoundedAt(8)
}
