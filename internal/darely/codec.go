package darely

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/H3nryK/Darely/internal/stable"
)

// Declared value bounds. Profiles have a predictable small encoding; dare
// text, task descriptions and the admin list are caller-controlled, so those
// records stay unbounded in their maps. The journal vector needs fixed-width
// slots and therefore carries its own bounded dare codec.
const (
	// ProfileMaxSize caps an encoded profile, leaving headroom for a long
	// redeemed-task list.
	ProfileMaxSize = 512
	// JournalDareMaxSize caps a journal entry; generated dare text is short
	// by prompt design.
	JournalDareMaxSize = 1024

	principalKeyWidth = 64
)

// PrincipalCodec encodes principals as fixed-width, zero-padded bytes.
// Padding with 0x00 keeps byte-lexicographic order identical to the textual
// order, which the durable map requires of its keys.
type PrincipalCodec struct{}

// Encode returns the zero-padded fixed-width form of the principal.
func (PrincipalCodec) Encode(value Principal) ([]byte, error) {
	if len(value) > MaxPrincipalLen {
		return nil, fmt.Errorf("principal %q exceeds %d bytes", value, MaxPrincipalLen)
	}
	encoded := make([]byte, principalKeyWidth)
	copy(encoded, value)
	return encoded, nil
}

// Decode strips the zero padding.
func (PrincipalCodec) Decode(encoded []byte) (Principal, error) {
	if len(encoded) != principalKeyWidth {
		return "", fmt.Errorf("principal key is %d bytes, want %d", len(encoded), principalKeyWidth)
	}
	return Principal(bytes.TrimRight(encoded, "\x00")), nil
}

// Bound declares the fixed key width.
func (PrincipalCodec) Bound() stable.Bound {
	return stable.BoundedAt(principalKeyWidth)
}

// cborCodec serializes one record type with CBOR under a declared bound.
type cborCodec[T any] struct {
	bound stable.Bound
}

func (c cborCodec[T]) Encode(value T) ([]byte, error) {
	encoded, err := cbor.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return encoded, nil
}

func (c cborCodec[T]) Decode(encoded []byte) (T, error) {
	var value T
	if err := cbor.Unmarshal(encoded, &value); err != nil {
		return value, fmt.Errorf("unmarshal record: %w", err)
	}
	return value, nil
}

func (c cborCodec[T]) Bound() stable.Bound {
	return c.bound
}

// ProfileCodec returns the bounded profile value codec.
func ProfileCodec() stable.Codec[UserProfile] {
	return cborCodec[UserProfile]{bound: stable.BoundedAt(ProfileMaxSize)}
}

// DareCodec returns the unbounded dare value codec used by the dare map.
func DareCodec() stable.Codec[Dare] {
	return cborCodec[Dare]{bound: stable.Unbounded()}
}

// JournalDareCodec returns the bounded dare codec used by the journal vector.
func JournalDareCodec() stable.Codec[Dare] {
	return cborCodec[Dare]{bound: stable.BoundedAt(JournalDareMaxSize)}
}

// TaskCodec returns the unbounded redemption task value codec.
func TaskCodec() stable.Codec[RedemptionTask] {
	return cborCodec[RedemptionTask]{bound: stable.Unbounded()}
}

// ConfigCodec returns the unbounded config value codec.
func ConfigCodec() stable.Codec[Config] {
	return cborCodec[Config]{bound: stable.Unbounded()}
}
