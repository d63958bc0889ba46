package stable

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	vectorMagic   = "DVC"
	vectorVersion = 1

	// vectorDataStart leaves room for the vector header: magic, version,
	// slot width and the committed length.
	vectorDataStart = 16
	vectorSlotOff   = 4
	vectorLenOff    = 8

	// slotLenPrefix holds the encoded length stored in front of each slot.
	slotLenPrefix = 4
)

// ErrUnboundedVector indicates an attempt to open a vector with an unbounded
// codec. Vector slots are fixed-width, so the element bound must be declared.
var ErrUnboundedVector = errors.New("vector elements require a bounded codec")

// Vector is a durable append-only sequence over one region. Elements occupy
// fixed-width slots sized by the codec's declared bound, and the slot index
// doubles as the element's public id. Entries are immutable once pushed.
type Vector[V any] struct {
	region Memory
	values Codec[V]
	slot   uint64
	length uint64
}

// OpenVector attaches a typed vector to a region, recovering the committed
// length when the region is non-empty and initializing an empty vector
// otherwise.
func OpenVector[V any](region Memory, values Codec[V]) (*Vector[V], error) {
	bound := values.Bound()
	if bound.Unbounded {
		return nil, ErrUnboundedVector
	}
	v := &Vector[V]{region: region, values: values, slot: slotLenPrefix + uint64(bound.MaxSize)}
	if region.Size() == 0 {
		if _, err := region.Grow(1); err != nil {
			return nil, err
		}
		if err := v.writeHeader(); err != nil {
			return nil, err
		}
		return v, nil
	}
	if err := v.recover(); err != nil {
		return nil, err
	}
	return v, nil
}

// Len returns the number of committed elements.
func (v *Vector[V]) Len() uint64 {
	return v.length
}

// IsEmpty reports whether the vector holds no elements.
func (v *Vector[V]) IsEmpty() bool {
	return v.length == 0
}

// Push appends value and returns its zero-based index. Values encoding over
// the declared bound are rejected without changing the vector.
func (v *Vector[V]) Push(value V) (uint64, error) {
	encoded, err := v.values.Encode(value)
	if err != nil {
		return 0, fmt.Errorf("encode element: %w", err)
	}
	if err := v.values.Bound().Check(encoded); err != nil {
		return 0, err
	}
	index := v.length
	at := vectorDataStart + index*v.slot
	end := at + v.slot
	if capacity := v.region.Size() * PageSize; end > capacity {
		pages := (end - capacity + PageSize - 1) / PageSize
		if _, err := v.region.Grow(pages); err != nil {
			return 0, err
		}
	}
	slot := make([]byte, v.slot)
	binary.BigEndian.PutUint32(slot, uint32(len(encoded)))
	copy(slot[slotLenPrefix:], encoded)
	if err := v.region.Write(at, slot); err != nil {
		return 0, err
	}
	v.length = index + 1
	if err := v.writeLen(); err != nil {
		return 0, err
	}
	return index, nil
}

// Get returns the element at index, reporting whether the index is in range.
func (v *Vector[V]) Get(index uint64) (V, bool, error) {
	var zero V
	if index >= v.length {
		return zero, false, nil
	}
	slot := make([]byte, v.slot)
	if err := v.region.Read(vectorDataStart+index*v.slot, slot); err != nil {
		return zero, false, err
	}
	length := uint64(binary.BigEndian.Uint32(slot))
	if slotLenPrefix+length > v.slot {
		return zero, false, fmt.Errorf("%w: slot %d length %d", ErrCorrupted, index, length)
	}
	value, err := v.values.Decode(slot[slotLenPrefix : slotLenPrefix+length])
	if err != nil {
		return zero, false, fmt.Errorf("%w: decode element %d: %v", ErrCorrupted, index, err)
	}
	return value, true, nil
}

// Iterate walks elements in index order until fn returns false. The walk
// covers the elements committed as of the call.
func (v *Vector[V]) Iterate(fn func(uint64, V) bool) error {
	length := v.length
	for index := uint64(0); index < length; index++ {
		value, _, err := v.Get(index)
		if err != nil {
			return err
		}
		if !fn(index, value) {
			return nil
		}
	}
	return nil
}

func (v *Vector[V]) writeHeader() error {
	header := make([]byte, vectorDataStart)
	copy(header, vectorMagic)
	header[3] = vectorVersion
	binary.BigEndian.PutUint32(header[vectorSlotOff:], uint32(v.slot))
	binary.BigEndian.PutUint64(header[vectorLenOff:], v.length)
	return v.region.Write(0, header)
}

func (v *Vector[V]) writeLen() error {
	length := make([]byte, 8)
	binary.BigEndian.PutUint64(length, v.length)
	return v.region.Write(vectorLenOff, length)
}

func (v *Vector[V]) recover() error {
	header := make([]byte, vectorDataStart)
	if err := v.region.Read(0, header); err != nil {
		return err
	}
	if string(header[:3]) != vectorMagic {
		return fmt.Errorf("%w: bad vector magic", ErrCorrupted)
	}
	if header[3] != vectorVersion {
		return fmt.Errorf("%w: vector version %d", ErrCorrupted, header[3])
	}
	slot := uint64(binary.BigEndian.Uint32(header[vectorSlotOff:]))
	if slot != v.slot {
		return fmt.Errorf("%w: slot width %d does not match declared bound %d", ErrCorrupted, slot, v.slot)
	}
	v.length = binary.BigEndian.Uint64(header[vectorLenOff:])
	if vectorDataStart+v.length*v.slot > v.region.Size()*PageSize {
		return fmt.Errorf("%w: length %d outside region", ErrCorrupted, v.length)
	}
	return nil
}
