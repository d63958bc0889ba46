package stable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
)

const (
	mapMagic   = "DKM"
	mapVersion = 1

	// mapDataStart leaves room for the map header: magic, version and the
	// committed-bytes watermark.
	mapDataStart = 16
	mapUsedOff   = 4

	// recordHeaderLen frames every entry: crc32, flags, key length, value
	// length.
	recordHeaderLen = 4 + 1 + 2 + 4

	flagTombstone = 0x01
)

// dirEntry locates the live value for one key inside the region.
type dirEntry struct {
	key    []byte
	value  uint64
	length uint32
}

// Map is a durable ordered map over one region. Entries are appended as
// CRC-framed records behind a committed-bytes watermark and indexed by an
// in-memory directory sorted on the encoded key, so lookups are logarithmic
// and iteration yields ascending key order. Reopening the region replays the
// record log and recovers identical contents.
type Map[K any, V any] struct {
	region Memory
	keys   Codec[K]
	values Codec[V]
	index  []dirEntry
	used   uint64
}

// OpenMap attaches a typed map to a region, recovering prior entries when
// the region is non-empty and initializing an empty map otherwise. Opening
// the same region twice yields handles observing the same data.
func OpenMap[K any, V any](region Memory, keys Codec[K], values Codec[V]) (*Map[K, V], error) {
	m := &Map[K, V]{region: region, keys: keys, values: values}
	if region.Size() == 0 {
		if _, err := region.Grow(1); err != nil {
			return nil, err
		}
		m.used = mapDataStart
		if err := m.writeHeader(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := m.recover(); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() int {
	return len(m.index)
}

// Get returns the value stored under key, reporting whether it was present.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var zero V
	encodedKey, err := m.keys.Encode(key)
	if err != nil {
		return zero, false, fmt.Errorf("encode key: %w", err)
	}
	return m.lookup(encodedKey)
}

// Insert upserts key to value, returning the previous value when one
// existed. A value whose encoding exceeds the declared bound is rejected and
// the prior entry is left untouched.
func (m *Map[K, V]) Insert(key K, value V) (V, bool, error) {
	var zero V
	encodedKey, err := m.keys.Encode(key)
	if err != nil {
		return zero, false, fmt.Errorf("encode key: %w", err)
	}
	if err := m.keys.Bound().Check(encodedKey); err != nil {
		return zero, false, err
	}
	encodedValue, err := m.values.Encode(value)
	if err != nil {
		return zero, false, fmt.Errorf("encode value: %w", err)
	}
	if err := m.values.Bound().Check(encodedValue); err != nil {
		return zero, false, err
	}
	previous, had, err := m.lookup(encodedKey)
	if err != nil {
		return zero, false, err
	}
	valueOff, err := m.append(0, encodedKey, encodedValue)
	if err != nil {
		return zero, false, err
	}
	m.setEntry(dirEntry{key: encodedKey, value: valueOff, length: uint32(len(encodedValue))})
	return previous, had, nil
}

// Remove deletes key, returning the prior value when one existed.
func (m *Map[K, V]) Remove(key K) (V, bool, error) {
	var zero V
	encodedKey, err := m.keys.Encode(key)
	if err != nil {
		return zero, false, fmt.Errorf("encode key: %w", err)
	}
	previous, had, err := m.lookup(encodedKey)
	if err != nil || !had {
		return zero, false, err
	}
	if _, err := m.append(flagTombstone, encodedKey, nil); err != nil {
		return zero, false, err
	}
	m.dropEntry(encodedKey)
	return previous, true, nil
}

// Iterate walks live entries in ascending key order until fn returns false.
// The walk reflects the contents as of the call: entries inserted or removed
// by fn are not observed.
func (m *Map[K, V]) Iterate(fn func(K, V) bool) error {
	snapshot := make([]dirEntry, len(m.index))
	copy(snapshot, m.index)
	for _, entry := range snapshot {
		key, err := m.keys.Decode(entry.key)
		if err != nil {
			return fmt.Errorf("%w: decode key: %v", ErrCorrupted, err)
		}
		value, err := m.readValue(entry)
		if err != nil {
			return err
		}
		if !fn(key, value) {
			return nil
		}
	}
	return nil
}

func (m *Map[K, V]) lookup(encodedKey []byte) (V, bool, error) {
	var zero V
	i, ok := m.search(encodedKey)
	if !ok {
		return zero, false, nil
	}
	value, err := m.readValue(m.index[i])
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

func (m *Map[K, V]) readValue(entry dirEntry) (V, error) {
	var zero V
	encoded := make([]byte, entry.length)
	if err := m.region.Read(entry.value, encoded); err != nil {
		return zero, err
	}
	value, err := m.values.Decode(encoded)
	if err != nil {
		return zero, fmt.Errorf("%w: decode value: %v", ErrCorrupted, err)
	}
	return value, nil
}

// search returns the directory slot for the key and whether it is occupied
// by an exact match.
func (m *Map[K, V]) search(encodedKey []byte) (int, bool) {
	i := sort.Search(len(m.index), func(i int) bool {
		return bytes.Compare(m.index[i].key, encodedKey) >= 0
	})
	return i, i < len(m.index) && bytes.Equal(m.index[i].key, encodedKey)
}

func (m *Map[K, V]) setEntry(entry dirEntry) {
	i, ok := m.search(entry.key)
	if ok {
		m.index[i] = entry
		return
	}
	m.index = append(m.index, dirEntry{})
	copy(m.index[i+1:], m.index[i:])
	m.index[i] = entry
}

func (m *Map[K, V]) dropEntry(encodedKey []byte) {
	i, ok := m.search(encodedKey)
	if !ok {
		return
	}
	m.index = append(m.index[:i], m.index[i+1:]...)
}

// append writes one framed record at the watermark and then commits it by
// advancing the watermark. A crash between the two leaves a torn record past
// the watermark, which recovery ignores.
func (m *Map[K, V]) append(flags byte, encodedKey, encodedValue []byte) (uint64, error) {
	at := m.used
	record := make([]byte, recordHeaderLen+len(encodedKey)+len(encodedValue))
	record[4] = flags
	binary.BigEndian.PutUint16(record[5:], uint16(len(encodedKey)))
	binary.BigEndian.PutUint32(record[7:], uint32(len(encodedValue)))
	copy(record[recordHeaderLen:], encodedKey)
	copy(record[recordHeaderLen+len(encodedKey):], encodedValue)
	binary.BigEndian.PutUint32(record, crc32.ChecksumIEEE(record[4:]))

	end := at + uint64(len(record))
	if capacity := m.region.Size() * PageSize; end > capacity {
		pages := (end - capacity + PageSize - 1) / PageSize
		if _, err := m.region.Grow(pages); err != nil {
			return 0, err
		}
	}
	if err := m.region.Write(at, record); err != nil {
		return 0, err
	}
	m.used = end
	if err := m.writeUsed(); err != nil {
		// The record bytes are down but the durable watermark is not. Keep
		// the in-memory watermark at the old value so the next successful
		// append overwrites the orphan instead of committing it.
		m.used = at
		return 0, err
	}
	return at + recordHeaderLen + uint64(len(encodedKey)), nil
}

func (m *Map[K, V]) writeHeader() error {
	header := make([]byte, mapDataStart)
	copy(header, mapMagic)
	header[3] = mapVersion
	binary.BigEndian.PutUint64(header[mapUsedOff:], m.used)
	return m.region.Write(0, header)
}

func (m *Map[K, V]) writeUsed() error {
	used := make([]byte, 8)
	binary.BigEndian.PutUint64(used, m.used)
	return m.region.Write(mapUsedOff, used)
}

// recover rebuilds the key directory by replaying every committed record.
func (m *Map[K, V]) recover() error {
	header := make([]byte, mapDataStart)
	if err := m.region.Read(0, header); err != nil {
		return err
	}
	if string(header[:3]) != mapMagic {
		return fmt.Errorf("%w: bad map magic", ErrCorrupted)
	}
	if header[3] != mapVersion {
		return fmt.Errorf("%w: map version %d", ErrCorrupted, header[3])
	}
	m.used = binary.BigEndian.Uint64(header[mapUsedOff:])
	if m.used < mapDataStart || m.used > m.region.Size()*PageSize {
		return fmt.Errorf("%w: watermark %d outside region", ErrCorrupted, m.used)
	}
	for off := uint64(mapDataStart); off < m.used; {
		frame := make([]byte, recordHeaderLen)
		if err := m.region.Read(off, frame); err != nil {
			return err
		}
		keyLen := uint64(binary.BigEndian.Uint16(frame[5:]))
		valueLen := uint64(binary.BigEndian.Uint32(frame[7:]))
		total := recordHeaderLen + keyLen + valueLen
		if off+total > m.used {
			return fmt.Errorf("%w: record at %d crosses watermark", ErrCorrupted, off)
		}
		payload := make([]byte, keyLen+valueLen)
		if err := m.region.Read(off+recordHeaderLen, payload); err != nil {
			return err
		}
		sum := crc32.ChecksumIEEE(append(frame[4:recordHeaderLen:recordHeaderLen], payload...))
		if sum != binary.BigEndian.Uint32(frame) {
			return fmt.Errorf("%w: record checksum mismatch at %d", ErrCorrupted, off)
		}
		encodedKey := payload[:keyLen:keyLen]
		if frame[4]&flagTombstone != 0 {
			m.dropEntry(encodedKey)
		} else {
			m.setEntry(dirEntry{
				key:    encodedKey,
				value:  off + recordHeaderLen + keyLen,
				length: uint32(valueLen),
			})
		}
		off += total
	}
	return nil
}
