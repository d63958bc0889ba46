package stable

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxRegions is the compile-time limit on distinct region ids. Region ids
// are a compatibility contract: once a deployment assigns a meaning to an
// id, that id keeps the meaning forever and new purposes take fresh ids.
const MaxRegions = 32

const (
	managerMagic   = "DRM"
	managerVersion = 1

	// defaultBucketPages is the allocation unit handed to regions. The
	// value is persisted in the header, so it is fixed for the lifetime of
	// a backing store.
	defaultBucketPages = 8

	maxBuckets = 480

	headerMagicOff   = 0
	headerVersionOff = 3
	headerBucketOff  = 4
	headerAllocOff   = 6
	headerRegionsOff = 32
	headerOwnerOff   = headerRegionsOff + MaxRegions*8
	headerLen        = headerOwnerOff + maxBuckets

	freeBucket = 0xFF
)

// ErrRegionID indicates a request for a region id beyond MaxRegions. This is
// a configuration error and fails fast at startup.
var ErrRegionID = errors.New("region id beyond compile-time maximum")

// RegionID names a fixed-purpose partition of the backing store.
type RegionID uint8

// Manager partitions one Memory into disjoint, independently growable
// regions. It allocates fixed-size bucket extents lazily and records the
// assignment in a header page, so the same region id resolves to the same
// bytes across any number of restarts.
type Manager struct {
	mem           Memory
	bucketPages   uint64
	allocated     uint16
	regionPages   [MaxRegions]uint64
	owner         [maxBuckets]uint8
	regionBuckets [MaxRegions][]uint16
}

// NewManager attaches to the backing store, initializing the partition
// header when the store is fresh and recovering it otherwise.
func NewManager(mem Memory) (*Manager, error) {
	m := &Manager{mem: mem, bucketPages: defaultBucketPages}
	for i := range m.owner {
		m.owner[i] = freeBucket
	}
	if mem.Size() == 0 {
		if _, err := mem.Grow(1); err != nil {
			return nil, fmt.Errorf("grow header page: %w", err)
		}
		if err := m.writeHeader(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := m.readHeader(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetRegion returns a handle bound to the region's bytes. The handle is a
// Memory whose pages are virtualized over the manager's buckets.
func (m *Manager) GetRegion(id RegionID) (*Region, error) {
	if id >= MaxRegions {
		return nil, fmt.Errorf("%w: %d >= %d", ErrRegionID, id, MaxRegions)
	}
	return &Region{manager: m, id: id}, nil
}

func (m *Manager) writeHeader() error {
	header := make([]byte, headerLen)
	copy(header[headerMagicOff:], managerMagic)
	header[headerVersionOff] = managerVersion
	binary.BigEndian.PutUint16(header[headerBucketOff:], uint16(m.bucketPages))
	binary.BigEndian.PutUint16(header[headerAllocOff:], m.allocated)
	for i, pages := range m.regionPages {
		binary.BigEndian.PutUint64(header[headerRegionsOff+i*8:], pages)
	}
	copy(header[headerOwnerOff:], m.owner[:])
	if err := m.mem.Write(0, header); err != nil {
		return fmt.Errorf("write region table: %w", err)
	}
	return nil
}

func (m *Manager) readHeader() error {
	header := make([]byte, headerLen)
	if err := m.mem.Read(0, header); err != nil {
		return fmt.Errorf("read region table: %w", err)
	}
	if string(header[headerMagicOff:headerMagicOff+3]) != managerMagic {
		return fmt.Errorf("%w: bad region table magic", ErrCorrupted)
	}
	if header[headerVersionOff] != managerVersion {
		return fmt.Errorf("%w: region table version %d", ErrCorrupted, header[headerVersionOff])
	}
	m.bucketPages = uint64(binary.BigEndian.Uint16(header[headerBucketOff:]))
	if m.bucketPages == 0 {
		return fmt.Errorf("%w: zero bucket size", ErrCorrupted)
	}
	m.allocated = binary.BigEndian.Uint16(header[headerAllocOff:])
	if m.allocated > maxBuckets {
		return fmt.Errorf("%w: %d allocated buckets", ErrCorrupted, m.allocated)
	}
	for i := range m.regionPages {
		m.regionPages[i] = binary.BigEndian.Uint64(header[headerRegionsOff+i*8:])
	}
	copy(m.owner[:], header[headerOwnerOff:])
	for bucket := uint16(0); bucket < m.allocated; bucket++ {
		id := m.owner[bucket]
		if id == freeBucket {
			continue
		}
		if id >= MaxRegions {
			return fmt.Errorf("%w: bucket %d owned by region %d", ErrCorrupted, bucket, id)
		}
		m.regionBuckets[id] = append(m.regionBuckets[id], bucket)
	}
	return nil
}

// bucketBytes returns the byte span of one bucket.
func (m *Manager) bucketBytes() uint64 {
	return m.bucketPages * PageSize
}

// Region is a Memory virtualized over the manager's buckets.
type Region struct {
	manager *Manager
	id      RegionID
}

// Size returns the region size in pages.
func (r *Region) Size() uint64 {
	return r.manager.regionPages[r.id]
}

// Grow extends the region, allocating buckets from the shared store as
// needed, and returns the previous size in pages.
func (r *Region) Grow(pages uint64) (uint64, error) {
	m := r.manager
	previous := m.regionPages[r.id]
	total := previous + pages
	required := (total + m.bucketPages - 1) / m.bucketPages
	for uint64(len(m.regionBuckets[r.id])) < required {
		if m.allocated >= maxBuckets {
			return 0, fmt.Errorf("%w: all %d buckets allocated", ErrRegionExhausted, maxBuckets)
		}
		bucket := m.allocated
		// The tail of the physical store must cover the new bucket
		// before the header records it.
		needed := 1 + uint64(bucket+1)*m.bucketPages
		if have := m.mem.Size(); have < needed {
			if _, err := m.mem.Grow(needed - have); err != nil {
				return 0, err
			}
		}
		m.owner[bucket] = uint8(r.id)
		m.allocated++
		m.regionBuckets[r.id] = append(m.regionBuckets[r.id], bucket)
	}
	m.regionPages[r.id] = total
	if err := m.writeHeader(); err != nil {
		return 0, err
	}
	return previous, nil
}

// Read fills dst from the region bytes at offset.
func (r *Region) Read(offset uint64, dst []byte) error {
	return r.traverse(offset, dst, r.manager.mem.Read)
}

// Write stores src at offset within the region.
func (r *Region) Write(offset uint64, src []byte) error {
	return r.traverse(offset, src, r.manager.mem.Write)
}

// traverse maps a virtual byte range onto physical bucket extents, applying
// op to each contiguous chunk.
func (r *Region) traverse(offset uint64, buf []byte, op func(uint64, []byte) error) error {
	m := r.manager
	if offset+uint64(len(buf)) > r.Size()*PageSize {
		return fmt.Errorf("%w: region %d access [%d, %d) beyond %d pages",
			ErrOutOfBounds, r.id, offset, offset+uint64(len(buf)), r.Size())
	}
	bucketBytes := m.bucketBytes()
	for len(buf) > 0 {
		index := offset / bucketBytes
		within := offset % bucketBytes
		chunk := bucketBytes - within
		if chunk > uint64(len(buf)) {
			chunk = uint64(len(buf))
		}
		bucket := m.regionBuckets[r.id][index]
		physical := PageSize + uint64(bucket)*bucketBytes + within
		if err := op(physical, buf[:chunk]); err != nil {
			return err
		}
		offset += chunk
		buf = buf[chunk:]
	}
	return nil
}
