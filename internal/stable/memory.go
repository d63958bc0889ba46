package stable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PageSize is the allocation granularity of a Memory in bytes.
const PageSize = 64 * 1024

// ErrOutOfBounds indicates an access past the grown size of a Memory.
var ErrOutOfBounds = errors.New("memory access out of bounds")

// Memory is a page-addressable persistent byte store. Offsets are absolute
// byte positions; accesses must fall within Size() pages.
type Memory interface {
	// Size returns the current size in pages.
	Size() uint64
	// Grow extends the store by the given number of pages and returns the
	// previous size in pages. New pages read as zero.
	Grow(pages uint64) (uint64, error)
	// Read fills dst from the bytes at offset.
	Read(offset uint64, dst []byte) error
	// Write stores src at offset.
	Write(offset uint64, src []byte) error
}

// FileMemory is a Memory backed by a single file on disk. Growth extends the
// file in whole pages; writes are followed by an fsync so that a committed
// record survives a crash.
type FileMemory struct {
	file  *os.File
	pages uint64
}

// OpenFileMemory opens (or creates) the backing file at path.
func OpenFileMemory(path string) (*FileMemory, error) {
	if path == "" {
		return nil, fmt.Errorf("backing file path is required")
	}
	file, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open backing file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat backing file: %w", err)
	}
	size := info.Size()
	if size%PageSize != 0 {
		_ = file.Close()
		return nil, fmt.Errorf("backing file size %d is not page aligned", size)
	}
	return &FileMemory{file: file, pages: uint64(size) / PageSize}, nil
}

// Close releases the backing file.
func (m *FileMemory) Close() error {
	if m == nil || m.file == nil {
		return nil
	}
	return m.file.Close()
}

// Size returns the current size in pages.
func (m *FileMemory) Size() uint64 {
	return m.pages
}

// Grow extends the backing file by the given number of pages.
func (m *FileMemory) Grow(pages uint64) (uint64, error) {
	previous := m.pages
	grown := previous + pages
	if err := m.file.Truncate(int64(grown) * PageSize); err != nil {
		return 0, fmt.Errorf("%w: grow backing file to %d pages: %v", ErrRegionExhausted, grown, err)
	}
	if err := m.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync backing file: %w", err)
	}
	m.pages = grown
	return previous, nil
}

// Read fills dst from the bytes at offset.
func (m *FileMemory) Read(offset uint64, dst []byte) error {
	if err := m.check(offset, len(dst)); err != nil {
		return err
	}
	if _, err := m.file.ReadAt(dst, int64(offset)); err != nil {
		return fmt.Errorf("read backing file at %d: %w", offset, err)
	}
	return nil
}

// Write stores src at offset and syncs the file.
func (m *FileMemory) Write(offset uint64, src []byte) error {
	if err := m.check(offset, len(src)); err != nil {
		return err
	}
	if _, err := m.file.WriteAt(src, int64(offset)); err != nil {
		return fmt.Errorf("write backing file at %d: %w", offset, err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("sync backing file: %w", err)
	}
	return nil
}

func (m *FileMemory) check(offset uint64, n int) error {
	if offset+uint64(n) > m.pages*PageSize {
		return fmt.Errorf("%w: [%d, %d) beyond %d pages", ErrOutOfBounds, offset, offset+uint64(n), m.pages)
	}
	return nil
}

// HeapMemory is an in-process Memory used by tests and tooling.
type HeapMemory struct {
	data []byte
}

// NewHeapMemory returns an empty in-process Memory.
func NewHeapMemory() *HeapMemory {
	return &HeapMemory{}
}

// Size returns the current size in pages.
func (m *HeapMemory) Size() uint64 {
	return uint64(len(m.data)) / PageSize
}

// Grow extends the store by the given number of pages.
func (m *HeapMemory) Grow(pages uint64) (uint64, error) {
	previous := m.Size()
	m.data = append(m.data, make([]byte, pages*PageSize)...)
	return previous, nil
}

// Read fills dst from the bytes at offset.
func (m *HeapMemory) Read(offset uint64, dst []byte) error {
	if offset+uint64(len(dst)) > uint64(len(m.data)) {
		return fmt.Errorf("%w: [%d, %d) beyond %d bytes", ErrOutOfBounds, offset, offset+uint64(len(dst)), len(m.data))
	}
	copy(dst, m.data[offset:])
	return nil
}

// Write stores src at offset.
func (m *HeapMemory) Write(offset uint64, src []byte) error {
	if offset+uint64(len(src)) > uint64(len(m.data)) {
		return fmt.Errorf("%w: [%d, %d) beyond %d bytes", ErrOutOfBounds, offset, offset+uint64(len(src)), len(m.data))
	}
	copy(m.data[offset:], src)
	return nil
}
