package stable

import (
	"errors"
	"path/filepath"
	"testing"
)

// rawCodec stores strings verbatim; tests pick the bound per case.
type rawCodec struct {
	bound Bound
}

func (c rawCodec) Encode(value string) ([]byte, error) { return []byte(value), nil }
func (c rawCodec) Decode(encoded []byte) (string, error) {
	return string(encoded), nil
}
func (c rawCodec) Bound() Bound { return c.bound }

func newTestRegion(t *testing.T, id RegionID) *Region {
	t.Helper()
	manager, err := NewManager(NewHeapMemory())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	region, err := manager.GetRegion(id)
	if err != nil {
		t.Fatalf("get region: %v", err)
	}
	return region
}

func TestMapInsertGetRemove(t *testing.T) {
	m, err := OpenMap(newTestRegion(t, 1), U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}

	if _, found, err := m.Get(7); err != nil || found {
		t.Fatalf("expected absent key, found=%v err=%v", found, err)
	}
	if _, had, err := m.Insert(7, "first"); err != nil || had {
		t.Fatalf("fresh insert: had=%v err=%v", had, err)
	}
	previous, had, err := m.Insert(7, "second")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !had || previous != "first" {
		t.Fatalf("expected previous %q, got %q (had=%v)", "first", previous, had)
	}
	value, found, err := m.Get(7)
	if err != nil || !found || value != "second" {
		t.Fatalf("get after upsert: %q found=%v err=%v", value, found, err)
	}

	removed, had, err := m.Remove(7)
	if err != nil || !had || removed != "second" {
		t.Fatalf("remove: %q had=%v err=%v", removed, had, err)
	}
	if _, found, _ := m.Get(7); found {
		t.Fatal("key still present after remove")
	}
	if _, had, _ := m.Remove(7); had {
		t.Fatal("second remove reported a prior value")
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty map, len %d", m.Len())
	}
}

func TestMapIterateAscendingWithoutDuplicates(t *testing.T) {
	m, err := OpenMap(newTestRegion(t, 1), U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	inserts := []uint64{42, 3, 99, 3, 17, 256, 1, 99, 70000}
	for _, key := range inserts {
		if _, _, err := m.Insert(key, "v"); err != nil {
			t.Fatalf("insert %d: %v", key, err)
		}
	}

	var keys []uint64
	if err := m.Iterate(func(key uint64, _ string) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	want := []uint64{1, 3, 17, 42, 99, 256, 70000}
	if len(keys) != len(want) || len(keys) != m.Len() {
		t.Fatalf("iterated %d keys, want %d (len %d)", len(keys), len(want), m.Len())
	}
	for i, key := range keys {
		if key != want[i] {
			t.Fatalf("position %d is %d, want %d", i, key, want[i])
		}
		if i > 0 && keys[i-1] >= key {
			t.Fatalf("keys not strictly ascending at %d: %v", i, keys)
		}
	}
}

func TestMapEmptyIterate(t *testing.T) {
	m, err := OpenMap(newTestRegion(t, 1), U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	calls := 0
	if err := m.Iterate(func(uint64, string) bool { calls++; return true }); err != nil {
		t.Fatalf("iterate empty map: %v", err)
	}
	if calls != 0 {
		t.Fatalf("empty map yielded %d entries", calls)
	}
}

func TestMapOpenTwiceObservesSameData(t *testing.T) {
	region := newTestRegion(t, 1)
	first, err := OpenMap(region, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	for key := uint64(1); key <= 5; key++ {
		if _, _, err := first.Insert(key, "value"); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	second, err := OpenMap(region, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("reopen map: %v", err)
	}
	if second.Len() != first.Len() {
		t.Fatalf("reopened len %d, want %d", second.Len(), first.Len())
	}
	for key := uint64(1); key <= 5; key++ {
		a, foundA, _ := first.Get(key)
		b, foundB, _ := second.Get(key)
		if !foundA || !foundB || a != b {
			t.Fatalf("handles disagree on key %d: %q/%v vs %q/%v", key, a, foundA, b, foundB)
		}
	}
}

func TestMapBoundEnforcementLeavesMapUnchanged(t *testing.T) {
	m, err := OpenMap(newTestRegion(t, 1), U64Codec{}, rawCodec{bound: BoundedAt(8)})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	if _, _, err := m.Insert(1, "in-bound"); err != nil {
		t.Fatalf("insert within bound: %v", err)
	}
	if _, _, err := m.Insert(1, "way past the bound"); !errors.Is(err, ErrSizeBoundExceeded) {
		t.Fatalf("expected ErrSizeBoundExceeded, got %v", err)
	}
	value, found, err := m.Get(1)
	if err != nil || !found || value != "in-bound" {
		t.Fatalf("prior value lost after rejected write: %q found=%v err=%v", value, found, err)
	}
	if m.Len() != 1 {
		t.Fatalf("len changed to %d after rejected write", m.Len())
	}
}

func TestMapRecoversFromBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bin")
	mem, err := OpenFileMemory(path)
	if err != nil {
		t.Fatalf("open file memory: %v", err)
	}
	manager, err := NewManager(mem)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	region, err := manager.GetRegion(1)
	if err != nil {
		t.Fatalf("get region: %v", err)
	}
	m, err := OpenMap(region, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	for key := uint64(0); key < 10; key++ {
		if _, _, err := m.Insert(key, "payload"); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, _, err := m.Remove(4); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := mem.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenFileMemory(path)
	if err != nil {
		t.Fatalf("reopen file memory: %v", err)
	}
	defer reopened.Close()
	recoveredManager, err := NewManager(reopened)
	if err != nil {
		t.Fatalf("reattach manager: %v", err)
	}
	recoveredRegion, err := recoveredManager.GetRegion(1)
	if err != nil {
		t.Fatalf("get region: %v", err)
	}
	recovered, err := OpenMap(recoveredRegion, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("reopen map: %v", err)
	}
	if recovered.Len() != 9 {
		t.Fatalf("recovered %d entries, want 9", recovered.Len())
	}
	if _, found, _ := recovered.Get(4); found {
		t.Fatal("removed key resurrected by recovery")
	}
	if value, found, _ := recovered.Get(7); !found || value != "payload" {
		t.Fatalf("recovered key 7 is %q found=%v", value, found)
	}
}

func TestMapIgnoresBytesPastWatermark(t *testing.T) {
	region := newTestRegion(t, 1)
	m, err := OpenMap(region, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	if _, _, err := m.Insert(1, "committed"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// A crash between writing a record and advancing the watermark leaves a
	// torn record after the committed bytes.
	if err := region.Write(m.used, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}

	recovered, err := OpenMap(region, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("reopen map with torn tail: %v", err)
	}
	if recovered.Len() != 1 {
		t.Fatalf("recovered %d entries, want 1", recovered.Len())
	}
	if value, found, _ := recovered.Get(1); !found || value != "committed" {
		t.Fatalf("committed entry lost: %q found=%v", value, found)
	}
}

func TestMapDetectsChecksumCorruption(t *testing.T) {
	region := newTestRegion(t, 1)
	m, err := OpenMap(region, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	if _, _, err := m.Insert(1, "fragile"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Flip a payload byte inside the committed record.
	if err := region.Write(mapDataStart+recordHeaderLen+8, []byte{0xFF}); err != nil {
		t.Fatalf("corrupt record: %v", err)
	}
	if _, err := OpenMap(region, U64Codec{}, rawCodec{bound: Unbounded()}); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
}

// watermarkFaultMemory rejects the next watermark write, leaving the record
// bytes of that append in place but uncommitted.
type watermarkFaultMemory struct {
	Memory
	failNext bool
}

func (f *watermarkFaultMemory) Write(offset uint64, src []byte) error {
	if f.failNext && offset == mapUsedOff && len(src) == 8 {
		f.failNext = false
		return errors.New("watermark write rejected")
	}
	return f.Memory.Write(offset, src)
}

func TestMapFailedWatermarkWriteDoesNotResurrectRecord(t *testing.T) {
	mem := &watermarkFaultMemory{Memory: newTestRegion(t, 1)}
	m, err := OpenMap(mem, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("open map: %v", err)
	}
	if _, _, err := m.Insert(1, "kept"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	mem.failNext = true
	if _, _, err := m.Insert(2, "orphan"); err == nil {
		t.Fatal("expected insert to fail when the watermark write fails")
	}

	// The next successful append must reuse the orphan's offset; otherwise
	// its watermark would commit the failed record too.
	if _, _, err := m.Insert(3, "after"); err != nil {
		t.Fatalf("insert after failure: %v", err)
	}

	recovered, err := OpenMap(mem, U64Codec{}, rawCodec{bound: Unbounded()})
	if err != nil {
		t.Fatalf("reopen map: %v", err)
	}
	if _, found, _ := recovered.Get(2); found {
		t.Fatal("failed insert resurrected after recovery")
	}
	if value, found, _ := recovered.Get(1); !found || value != "kept" {
		t.Fatalf("entry 1 lost: %q found=%v", value, found)
	}
	if value, found, _ := recovered.Get(3); !found || value != "after" {
		t.Fatalf("entry 3 lost: %q found=%v", value, found)
	}
}
