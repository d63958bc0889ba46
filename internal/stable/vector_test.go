package stable

import (
	"errors"
	"fmt"
	"testing"
)

func TestVectorPushGet(t *testing.T) {
	v, err := OpenVector(newTestRegion(t, 5), rawCodec{bound: BoundedAt(32)})
	if err != nil {
		t.Fatalf("open vector: %v", err)
	}
	if !v.IsEmpty() {
		t.Fatal("fresh vector is not empty")
	}

	for i := 0; i < 4; i++ {
		index, err := v.Push(fmt.Sprintf("entry-%d", i))
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if index != uint64(i) {
			t.Fatalf("push returned index %d, want %d", index, i)
		}
	}
	if v.Len() != 4 || v.IsEmpty() {
		t.Fatalf("len %d empty=%v after four pushes", v.Len(), v.IsEmpty())
	}

	value, found, err := v.Get(2)
	if err != nil || !found || value != "entry-2" {
		t.Fatalf("get 2: %q found=%v err=%v", value, found, err)
	}
	if _, found, err := v.Get(4); err != nil || found {
		t.Fatalf("get past end: found=%v err=%v", found, err)
	}
}

func TestVectorIterateInIndexOrder(t *testing.T) {
	v, err := OpenVector(newTestRegion(t, 5), rawCodec{bound: BoundedAt(32)})
	if err != nil {
		t.Fatalf("open vector: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := v.Push(fmt.Sprintf("entry-%d", i)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	var seen []string
	if err := v.Iterate(func(index uint64, value string) bool {
		seen = append(seen, fmt.Sprintf("%d=%s", index, value))
		return true
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	want := []string{"0=entry-0", "1=entry-1", "2=entry-2"}
	if len(seen) != len(want) {
		t.Fatalf("iterated %d entries, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("position %d is %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestVectorBoundEnforcement(t *testing.T) {
	v, err := OpenVector(newTestRegion(t, 5), rawCodec{bound: BoundedAt(4)})
	if err != nil {
		t.Fatalf("open vector: %v", err)
	}
	if _, err := v.Push("okay"); err != nil {
		t.Fatalf("push within bound: %v", err)
	}
	if _, err := v.Push("too large"); !errors.Is(err, ErrSizeBoundExceeded) {
		t.Fatalf("expected ErrSizeBoundExceeded, got %v", err)
	}
	if v.Len() != 1 {
		t.Fatalf("len changed to %d after rejected push", v.Len())
	}
}

func TestVectorRequiresBoundedCodec(t *testing.T) {
	if _, err := OpenVector(newTestRegion(t, 5), rawCodec{bound: Unbounded()}); !errors.Is(err, ErrUnboundedVector) {
		t.Fatalf("expected ErrUnboundedVector, got %v", err)
	}
}

func TestVectorRecoversAcrossReopen(t *testing.T) {
	region := newTestRegion(t, 5)
	v, err := OpenVector(region, rawCodec{bound: BoundedAt(32)})
	if err != nil {
		t.Fatalf("open vector: %v", err)
	}
	for i := 0; i < 6; i++ {
		if _, err := v.Push(fmt.Sprintf("entry-%d", i)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	recovered, err := OpenVector(region, rawCodec{bound: BoundedAt(32)})
	if err != nil {
		t.Fatalf("reopen vector: %v", err)
	}
	if recovered.Len() != 6 {
		t.Fatalf("recovered len %d, want 6", recovered.Len())
	}
	value, found, err := recovered.Get(5)
	if err != nil || !found || value != "entry-5" {
		t.Fatalf("recovered entry 5: %q found=%v err=%v", value, found, err)
	}
}

func TestVectorRejectsMismatchedSlotWidth(t *testing.T) {
	region := newTestRegion(t, 5)
	if _, err := OpenVector(region, rawCodec{bound: BoundedAt(32)}); err != nil {
		t.Fatalf("open vector: %v", err)
	}
	if _, err := OpenVector(region, rawCodec{bound: BoundedAt(64)}); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted for slot width change, got %v", err)
	}
}
