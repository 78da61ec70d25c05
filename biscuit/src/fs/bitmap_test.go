package fs

import (
	"testing"

	"defs"
)

func TestBitmapReserveRelease(t *testing.T) {
	sb := MkSwapBitmap(64, 8)
	start, err := sb.Reserve()
	if err != 0 {
		t.Fatalf("reserve failed: %v", err)
	}
	if start < 8 {
		t.Fatalf("reserve returned sector in reserved prefix: %d", start)
	}
	before := sb.SetCount()
	sb.Release(start)
	after := sb.SetCount()
	if before-after != SectorsPerSlot {
		t.Fatalf("release freed %d bits, want %d", before-after, SectorsPerSlot)
	}
}

func TestBitmapOutOfSwap(t *testing.T) {
	sb := MkSwapBitmap(16, 8) // only one 8-sector run available
	if _, err := sb.Reserve(); err != 0 {
		t.Fatalf("first reserve should succeed: %v", err)
	}
	if _, err := sb.Reserve(); err != defs.OutOfSwap {
		t.Fatalf("second reserve should fail with OutOfSwap, got %v", err)
	}
}
