package fs

import (
	"path/filepath"
	"testing"
)

func TestImageDiskRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenImageDisk(filepath.Join(dir, "swap.img"), "swap", 64*SECTSZ)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	want := make([]uint8, SECTSZ)
	for i := range want {
		want[i] = uint8(i)
	}
	WriteSector(d, 3, want)

	got := make([]uint8, SECTSZ)
	ReadSector(d, 3, got)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], want[i])
		}
	}
}
