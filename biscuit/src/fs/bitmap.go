package fs

import (
	"defs"
	"limits"
)

// SectorsPerSlot is the number of consecutive sectors in one swap page
// slot: 8 sectors of 512B each make one PGSIZE (4096B) page.
const SectorsPerSlot = 8

// SwapBitmap is a first-fit bitmap allocator over swap-disk sectors,
// allocating and freeing in SectorsPerSlot-sized runs (§4.A). Bit
// layout follows the big-endian-within-word convention: bit (63-k) of
// word (sector/64) corresponds to sector (word*64 + k), matching how
// gopher-os's frame-pool bitmap addresses physical frames.
type SwapBitmap struct {
	bits     []uint64
	nsectors int
	reserved int // sectors [0, reserved) are always allocated
}

// MkSwapBitmap allocates a bitmap covering nsectors sectors, with the
// first reservedPrefix sectors pre-marked allocated (room for fixed
// metadata, per §4.A and §6's "raw, no header... fixed prefix reserved").
func MkSwapBitmap(nsectors, reservedPrefix int) *SwapBitmap {
	words := (nsectors + 63) / 64
	sb := &SwapBitmap{
		bits:     make([]uint64, words),
		nsectors: nsectors,
		reserved: reservedPrefix,
	}
	for s := 0; s < reservedPrefix; s++ {
		sb.mark(s, true)
	}
	return sb
}

func (sb *SwapBitmap) wordbit(sector int) (int, uint) {
	word := sector / 64
	bit := uint(63 - (sector % 64))
	return word, bit
}

func (sb *SwapBitmap) test(sector int) bool {
	w, b := sb.wordbit(sector)
	return sb.bits[w]&(uint64(1)<<b) != 0
}

func (sb *SwapBitmap) mark(sector int, used bool) {
	w, b := sb.wordbit(sector)
	if used {
		sb.bits[w] |= uint64(1) << b
	} else {
		sb.bits[w] &^= uint64(1) << b
	}
}

// Reserve claims the first free run of SectorsPerSlot consecutive
// sectors and returns its starting sector, marking them allocated. It
// fails with OutOfSwap if no such run exists.
func (sb *SwapBitmap) Reserve() (int, defs.Err_t) {
	for start := sb.reserved; start+SectorsPerSlot <= sb.nsectors; start++ {
		free := true
		for i := 0; i < SectorsPerSlot; i++ {
			if sb.test(start + i) {
				free = false
				start += i // skip past the run we just found occupied
				break
			}
		}
		if free {
			if !limits.Syslimit.Blocks.Taken(SectorsPerSlot) {
				return 0, defs.OutOfSwap
			}
			for i := 0; i < SectorsPerSlot; i++ {
				sb.mark(start+i, true)
			}
			return start, 0
		}
	}
	return 0, defs.OutOfSwap
}

// Release frees the SectorsPerSlot-sector run starting at sector.
func (sb *SwapBitmap) Release(sector int) {
	for i := 0; i < SectorsPerSlot; i++ {
		sb.mark(sector+i, false)
	}
	limits.Syslimit.Blocks.Given(SectorsPerSlot)
}

// SetCount returns the number of currently allocated sectors, used by
// tests asserting swap-slot accounting (testable property 5).
func (sb *SwapBitmap) SetCount() int {
	n := 0
	for s := 0; s < sb.nsectors; s++ {
		if sb.test(s) {
			n++
		}
	}
	return n
}
