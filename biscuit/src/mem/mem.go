// Package mem manages physical memory: page-sized frames and the
// architectural PTE bits the pager manipulates.
package mem

import (
	"fmt"
	"sync"
	"unsafe"
)

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

// Architectural PTE bits (32-bit two-level page table, §3 of the design).
const (
	PTE_P Pa_t = 1 << 0 // present
	PTE_W Pa_t = 1 << 1 // writable
	PTE_U Pa_t = 1 << 2 // user accessible
	PTE_A Pa_t = 1 << 5 // accessed
	PTE_D Pa_t = 1 << 6 // dirty
)

// PTE_ADDR extracts the frame-address bits of a PTE.
const PTE_ADDR Pa_t = PGMASK

// Pa_t represents a physical address.
type Pa_t uintptr

// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

// Pg_t is a generic page of ints, used where word-at-a-time access is handy.
type Pg_t [PGSIZE / 8]int

// Pg2bytes reinterprets a page of ints as a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

// AllocFlags selects zero-fill behavior for AllocPage.
type AllocFlags int

const (
	ZERO AllocFlags = 1 << iota
	USER
)

// page_t is a single tracked physical page: its bytes and free-list link.
type page_t struct {
	bytes Bytepg_t
	next  int32 // index of next free page, -1 if none
	used  bool
}

// Physmem_t is a simple free-list physical-page allocator. Unlike the
// refcounted, per-CPU allocator this subsystem's teacher ships, pages
// here are owned 1:1 by frame descriptors (or are free) — sharing is
// expressed by the frame table's alias list, not by a page refcount.
type Physmem_t struct {
	sync.Mutex
	pages []page_t
	freeh int32 // head of the free list, -1 if empty
	nfree int
}

// Physmem is the global physical memory allocator instance.
var Physmem = &Physmem_t{}

// Phys_init reserves npages page-sized slots for the allocator to hand out.
func Phys_init(npages int) *Physmem_t {
	phys := Physmem
	phys.pages = make([]page_t, npages)
	for i := range phys.pages {
		phys.pages[i].next = int32(i) + 1
	}
	phys.pages[npages-1].next = -1
	phys.freeh = 0
	phys.nfree = npages
	fmt.Printf("Reserved %v pages (%vKB)\n", npages, npages*PGSIZE/1024)
	return phys
}

// pa2idx converts a Pa_t handed out by this allocator back to a slot index.
func (phys *Physmem_t) pa2idx(pa Pa_t) int32 {
	return int32(pa>>PGSHIFT) - 1
}

func (phys *Physmem_t) idx2pa(idx int32) Pa_t {
	return Pa_t(idx+1) << PGSHIFT
}

// AllocPage hands out one page-sized frame. With ZERO set the page's
// bytes are cleared before being returned, matching the file-system
// collaborator contract in §6: the zero-filled variant is mandatory on
// swap-in to avoid leaking stale kernel or another process's data.
func (phys *Physmem_t) AllocPage(flags AllocFlags) (Pa_t, bool) {
	phys.Lock()
	defer phys.Unlock()
	if phys.freeh < 0 {
		return 0, false
	}
	idx := phys.freeh
	phys.freeh = phys.pages[idx].next
	phys.nfree--
	phys.pages[idx].used = true
	if flags&ZERO != 0 {
		phys.pages[idx].bytes = Bytepg_t{}
	}
	return phys.idx2pa(idx), true
}

// FreePage returns a previously allocated frame to the free list.
func (phys *Physmem_t) FreePage(pa Pa_t) {
	phys.Lock()
	defer phys.Unlock()
	idx := phys.pa2idx(pa)
	if !phys.pages[idx].used {
		panic("double free")
	}
	phys.pages[idx].used = false
	phys.pages[idx].next = phys.freeh
	phys.freeh = idx
	phys.nfree++
}

// Bytes returns the backing byte slice for the given physical page.
func (phys *Physmem_t) Bytes(pa Pa_t) *Bytepg_t {
	idx := phys.pa2idx(pa)
	return &phys.pages[idx].bytes
}

// Nfree reports the number of pages still available.
func (phys *Physmem_t) Nfree() int {
	phys.Lock()
	defer phys.Unlock()
	return phys.nfree
}
