// Package vm implements the virtual memory subsystem: the frame table,
// the second-chance clock, the swap-out/swap-in engine, PTE
// installation and teardown, and the page-fault handler that drives
// them (components B-H). A single VmCore value owns the frame table,
// swap bitmap, and disks, constructed once at boot and passed to
// collaborators rather than reached through ambient globals (per the
// re-architecture guidance: global state belongs in one explicit
// value).
package vm

import (
	"io"
	"sync"

	"github.com/google/pprof/profile"
	"golang.org/x/sync/semaphore"

	"accnt"
	"caller"
	"defs"
	"fs"
	"hashtable"
	"mem"
	"stats"
	"tinfo"
)

// VmCore is the pager's process-wide singleton (§9 design notes).
type VmCore struct {
	// the page-fault lock: serializes all frame-table mutation,
	// alias-list edits, clock scanning, and swap-in/out (§5).
	mu        sync.Mutex
	pgfltaken bool

	frames   *FrameTable
	swapmap  *fs.SwapBitmap
	filesys  fs.Disk_i
	swapdisk fs.Disk_i
	phys     *mem.Physmem_t

	pagedirs map[int]*PageDir
	nextPdID int
	mappings *hashtable.Hashtable_t // mapping_id (the mapped virtual address) -> *Mapping

	ioSem *semaphore.Weighted // models the single outstanding-transfer slot the IO flag protects

	Threads tinfo.Threadinfo_t // per-thread doomed/killed bookkeeping (§5)

	diag  caller.Distinct_caller_t
	accnt accnt.Accnt_t

	Faults    stats.Counter_t
	Evictions stats.Counter_t
	SwapIns   stats.Counter_t
	SwapOuts  stats.Counter_t

	evictTrace *profile.Profile // one sample appended per successful eviction
}

// NewVmCore constructs the VM core around the given physical memory
// allocator, swap bitmap, and the two logical disks (§6: "filesys" and
// "swap").
func NewVmCore(phys *mem.Physmem_t, swapmap *fs.SwapBitmap, filesys, swapdisk fs.Disk_i) *VmCore {
	vc := &VmCore{
		frames:   newFrameTable(),
		swapmap:  swapmap,
		filesys:  filesys,
		swapdisk: swapdisk,
		phys:     phys,
		pagedirs: make(map[int]*PageDir),
		mappings: hashtable.MkHash(64),
		ioSem:    semaphore.NewWeighted(1),
		evictTrace: &profile.Profile{
			SampleType: []*profile.ValueType{{Type: "evictions", Unit: "count"}},
			PeriodType: &profile.ValueType{Type: "eviction", Unit: "count"},
			Period:     1,
		},
	}
	vc.diag.Enabled = true
	vc.Threads.Init()
	return vc
}

// recordEviction appends a sample to the eviction trace: the victim's
// former frame address stands in for an instruction-pointer location,
// so "go tool pprof" can tally which frames get evicted most often.
func (vc *VmCore) recordEviction(fd *FrameDesc) {
	loc := &profile.Location{
		ID:      uint64(len(vc.evictTrace.Location)) + 1,
		Address: uint64(fd.FrameAddr),
	}
	vc.evictTrace.Location = append(vc.evictTrace.Location, loc)
	vc.evictTrace.Sample = append(vc.evictTrace.Sample, &profile.Sample{
		Value:    []int64{1},
		Location: []*profile.Location{loc},
	})
}

// DumpProfile writes the accumulated eviction trace in pprof's
// wire format.
func (vc *VmCore) DumpProfile(w io.Writer) error {
	return vc.evictTrace.Write(w)
}

// lock acquires the page-fault lock (the "Lock_pmap" idiom).
func (vc *VmCore) lock() {
	vc.mu.Lock()
	vc.pgfltaken = true
}

func (vc *VmCore) unlock() {
	vc.pgfltaken = false
	vc.mu.Unlock()
}

func (vc *VmCore) lockassert() {
	if !vc.pgfltaken {
		panic("page-fault lock must be held")
	}
}

// NewPageDir allocates a fresh, empty address space.
func (vc *VmCore) NewPageDir() *PageDir {
	vc.lock()
	defer vc.unlock()
	pd := &PageDir{ID: vc.nextPdID}
	vc.pagedirs[pd.ID] = pd
	vc.nextPdID++
	return pd
}

// FreeFrames reports the number of physical pages still unallocated,
// for diagnostics and tests.
func (vc *VmCore) FreeFrames() int {
	return vc.phys.Nfree()
}

// allocFreshFrame allocates one physical page with the given flags,
// evicting victims via the clock as needed (§4.E swap_in: "pick a
// victim via the clock, evict it, and retry"). A victim whose eviction
// fails for want of swap space is excluded from re-selection (by
// temporarily marking it IO) so the retry tries a different one, per
// §7's propagation policy. It returns OutOfMemory once every resident
// frame has been tried and none could be freed.
func (vc *VmCore) allocFreshFrame(flags mem.AllocFlags) (mem.Pa_t, defs.Err_t) {
	if pa, ok := vc.phys.AllocPage(flags); ok {
		return pa, 0
	}

	var skipped []*FrameDesc
	defer func() {
		for _, fd := range skipped {
			fd.Flags &^= F_IO
		}
	}()

	evictable := func() bool {
		for _, d := range vc.frames.descs {
			if !d.Flags.has(F_SWAP) && !d.Flags.has(F_IO) {
				return true
			}
		}
		return false
	}
	for attempt := 0; attempt < vc.frames.Len() && evictable(); attempt++ {
		victim := vc.SelectVictim()
		if vc.swapOut(victim) == 0 {
			vc.Evictions.Inc()
			vc.recordEviction(victim)
			if pa, ok := vc.phys.AllocPage(flags); ok {
				return pa, 0
			}
			continue
		}
		victim.Flags |= F_IO // exclude from the next SelectVictim call
		skipped = append(skipped, victim)
	}
	return 0, defs.OutOfMemory
}
