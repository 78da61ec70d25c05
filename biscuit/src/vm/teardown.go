package vm

import "mem"

// Destroy tears down a single PTE at va in pd: §4.G. Returns false if
// va was not a tracked mapping.
func (vc *VmCore) Destroy(pd *PageDir, va int) bool {
	vc.lock()
	defer vc.unlock()
	return vc.destroyLocked(pd, va)
}

func (vc *VmCore) destroyLocked(pd *PageDir, va int) bool {
	vc.lockassert()
	h := AliasHandle{PdID: pd.ID, Va: va}

	vc.fold()
	fd, ok := vc.frames.LookupByPte(h)
	if !ok {
		return false
	}

	empty := vc.frames.RemoveAlias(fd, h)
	if !empty {
		return true
	}

	switch {
	case fd.Flags.has(F_SWAP):
		// SectorNo 0 means no swap run is held (a lazy page never
		// written out, or one evicted clean after swapIn cleared it).
		if !fd.Flags.has(F_MMAP) && !fd.Flags.has(F_EXEC) && fd.SectorNo != 0 {
			vc.swapmap.Release(fd.SectorNo)
		}
	default:
		if !fd.Flags.has(F_MMAP) {
			// drop the page instead of writing it back: eviction's
			// DIRTY check will then skip the write entirely.
			fd.Flags &^= F_DIRTY
		}
		vc.swapOut(fd)
	}

	vc.frames.Remove(fd)
	return true
}

// TeardownAddressSpace walks every tracked PTE in pd and destroys it
// (§4.G: "tearing down an address space walks every PTE").
func (vc *VmCore) TeardownAddressSpace(pd *PageDir) {
	for pdeIdx, t := range pd.tables {
		if t == nil {
			continue
		}
		for pteIdx := range t {
			va := ((pdeIdx << pteBits) | pteIdx) << int(mem.PGSHIFT)
			vc.lock()
			vc.destroyLocked(pd, va)
			vc.unlock()
		}
	}
	vc.lock()
	delete(vc.pagedirs, pd.ID)
	vc.unlock()
}
