package vm

import "mem"

// resolvePte finds the PTE word a handle refers to.
func (vc *VmCore) resolvePte(h AliasHandle) *mem.Pa_t {
	pd, ok := vc.pagedirs[h.PdID]
	if !ok {
		panic("alias references unknown page directory")
	}
	return pd.PteFor(h.Va, false)
}

// fold coalesces per-PTE D/A bits into each descriptor's DIRTY/ACCESSED
// flags (§4.C). It must run before the clock selects a victim.
func (vc *VmCore) fold() {
	vc.frames.each(func(fd *FrameDesc) {
		fd.Flags &^= F_DIRTY | F_ACCESSED
		for _, a := range fd.Aliases {
			pte := vc.resolvePte(a)
			if pte == nil {
				continue
			}
			if *pte&mem.PTE_D != 0 {
				fd.Flags |= F_DIRTY
			}
			if *pte&mem.PTE_A != 0 {
				fd.Flags |= F_ACCESSED
			}
			if fd.Flags.has(F_DIRTY) && fd.Flags.has(F_ACCESSED) {
				break
			}
		}
	})
}

// broadcast pushes each descriptor's coalesced DIRTY/ACCESSED flags
// back out to every aliasing PTE (§4.C). It runs after the clock
// advances, keeping aliases consistent with the state the policy saw.
func (vc *VmCore) broadcast() {
	vc.frames.each(func(fd *FrameDesc) {
		for _, a := range fd.Aliases {
			pte := vc.resolvePte(a)
			if pte == nil {
				continue
			}
			if fd.Flags.has(F_DIRTY) {
				*pte |= mem.PTE_D
			} else {
				*pte &^= mem.PTE_D
			}
			if fd.Flags.has(F_ACCESSED) {
				*pte |= mem.PTE_A
			} else {
				*pte &^= mem.PTE_A
			}
		}
	})
}
