package vm

import "mem"

// Install binds upage in address space pd to kpage, detecting existing
// shareable frames (§4.F). When flags carries F_SWAP the mapping is
// lazy: the page starts non-resident and kpage is not required (pass
// 0) — no physical frame exists for it until a later page fault drives
// swapIn. This resolves an ambiguity the original left unstated (the
// source always supplies a real kpage even for lazy installs, which
// would commit a physical page to a mapping that may never be
// touched); a port with an explicit frame table does not need to.
func (vc *VmCore) Install(pd *PageDir, upage int, kpage mem.Pa_t, writable bool,
	flags FrameFlags, sectorNo, readBytes int) {

	if upage&int(mem.PGOFFSET) != 0 {
		panic("upage not page aligned")
	}
	if flags&F_SWAP == 0 && kpage&mem.Pa_t(mem.PGOFFSET) != 0 {
		panic("kpage not page aligned")
	}

	vc.lock()
	defer vc.unlock()

	h := AliasHandle{PdID: pd.ID, Va: upage}
	pte := pd.PteFor(upage, true)

	*pte = mem.PTE_U
	if writable {
		*pte |= mem.PTE_W
	}
	resident := flags&F_SWAP == 0
	if resident {
		*pte |= mem.PTE_P | kpage
	} else {
		*pte |= encodeNonPresentFlags(flags, writable)
	}

	// §4.F step 7: scan for a shareable existing frame -- same
	// non-SWAP flag bits (MMAP/EXEC), same sector_no, and read_bytes
	// at least as large as requested.
	if shareFlags := flags &^ F_SWAP; shareFlags&(F_MMAP|F_EXEC) != 0 {
		if fd := vc.findShareable(shareFlags, sectorNo, readBytes, writable); fd != nil {
			if writable && fd.Flags.has(F_EXEC) {
				// refuses sharing: would violate invariant 5 (a
				// writable PTE may never alias a frame with others).
			} else {
				if !fd.Flags.has(F_SWAP) {
					*pte = pteFlagBits(*pte) | mem.PTE_P | fd.FrameAddr
				}
				vc.fold()
				if fd.Flags.has(F_DIRTY) {
					*pte |= mem.PTE_D
				}
				if fd.Flags.has(F_ACCESSED) {
					*pte |= mem.PTE_A
				}
				vc.frames.InstallAlias(fd, h)
				return
			}
		}
	}

	fd := &FrameDesc{
		FrameAddr: kpage,
		Flags:     flags,
		SectorNo:  sectorNo,
		ReadBytes: readBytes,
	}
	if !resident {
		fd.FrameAddr = 0
	}
	vc.frames.InstallAlias(fd, h)
	vc.frames.Insert(fd)
}

// InstallLazyAnon installs upage as a writable, anonymous, lazily
// materialized page: no frame exists until a fault drives swapIn with
// an all-zero page (§4.H step 2's stack-growth path does the same
// thing, only eagerly).
func (vc *VmCore) InstallLazyAnon(pd *PageDir, upage int) {
	vc.Install(pd, upage, 0, true, F_SWAP, 0, 0)
}

// encodeNonPresentFlags packs the pager's own state into the low bits
// of a non-present PTE, per §6's "when P is clear, the low 12 bits
// carry {SWAP, MMAP, EXEC, D, A, U, W}".
func encodeNonPresentFlags(flags FrameFlags, writable bool) mem.Pa_t {
	var p mem.Pa_t
	if flags.has(F_SWAP) {
		p |= PTE_SWAP
	}
	if flags.has(F_MMAP) {
		p |= PTE_MMAP
	}
	if flags.has(F_EXEC) {
		p |= PTE_EXEC
	}
	return p
}

// findShareable scans the frame table for a frame whose backing
// matches (flags, sectorNo) with read_bytes at least as large as
// requested, and returns the first such frame. writable is not
// consulted here: Install itself refuses to share an EXEC frame with a
// writable request.
func (vc *VmCore) findShareable(flags FrameFlags, sectorNo, readBytes int, writable bool) *FrameDesc {
	var found *FrameDesc
	vc.frames.each(func(fd *FrameDesc) {
		if found != nil {
			return
		}
		if fd.Flags&(F_MMAP|F_EXEC) != flags {
			return
		}
		if fd.SectorNo != sectorNo {
			return
		}
		if fd.ReadBytes < readBytes {
			return
		}
		found = fd
	})
	return found
}
