package vm

import (
	"context"
	"fmt"

	"defs"
	"fs"
	"mem"
)

// pteFlagBits returns the non-address bits of *pte: the architectural
// P/W/U/A/D bits plus the pager's own SWAP/MMAP/EXEC bits, i.e.
// everything except the frame-address field.
func pteFlagBits(pte mem.Pa_t) mem.Pa_t {
	return pte &^ mem.PTE_ADDR
}

// clearAliasesPresent clears P on every aliasing PTE, preserving only
// the flag bits (§4.E: "preserve only the flag bits... and clear P").
// The caller already holds the page-fault lock; real hardware would
// additionally need interrupts disabled here so the MMU cannot race on
// the PTE via another thread sharing the page directory.
func (vc *VmCore) clearAliasesPresent(fd *FrameDesc) {
	for _, a := range fd.Aliases {
		pte := vc.resolvePte(a)
		*pte = pteFlagBits(*pte) &^ mem.PTE_P
	}
}

// restoreAliasesPresent is the inverse: used to roll swap-out back
// when the swap device turns out to be full (S5: the evicted frame
// must remain resident).
func (vc *VmCore) restoreAliasesPresent(fd *FrameDesc) {
	for _, a := range fd.Aliases {
		pte := vc.resolvePte(a)
		*pte = pteFlagBits(*pte) | mem.PTE_P | fd.FrameAddr
	}
}

// swapOut evicts fd: §4.E.
func (vc *VmCore) swapOut(fd *FrameDesc) defs.Err_t {
	vc.lockassert()
	if fd.Flags.has(F_SWAP) || fd.Flags.has(F_IO) {
		panic("swapOut of non-resident or in-flight frame")
	}

	fd.Flags |= F_SWAP
	vc.clearAliasesPresent(fd)

	if !fd.Flags.has(F_DIRTY) {
		vc.freeResident(fd)
		vc.SwapOuts.Inc()
		return 0
	}

	if fd.Flags.has(F_MMAP) {
		vc.writePage(vc.filesys, fd)
		vc.freeResident(fd)
		vc.SwapOuts.Inc()
		return 0
	}

	// anonymous: needs tail rescan (original_source/vm/frame.c's
	// backward scan) and a swap slot.
	if fd.ReadBytes == 0 {
		fd.ReadBytes = tailScan(vc.phys.Bytes(fd.FrameAddr))
	}
	fd.Flags &^= F_EXEC // the page no longer matches the executable image once dirtied

	sector, err := vc.swapmap.Reserve()
	if err != 0 {
		// roll back: the victim must remain resident (S5).
		fd.Flags &^= F_SWAP
		vc.restoreAliasesPresent(fd)
		if distinct, trace := vc.diag.Distinct(); distinct {
			fmt.Printf("vm: out of swap space, eviction abandoned\n%s", trace)
		}
		return err
	}
	fd.SectorNo = sector
	vc.writePage(vc.swapdisk, fd)
	vc.freeResident(fd)
	vc.SwapOuts.Inc()
	return 0
}

// freeResident releases fd's physical page back to the allocator once
// its contents are safely on disk (or didn't need to be).
func (vc *VmCore) freeResident(fd *FrameDesc) {
	vc.phys.FreePage(fd.FrameAddr)
	fd.FrameAddr = 0
}

// tailScan finds the smallest index i such that every byte at or above
// i is zero, so an all-zero-at-install page that picked up only a
// short prefix of real content doesn't need its full length written
// out (original_source/vm/frame.c's evict()).
func tailScan(pg *mem.Bytepg_t) int {
	for i := len(pg) - 1; i >= 0; i-- {
		if pg[i] != 0 {
			return i + 1
		}
	}
	return 0
}

// writePage writes fd's page to disk sector-by-sector, stopping once
// ReadBytes is exhausted (§4.E: "avoids writing known-zero tail").
// Time spent blocked on the transfer is excluded from the faulting
// thread's system-time accounting, mirroring Accnt_t.Io_time's role
// around the teacher's own disk operations.
func (vc *VmCore) writePage(disk fs.Disk_i, fd *FrameDesc) {
	fd.Flags |= F_IO
	vc.ioSem.Acquire(context.Background(), 1)
	since := vc.accnt.Now()
	pg := vc.phys.Bytes(fd.FrameAddr)
	nsectors := (fd.ReadBytes + fs.SECTSZ - 1) / fs.SECTSZ
	for s := 0; s < nsectors; s++ {
		off := s * fs.SECTSZ
		fs.WriteSector(disk, fd.SectorNo+s, pg[off:off+fs.SECTSZ])
	}
	vc.accnt.Io_time(since)
	vc.ioSem.Release(1)
	fd.Flags &^= F_IO
}

// swapIn brings fd back into physical memory: §4.E.
func (vc *VmCore) swapIn(fd *FrameDesc) defs.Err_t {
	pa, err := vc.allocFreshFrame(mem.ZERO)
	if err != 0 {
		return err
	}
	fd.FrameAddr = pa

	if fd.ReadBytes > 0 {
		var disk fs.Disk_i
		if fd.Flags.has(F_MMAP) || fd.Flags.has(F_EXEC) {
			disk = vc.filesys
		} else {
			disk = vc.swapdisk
		}
		vc.readPage(disk, fd)
		if !fd.Flags.has(F_MMAP) && !fd.Flags.has(F_EXEC) {
			vc.swapmap.Release(fd.SectorNo)
			fd.SectorNo = 0
		}
	}

	for _, a := range fd.Aliases {
		pte := vc.resolvePte(a)
		*pte = pteFlagBits(*pte) | fd.FrameAddr | mem.PTE_P
	}
	fd.Flags &^= F_SWAP
	vc.SwapIns.Inc()
	return 0
}

func (vc *VmCore) readPage(disk fs.Disk_i, fd *FrameDesc) {
	fd.Flags |= F_IO
	vc.ioSem.Acquire(context.Background(), 1)
	since := vc.accnt.Now()
	pg := vc.phys.Bytes(fd.FrameAddr)
	nsectors := (fd.ReadBytes + fs.SECTSZ - 1) / fs.SECTSZ
	for s := 0; s < nsectors; s++ {
		off := s * fs.SECTSZ
		fs.ReadSector(disk, fd.SectorNo+s, pg[off:off+fs.SECTSZ])
	}
	vc.accnt.Io_time(since)
	vc.ioSem.Release(1)
	fd.Flags &^= F_IO
}
