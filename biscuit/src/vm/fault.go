package vm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"defs"
	"fdops"
	"fs"
	"mem"
	"oommsg"
	"stat"
	"util"
)

// StackWindow bounds how far below the current stack pointer a fault
// is still treated as stack growth (§4.H step 2). StackLimit enters the
// check only as the bound va > -StackLimit, which every non-negative
// address passes, so no lower limit on growth is enforced for user
// addresses.
const (
	StackWindow = 32
	StackLimit  = 8 * 1024 * 1024
)

// Fault handles a trap at user address va in address space pd, with
// the faulting thread's current stack pointer sp, on behalf of thread
// tid (§4.H). It returns BadUserAccess when the process must be
// killed with status -1; zero on success (stack growth installed, or
// swap-in completed and the thread may return to user mode). A thread
// already marked for death by tid still runs this to completion: the
// kill takes effect afterward, in the destroyer (§5).
func (vc *VmCore) Fault(pd *PageDir, va, sp int, tid defs.Tid_t) defs.Err_t {
	vc.Faults.Inc()

	if note := vc.Threads.Get(tid); note != nil && note.Doomed() {
		if distinct, trace := vc.diag.Distinct(); distinct {
			fmt.Printf("vm: thread %d faulting while doomed, finishing fault before exit\n%s", tid, trace)
		}
	}

	page := va &^ int(mem.PGOFFSET)
	pte := pd.PteFor(page, false)
	if pte == nil {
		return vc.badAccess(pd, va)
	}

	if *pte&mem.PTE_P != 0 {
		// resident already: a concurrent fault on another alias beat
		// us to it, or this was a spurious trap. Nothing to do.
		return 0
	}

	h := AliasHandle{PdID: pd.ID, Va: page}
	vc.lock()
	fd, ok := vc.frames.LookupByPte(h)
	vc.unlock()

	if !ok {
		if isStackAccess(va, sp) {
			return vc.growStack(pd, page)
		}
		return vc.badAccess(pd, va)
	}

	vc.lock()
	defer vc.unlock()
	if !fd.Flags.has(F_SWAP) {
		// installed but already brought in by a racing fault.
		return 0
	}
	err := vc.swapIn(fd)
	if err == defs.OutOfMemory {
		vc.reportOom()
	}
	return err
}

// reportOom notifies the out-of-memory collaborator and, when a
// listener takes the message, blocks until it answers on Resume. The
// answer is not consulted: Fault returns OutOfMemory to its caller
// either way, without retrying the swap-in.
func (vc *VmCore) reportOom() {
	resume := make(chan bool)
	select {
	case oommsg.OomCh <- oommsg.Oommsg_t{Need: mem.PGSIZE, Resume: resume}:
		<-resume
	default:
		// no listener: the requesting thread dies regardless.
	}
}

// isStackAccess implements the stack-growth heuristic (§4.H step 2): a
// fault at or above sp, or no more than StackWindow bytes below it, is
// treated as legitimate stack growth. The StackLimit comparison rejects
// only addresses below -StackLimit, never a user address.
func isStackAccess(va, sp int) bool {
	if va >= sp {
		return true
	}
	if sp-va > StackWindow {
		return false
	}
	return va > -StackLimit
}

func (vc *VmCore) growStack(pd *PageDir, page int) defs.Err_t {
	vc.lock()
	pa, err := vc.allocFreshFrame(mem.ZERO)
	vc.unlock()
	if err != 0 {
		return err
	}
	vc.Install(pd, page, pa, true, 0, 0, 0)
	return 0
}

func (vc *VmCore) badAccess(pd *PageDir, va int) defs.Err_t {
	if distinct, trace := vc.diag.Distinct(); distinct {
		fmt.Printf("vm: bad user access at %#x%s\n%s", va, vc.disasmAt(pd, va), trace)
	}
	return defs.BadUserAccess
}

// disasmAt annotates a bad-access diagnostic with the mnemonic of
// whatever instruction bytes happen to be resident at va's page, when
// the page is in fact mapped and readable (e.g. a data fault against
// an executable page, or a jump into a non-executable one). Returns
// "" when there is nothing resident to disassemble.
func (vc *VmCore) disasmAt(pd *PageDir, va int) string {
	page := va &^ int(mem.PGOFFSET)
	pte := pd.PteFor(page, false)
	if pte == nil || *pte&mem.PTE_P == 0 {
		return ""
	}
	frameAddr := (*pte) & mem.PTE_ADDR
	pg := vc.phys.Bytes(frameAddr)
	off := va & int(mem.PGOFFSET)
	end := off + 16
	if end > len(pg) {
		end = len(pg)
	}
	inst, err := x86asm.Decode(pg[off:end], 64)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%s)", inst.String())
}

// Mapping is the per-address-space record mmap/munmap track by
// mapping id (§6).
type Mapping struct {
	pd     *PageDir
	addr   int
	npages int
	inode  *fs.Inode
}

// Mmap installs fd's contents at addr in pd, lazily (§6). fd must not
// be stdin/stdout (0/1); addr must be non-zero and page-aligned; the
// file must have nonzero length; no target page may already be mapped.
func (vc *VmCore) Mmap(pd *PageDir, fdnum int, addr int, in *fs.Inode) (int, defs.Err_t) {
	if fdnum == 0 || fdnum == 1 {
		return -1, defs.MapBadArg
	}
	if addr == 0 || addr&int(mem.PGOFFSET) != 0 {
		return -1, defs.MapBadArg
	}

	var ops fdops.Fdops_i = in
	length, err := ops.Fsize()
	if err != 0 {
		return -1, err
	}
	if length <= 0 {
		return -1, defs.MapBadArg
	}
	var st stat.Stat_t
	in.Stat(&st)

	npages := util.Roundup(length, mem.PGSIZE) / mem.PGSIZE

	vc.lock()
	for i := 0; i < npages; i++ {
		page := addr + i*mem.PGSIZE
		if pte := pd.PteFor(page, false); pte != nil && *pte != 0 {
			vc.unlock()
			return -1, defs.MapConflict
		}
	}
	vc.unlock()

	ops.Reopen()
	for i := 0; i < npages; i++ {
		page := addr + i*mem.PGSIZE
		off := i * mem.PGSIZE
		readBytes := int(st.Size()) - off
		if readBytes > mem.PGSIZE {
			readBytes = mem.PGSIZE
		}
		vc.Install(pd, page, 0, true, F_MMAP|F_SWAP, in.SectorAt(off), readBytes)
	}

	// the mapping id is the virtual address itself (§6: "mmap(fd, addr)
	// -> mapping_id (the virtual address on success, -1 on failure)").
	vc.lock()
	vc.mappings.Set(addr, &Mapping{pd: pd, addr: addr, npages: npages, inode: in})
	vc.unlock()
	return addr, 0
}

// Munmap tears down every page of mapping_id, flushing dirty pages
// back to the file and closing the inode twice (once for the reopen
// issued at map time, once for the mapping's original open), §6/§13.
func (vc *VmCore) Munmap(mappingID int) defs.Err_t {
	v, ok := vc.mappings.Get(mappingID)
	if !ok {
		return defs.MapBadArg
	}
	m := v.(*Mapping)

	for i := 0; i < m.npages; i++ {
		page := m.addr + i*mem.PGSIZE
		vc.lock()
		vc.destroyLocked(m.pd, page)
		vc.unlock()
	}

	m.inode.Close()
	m.inode.Close()
	vc.mappings.Del(mappingID)
	return 0
}
