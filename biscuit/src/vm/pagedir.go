package vm

import "mem"

// Non-architectural PTE bits this pager layers onto the low 12 bits of
// a page-table entry when P is clear, per §6: "the low 12 bits carry
// {SWAP, MMAP, EXEC, D, A, U, W}". The architectural P/W/U/A/D bits
// live in package mem; these three are pager-private.
const (
	PTE_SWAP mem.Pa_t = 1 << 3
	PTE_MMAP mem.Pa_t = 1 << 4
	PTE_EXEC mem.Pa_t = 1 << 7
)

const (
	pdeBits  = 10
	pteBits  = 10
	pdeCount = 1 << pdeBits
	pteCount = 1 << pteBits
)

// pteTable is one leaf page-table page: 1024 32-bit-style entries.
type pteTable [pteCount]mem.Pa_t

// PageDir is a simulated two-level 32-bit page directory (§3): a
// conventional 10/10/12 split standing in for real hardware paging,
// since a hosted Go program has no MMU to program directly. Each
// address space owns exactly one.
type PageDir struct {
	ID     int
	tables [pdeCount]*pteTable
}

// indices splits a page-aligned virtual address into its directory and
// table indices.
func indices(va int) (int, int) {
	pn := va >> mem.PGSHIFT
	return (pn >> pteBits) & (pdeCount - 1), pn & (pteCount - 1)
}

// PteFor returns the PTE slot for va, allocating the leaf table on
// demand when create is true.
func (pd *PageDir) PteFor(va int, create bool) *mem.Pa_t {
	pdeIdx, pteIdx := indices(va)
	t := pd.tables[pdeIdx]
	if t == nil {
		if !create {
			return nil
		}
		t = &pteTable{}
		pd.tables[pdeIdx] = t
	}
	return &t[pteIdx]
}

// AliasHandle is a typed back-reference to a single PTE slot, resolved
// through the page directory registry rather than a raw pointer (the
// re-architecture the design notes call for: ownership flows strictly
// frame -> alias, the PTE itself carries no back-pointer).
type AliasHandle struct {
	PdID int
	Va   int
}
