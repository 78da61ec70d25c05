package vm

import "mem"

// FrameFlags is a bitset over a frame descriptor's backing/reference
// state (§3). MMAP/EXEC/SWAP are not independent: MMAP and EXEC name
// the backing store (file-system disk); SWAP is orthogonal, meaning
// "currently non-resident".
type FrameFlags uint16

const (
	F_MMAP FrameFlags = 1 << iota
	F_EXEC
	F_SWAP
	F_DIRTY
	F_ACCESSED
	F_IO
)

func (f FrameFlags) has(bit FrameFlags) bool { return f&bit != 0 }

// FrameDesc is one physical frame's authoritative record (§3).
type FrameDesc struct {
	FrameAddr mem.Pa_t
	Aliases   []AliasHandle
	Flags     FrameFlags
	SectorNo  int
	ReadBytes int
}

// FrameTable is an ordered collection of frame descriptors traversed
// linearly by the clock (§4.B). No per-frame lock: all mutation here
// happens while VmCore's page-fault lock is held.
type FrameTable struct {
	descs []*FrameDesc
	hand  int // index into descs, or -1 when empty
}

func newFrameTable() *FrameTable {
	return &FrameTable{hand: -1}
}

// Insert appends a new descriptor, never reordering existing ones.
func (ft *FrameTable) Insert(fd *FrameDesc) {
	ft.descs = append(ft.descs, fd)
}

// Remove unlinks fd. If the clock hand referenced fd, the hand is
// advanced first so it never dangles (§4.B).
func (ft *FrameTable) Remove(fd *FrameDesc) {
	idx := ft.indexOf(fd)
	if idx < 0 {
		panic("remove of untracked frame")
	}
	var newHandDesc *FrameDesc
	if ft.hand == idx && len(ft.descs) > 1 {
		nexti := idx + 1
		if nexti >= len(ft.descs) {
			nexti = 0
		}
		if nexti != idx {
			newHandDesc = ft.descs[nexti]
		}
	}
	ft.descs = append(ft.descs[:idx], ft.descs[idx+1:]...)
	switch {
	case newHandDesc != nil:
		ft.hand = ft.indexOf(newHandDesc)
	case ft.hand == idx:
		ft.hand = -1
	case ft.hand > idx:
		ft.hand--
	}
}

func (ft *FrameTable) indexOf(fd *FrameDesc) int {
	for i, d := range ft.descs {
		if d == fd {
			return i
		}
	}
	return -1
}

// InstallAlias appends pte_loc to frame's alias list (§4.B).
func (ft *FrameTable) InstallAlias(fd *FrameDesc, pte AliasHandle) {
	fd.Aliases = append(fd.Aliases, pte)
}

// RemoveAlias removes the alias matching pte_loc from fd's list and
// reports whether the list is now empty.
func (ft *FrameTable) RemoveAlias(fd *FrameDesc, pte AliasHandle) bool {
	for i, a := range fd.Aliases {
		if a == pte {
			fd.Aliases = append(fd.Aliases[:i], fd.Aliases[i+1:]...)
			return len(fd.Aliases) == 0
		}
	}
	panic("remove of untracked alias")
}

// LookupByPte scans the table for the frame aliasing pte_loc (§4.B).
func (ft *FrameTable) LookupByPte(pte AliasHandle) (*FrameDesc, bool) {
	for _, d := range ft.descs {
		for _, a := range d.Aliases {
			if a == pte {
				return d, true
			}
		}
	}
	return nil, false
}

// Len reports the number of tracked descriptors.
func (ft *FrameTable) Len() int {
	return len(ft.descs)
}

// Hand returns the current clock hand descriptor, or nil when empty.
func (ft *FrameTable) Hand() *FrameDesc {
	if ft.hand < 0 || ft.hand >= len(ft.descs) {
		return nil
	}
	return ft.descs[ft.hand]
}

// each calls f for every tracked descriptor.
func (ft *FrameTable) each(f func(*FrameDesc)) {
	for _, d := range ft.descs {
		f(d)
	}
}
