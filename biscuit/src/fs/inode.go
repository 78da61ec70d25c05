package fs

import (
	"defs"
	"stat"
)

// Inode is the minimal file-system collaborator the pager needs (§6):
// a per-file sector lookup, a length for mmap validation, and an
// open/close refcount so the double-close munmap performs (once for
// reopen, once for the mapping's original open, per original_source's
// mmap.c) is observable.
type Inode struct {
	FirstSector int // file-system disk sector holding byte 0
	Length      int // file length in bytes
	Ino         int // inode number, for Stat
	opens       int
}

// Fsize reports the file's length in bytes, satisfying fdops.Fdops_i.
func (in *Inode) Fsize() (int, defs.Err_t) {
	return in.Length, 0
}

// Stat fills st with this inode's size and number, the pair mmap
// validation needs before committing to a mapping.
func (in *Inode) Stat(st *stat.Stat_t) defs.Err_t {
	st.Wino(uint(in.Ino))
	st.Wsize(uint(in.Length))
	return 0
}

// SectorAt returns the file-system disk sector holding byte offset
// off (for a page-aligned off, the page's first sector), per the file-system collaborator
// contract "sector_at(inode, byte_offset) -> sector_no".
func (in *Inode) SectorAt(off int) int {
	return in.FirstSector + off/SECTSZ
}

// Reopen increments the inode's open count, keeping the backing store
// alive across an unlink while a mapping still references it.
func (in *Inode) Reopen() defs.Err_t {
	in.opens++
	return 0
}

// Close decrements the inode's open count. It panics if called more
// times than the file was opened — a programming error in the caller.
func (in *Inode) Close() defs.Err_t {
	if in.opens <= 0 {
		panic("inode close underflow")
	}
	in.opens--
	return 0
}

// Opens reports the current open count, for tests.
func (in *Inode) Opens() int {
	return in.opens
}
