// Package fdops defines the file-descriptor operation contracts the
// pager's mmap/munmap syscalls drive against the file-system
// collaborator (§6), independent of that collaborator's own internals.
package fdops

import "defs"

// Fdops_i is the subset of file-descriptor operations mmap needs:
// reopening the backing inode (to keep it alive across unlink while
// mapped) and closing it (once per reopen, once per original open).
type Fdops_i interface {
	Reopen() defs.Err_t
	Close() defs.Err_t
	// Fsize returns the file's length in bytes, used to validate and
	// bound a requested mapping.
	Fsize() (int, defs.Err_t)
}
