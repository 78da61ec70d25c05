package defs

// Err_t is a kernel-style error code: zero means success, a non-zero
// value (one of the positive constants below) names a specific failure. Functions that can fail return
// (..., Err_t) rather than a Go error, matching the rest of this tree.
type Err_t int

const (
	EFAULT        Err_t = 14
	ENOMEM        Err_t = 12
	ENOHEAP       Err_t = 48
	EINVAL        Err_t = 22
	ENAMETOOLONG  Err_t = 36
	EEXIST        Err_t = 17
	// OutOfSwap is returned when the swap bitmap has no free run left.
	OutOfSwap Err_t = 100
	// MapConflict is returned when an mmap would overlap an existing mapping.
	MapConflict Err_t = 101
	// MapBadArg is returned when mmap's arguments fail validation.
	MapBadArg Err_t = 102
	// BadUserAccess is returned when a user pointer is outside user space or unreadable.
	BadUserAccess Err_t = 103
	// OutOfMemory is returned when no physical frame is available even after eviction.
	OutOfMemory Err_t = 104
)

// Tid_t identifies a thread for accounting and fault attribution.
type Tid_t int
