// Package fs provides the pager's two disk collaborators (swap and
// file-system), the swap bitmap allocator, and a minimal per-file
// sector/length lookup used by mmap.
package fs

// SECTSZ is the size of a disk sector in bytes.
const SECTSZ = 512

// Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1
	BDEV_READ  Bdevcmd_t = 2
	BDEV_FLUSH Bdevcmd_t = 3
)

// Bdev_req_t describes a single-sector block device request. The pager
// always issues page-granularity I/O as a sequence of these, holding
// the page-fault lock across the transfer (§5: synchronous I/O).
type Bdev_req_t struct {
	Cmd    Bdevcmd_t
	Sector int
	Data   []uint8 // len == SECTSZ
	AckCh  chan bool
}

// MkRequest allocates a new single-sector block request. AckCh is
// buffered by one so a Disk_i implementation can signal completion
// before the submitter reaches its <-req.AckCh, matching the real
// async disk driver contract where the ack always comes from a
// separate goroutine or interrupt path.
func MkRequest(sector int, cmd Bdevcmd_t, data []uint8) *Bdev_req_t {
	return &Bdev_req_t{Cmd: cmd, Sector: sector, Data: data, AckCh: make(chan bool, 1)}
}

// Disk_i represents a logical disk: either "filesys" or "swap" (§6).
type Disk_i interface {
	Start(*Bdev_req_t) bool
	Stats() string
}

// ReadSector synchronously reads one sector into buf (len(buf) == SECTSZ).
func ReadSector(d Disk_i, sector int, buf []uint8) {
	req := MkRequest(sector, BDEV_READ, buf)
	if d.Start(req) {
		<-req.AckCh
	}
}

// WriteSector synchronously writes one sector from buf (len(buf) == SECTSZ).
func WriteSector(d Disk_i, sector int, buf []uint8) {
	req := MkRequest(sector, BDEV_WRITE, buf)
	if d.Start(req) {
		<-req.AckCh
	}
}
