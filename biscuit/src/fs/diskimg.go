package fs

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ImageDisk is a file-backed Disk_i simulator: a single *os.File stands
// in for a physical block device, one sector at a time. Positioned
// reads/writes go through golang.org/x/sys/unix.Pread/Pwrite rather
// than Seek+Read/Write, since several faulting threads may submit I/O
// against the same open image concurrently and a shared seek position
// would race between them.
type ImageDisk struct {
	mu    sync.Mutex
	f     *os.File
	name  string
	nread int
	nwrit int
}

// OpenImageDisk opens (creating if absent) a raw disk image of the
// given size in bytes at path.
func OpenImageDisk(path string, name string, size int64) (*ImageDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if fi, err := f.Stat(); err != nil {
		f.Close()
		return nil, err
	} else if fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &ImageDisk{f: f, name: name}, nil
}

// Start implements Disk_i: it performs the single-sector transfer
// synchronously and then signals completion on AckCh, mirroring the
// synchronous block-device I/O model §5 mandates.
func (d *ImageDisk) Start(req *Bdev_req_t) bool {
	off := int64(req.Sector) * SECTSZ
	d.mu.Lock()
	switch req.Cmd {
	case BDEV_READ:
		if len(req.Data) != SECTSZ {
			panic("bad sector buffer")
		}
		n, err := unix.Pread(int(d.f.Fd()), req.Data, off)
		if err != nil {
			panic(err)
		}
		for n < SECTSZ {
			m, err := unix.Pread(int(d.f.Fd()), req.Data[n:], off+int64(n))
			if err != nil {
				panic(err)
			}
			if m == 0 {
				break
			}
			n += m
		}
		d.nread++
	case BDEV_WRITE:
		if len(req.Data) != SECTSZ {
			panic("bad sector buffer")
		}
		n := 0
		for n < SECTSZ {
			m, err := unix.Pwrite(int(d.f.Fd()), req.Data[n:], off+int64(n))
			if err != nil {
				panic(err)
			}
			n += m
		}
		d.nwrit++
	case BDEV_FLUSH:
		d.f.Sync()
	}
	d.mu.Unlock()
	req.AckCh <- true
	return true
}

// Stats reports simple read/write counters for diagnostics.
func (d *ImageDisk) Stats() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("%s: %d reads, %d writes", d.name, d.nread, d.nwrit)
}

// Close closes the backing file.
func (d *ImageDisk) Close() error {
	return d.f.Close()
}
