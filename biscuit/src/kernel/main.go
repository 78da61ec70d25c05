// Command kernel is a small demo/boot entry point: it wires together
// the physical frame allocator, the two logical disks, and a VmCore,
// then drives a lazy-install / fault / evict / swap-in sequence end to
// end under memory pressure too small to hold every page at once.
package main

import (
	"flag"
	"fmt"
	"os"

	"defs"
	"fd"
	"fs"
	"mem"
	"vm"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	swapPath := flag.String("swap", "swap.img", "swap disk image path")
	fsPath := flag.String("fs", "fs.img", "file-system disk image path")
	npages := flag.Int("pages", 4, "physical pages available to the demo")
	flag.Parse()

	phys := mem.Phys_init(*npages)

	const swapSectors = 4096
	const reservedPrefix = 8
	swapDisk, err := fs.OpenImageDisk(*swapPath, "swap", int64(swapSectors*fs.SECTSZ))
	must(err)
	defer swapDisk.Close()

	filesysDisk, err := fs.OpenImageDisk(*fsPath, "filesys", int64(swapSectors*fs.SECTSZ))
	must(err)
	defer filesysDisk.Close()

	swapmap := fs.MkSwapBitmap(swapSectors, reservedPrefix)
	vc := vm.NewVmCore(phys, swapmap, filesysDisk, swapDisk)

	pd := vc.NewPageDir()
	const tid defs.Tid_t = 1
	vc.Threads.Spawn(tid)

	const npagesDemo = 8
	for i := 0; i < npagesDemo; i++ {
		va := i * mem.PGSIZE
		vc.InstallLazyAnon(pd, va)
	}

	fmt.Printf("kernel: %d pages installed lazily, %d physical frames free\n", npagesDemo, vc.FreeFrames())

	for i := 0; i < npagesDemo; i++ {
		va := i * mem.PGSIZE
		if err := vc.Fault(pd, va, 0, tid); err != 0 {
			fmt.Printf("kernel: fault at %#x failed: %v\n", va, err)
			os.Exit(1)
		}
	}

	fmt.Printf("kernel: all %d pages faulted in, %d evictions, %d swap-ins, %d swap-outs\n",
		npagesDemo, vc.Evictions, vc.SwapIns, vc.SwapOuts)

	vc.TeardownAddressSpace(pd)
	fmt.Printf("kernel: address space torn down, %d physical frames free\n", vc.FreeFrames())

	mapPd := vc.NewPageDir()
	backing := &fs.Inode{FirstSector: 0, Length: mem.PGSIZE}
	backing.Reopen() // the mapping's original open, predating the mapping itself
	mapID, merr := vc.Mmap(mapPd, 5, mem.PGSIZE, backing)
	if merr != 0 {
		fmt.Printf("kernel: mmap failed: %v\n", merr)
		backing.Close()
	} else {
		if ferr := vc.Fault(mapPd, mem.PGSIZE, 0, tid); ferr != 0 {
			fmt.Printf("kernel: mmap fault failed: %v\n", ferr)
		}
		vc.Munmap(mapID)
	}

	// a descriptor table entry for an unrelated open file, duplicated
	// and closed the way a process's fd table would on fork/exit.
	scratch := &fs.Inode{FirstSector: 8, Length: mem.PGSIZE}
	scratch.Reopen()
	ofd := &fd.Fd_t{Fops: scratch, Perms: fd.FD_READ}
	dup, cerr := fd.Copyfd(ofd)
	if cerr != 0 {
		panic("copyfd failed")
	}
	fd.Close_panic(dup)
	fd.Close_panic(ofd)

	if err := vc.DumpProfile(os.Stdout); err != nil {
		fmt.Printf("kernel: pprof dump failed: %v\n", err)
	}
}
