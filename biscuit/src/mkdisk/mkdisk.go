// mkdisk builds the two raw disk images the pager needs: a swap
// device (a reserved prefix plus a bitmap-managed region of 8-sector
// page slots) and a file-system device (here, a flat byte-addressable
// image holding the files a test or demo kernel wants mapped). Each
// image is stamped with a semantic version in its first sector and the
// stamp is read back right away; a stamp newer than this build's
// version is rejected. The pager itself does not read the stamp.
package main

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/mod/semver"

	"fs"
)

const imageVersion = "v1.0.0"

const versionSector = 0

func stampVersion(path string) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	buf := make([]byte, fs.SECTSZ)
	copy(buf, imageVersion)
	if _, err := f.WriteAt(buf, versionSector*fs.SECTSZ); err != nil {
		panic(err)
	}
}

// checkVersion reads the stamp mkdisk wrote and exits with status 1 if
// it is newer than what this build understands.
func checkVersion(path string) {
	f, err := os.Open(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	buf := make([]byte, fs.SECTSZ)
	if _, err := f.ReadAt(buf, versionSector*fs.SECTSZ); err != nil {
		panic(err)
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	stamp := string(buf[:n])
	if stamp == "" {
		return
	}
	if semver.Compare(stamp, imageVersion) > 0 {
		fmt.Printf("mkdisk: image %s was built by a newer mkdisk (%s > %s)\n", path, stamp, imageVersion)
		os.Exit(1)
	}
}

func mkSwapImage(path string, nsectors, reserved int) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	size := int64(nsectors) * int64(fs.SECTSZ)
	if err := f.Truncate(size); err != nil {
		panic(err)
	}
	f.Close()

	stampVersion(path)
	checkVersion(path)
	fmt.Printf("mkdisk: wrote swap image %s: %d sectors, %d reserved\n", path, nsectors, reserved)
}

func mkFsImage(path string, sizeBytes int64) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	if err := f.Truncate(sizeBytes); err != nil {
		panic(err)
	}
	f.Close()

	stampVersion(path)
	checkVersion(path)
	fmt.Printf("mkdisk: wrote filesystem image %s: %d bytes\n", path, sizeBytes)
}

func main() {
	if len(os.Args) != 6 {
		fmt.Printf("usage: mkdisk <swap-image> <swap-sectors> <reserved-prefix> <fs-image> <fs-bytes>\n")
		os.Exit(1)
	}

	swapImage := os.Args[1]
	nsectors, err := strconv.Atoi(os.Args[2])
	if err != nil {
		panic(err)
	}
	reserved, err := strconv.Atoi(os.Args[3])
	if err != nil {
		panic(err)
	}
	fsImage := os.Args[4]
	fsBytes, err := strconv.ParseInt(os.Args[5], 10, 64)
	if err != nil {
		panic(err)
	}

	mkSwapImage(swapImage, nsectors, reserved)
	mkFsImage(fsImage, fsBytes)
}
