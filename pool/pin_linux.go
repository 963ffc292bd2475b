//go:build linux

// Package pool: pinned host slabs via mlock. Pin failures are ignored:
// an unpinned slab is still usable, transfers just lose async overlap.

package pool

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// pin locks the slab's pages into physical memory.
func pin[T any](slab []T) {
	if len(slab) == 0 {
		return
	}
	var zero T
	b := unsafe.Slice((*byte)(unsafe.Pointer(&slab[0])), len(slab)*int(unsafe.Sizeof(zero)))
	_ = unix.Mlock(b)
}

// unpin releases the page lock taken by pin.
func unpin[T any](slab []T) {
	if len(slab) == 0 {
		return
	}
	var zero T
	b := unsafe.Slice((*byte)(unsafe.Pointer(&slab[0])), len(slab)*int(unsafe.Sizeof(zero)))
	_ = unix.Munlock(b)
}
