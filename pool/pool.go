// Package pool: the arena implementation.

package pool

import (
	"errors"

	"github.com/tilemesh/tilemesh/tile"
)

// Sentinel errors for pool operations.
var (
	// ErrOutOfMemory indicates a capacity-limited arena is exhausted.
	ErrOutOfMemory = errors.New("pool: out of memory")

	// ErrUnknownMemory indicates the memory location was never configured.
	ErrUnknownMemory = errors.New("pool: unknown memory location")
)

// Pool hands out tile-sized slabs per memory location.
//
// All methods are safe for concurrent use; each arena carries its own lock
// so host and device traffic do not contend.
type Pool[T tile.Scalar] struct {
	arenas map[tile.Memory]*arena[T]
	opts   Options
}

// New creates a pool with a host arena plus one arena per configured device.
// Complexity: O(devices).
func New[T tile.Scalar](opts ...Option) *Pool[T] {
	o := gatherOptions(opts)
	p := &Pool[T]{arenas: make(map[tile.Memory]*arena[T]), opts: o}
	p.arenas[tile.Host] = newArena[T](o.limits[int(tile.Host)], o.pinHost)
	for d := 0; d < o.devices; d++ {
		p.arenas[tile.Device(d)] = newArena[T](o.limits[d], false)
	}
	return p
}

// Devices returns the number of accelerator arenas.
func (p *Pool[T]) Devices() int { return p.opts.devices }

// Acquire returns a slab of exactly elems elements from mem.
//
// A freed slab of the same size class is reused LIFO; otherwise a fresh
// slab is allocated unless the arena's limit is exhausted, in which case
// ErrOutOfMemory is returned. Inside a Reserve window of the same size
// class, Acquire never fails.
// Complexity: O(1) amortized.
func (p *Pool[T]) Acquire(mem tile.Memory, elems int) ([]T, error) {
	a, ok := p.arenas[mem]
	if !ok {
		return nil, ErrUnknownMemory
	}
	return a.acquire(elems)
}

// Release returns a slab to mem's freelist for LIFO reuse. The caller must
// not retain references into the slab.
// Complexity: O(1).
func (p *Pool[T]) Release(mem tile.Memory, slab []T) error {
	a, ok := p.arenas[mem]
	if !ok {
		return ErrUnknownMemory
	}
	a.release(slab)
	return nil
}

// Reserve pre-allocates n slabs of elems elements on mem, so subsequent
// workspace acquires of that size class cannot fail.
// Complexity: O(n).
func (p *Pool[T]) Reserve(mem tile.Memory, n, elems int) error {
	a, ok := p.arenas[mem]
	if !ok {
		return ErrUnknownMemory
	}
	return a.reserve(n, elems)
}

// Shrink drops mem's idle slabs, returning them to the Go allocator.
// Complexity: O(idle slabs).
func (p *Pool[T]) Shrink(mem tile.Memory) error {
	a, ok := p.arenas[mem]
	if !ok {
		return ErrUnknownMemory
	}
	a.shrink()
	return nil
}

// Stats reports live and idle slab counts for mem, plus the number of idle
// slabs Shrink has handed back to the Go allocator (kept as a debug signal
// for release-policy tuning). Release itself only parks a slab idle.
func (p *Pool[T]) Stats(mem tile.Memory) (live, idle int, freed uint64) {
	a, ok := p.arenas[mem]
	if !ok {
		return 0, 0, 0
	}
	return a.stats()
}

// Close shrinks every arena. The pool must not be used afterwards.
func (p *Pool[T]) Close() {
	for _, a := range p.arenas {
		a.shrink()
	}
}
