// Package pool provides per-memory slab arenas for tile storage.
//
// What:
//
//   - Pool[T] hands out tile-sized slabs ([]T) per memory location (host or
//     device index), with LIFO reuse of freed slabs and no defragmentation.
//   - Reserve pre-allocates slabs of a canonical size class so that
//     workspace requests inside the reserve window never fail.
//   - Shrink returns idle slabs to the Go allocator.
//   - The host arena can pin its slabs (mlock) so asynchronous device
//     transfers can overlap with compute.
//
// Why:
//
//   - Tiles are allocated and released in bursts at every factorization
//     step; a freelist keyed by size class keeps that off the garbage
//     collector's hot path.
//
// Complexity:
//
//   - Acquire / Release: O(1) amortized.
//   - Reserve(n):        O(n) allocations.
//   - Shrink:            O(idle slabs).
//
// Errors:
//
//   - ErrOutOfMemory: a capacity-limited arena is exhausted outside a
//     reserve window.
//   - ErrUnknownMemory: the memory location was never configured.
package pool
