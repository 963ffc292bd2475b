// Package catalog tracks every instance of every tile of a matrix and
// enforces the MOSI coherence protocol over them.
//
// What:
//
//   - Catalog[T] maps (i, j) → Entry: all known instances of tile (i, j),
//     one per memory location (host + each device), each with a coherence
//     state and a lifetime flag (origin vs workspace).
//   - Engine[T] is the coherence engine: a single Acquire entry point that
//     produces tile (i, j) at a requested location, in a requested state and
//     layout, copying, converting, and invalidating as required.
//   - Workspace instances are created lazily from a pool.Pool and released
//     in bulk at the end of an algorithm.
//
// Why:
//
//   - Every task in the runtime borrows tiles through coherence
//     transitions; centralising state here is what lets computation,
//     device residency, and messaging overlap without double-writes.
//
// Coherence invariants (global per (i, j), checked by Validate):
//
//   - At most one Modified instance.
//   - If any instance is Modified, all others are Invalid or OnHold.
//   - Otherwise all non-Invalid instances are Shared and bit-identical.
//   - OnHold content is valid and read-equivalent to Shared, but the
//     instance is pinned against eviction until released.
//
// Concurrency:
//
//   - Each entry has its own lock; transitions are atomic under it. No
//     kernel work ever runs under an entry lock.
//   - The catalog map itself is read-mostly and grows monotonically during
//     an algorithm; it is guarded by a single RWMutex.
//
// Errors:
//
//   - ErrNotFound:  no instance of the tile exists where one is required.
//   - ErrNoDonor:   a read needs data but no valid instance exists anywhere.
//   - ErrInvariant: a coherence invariant was violated; always a defect.
//   - ErrOriginErase: attempt to erase an origin instance.
//   - ErrHeld: attempt to erase an instance with outstanding holds.
package catalog
