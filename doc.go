// Package tilemesh is a distributed, tiled, dense-linear-algebra runtime:
// matrices stored as a 2-D grid of tiles, spread block-cyclically across a
// process mesh, computed on by a task scheduler and kept consistent by a
// MOSI coherence protocol.
//
// 🚀 What is tilemesh?
//
//	A runtime that owns every tile of every matrix and knows where its
//	up-to-date copies live:
//		• tile/    — the Tile value type: stride views with logical op/uplo/diag
//		• pool/    — per-memory slab arenas with LIFO reuse and pinned host slabs
//		• catalog/ — the tile catalog and MOSI coherence engine
//		• comm/    — transports, broadcast/reduction trees, tags
//		• sched/   — fork-join tasks with per-block-column dependencies
//		• batch/   — batched-kernel marshalling and device queues
//		• matrix/  — distributed matrices and O(1) composable views
//		• pivot/   — parallel row and symmetric row/column permutation
//		• kernels/ — the tile-kernel trait plus a pure-Go reference binding
//		• factor/  — the drivers: Cholesky, CAQR, solves, rank updates
//		• trace/   — the optional process-wide event buffer
//
// ✨ Why tilemesh?
//
//   - Coherence-first – every read and write of a tile is a protocol
//     transition, so host, device, and remote copies never drift
//   - Overlap by construction – lookahead scheduling keeps panels on the
//     critical path while trailing updates and broadcasts stream behind
//   - Pure Go core – the in-process mesh transport runs whole multi-rank
//     algorithms inside one test binary
//
// Quick ASCII picture, a 4×4-tile matrix on a 2×2 process grid:
//
//	    ┌────┬────┬────┬────┐
//	    │ r0 │ r2 │ r0 │ r2 │
//	    ├────┼────┼────┼────┤
//	    │ r1 │ r3 │ r1 │ r3 │
//	    ├────┼────┼────┼────┤
//	    │ r0 │ r2 │ r0 │ r2 │
//	    ├────┼────┼────┼────┤
//	    │ r1 │ r3 │ r1 │ r3 │
//	    └────┴────┴────┴────┘
//
// Tile (i, j) lives on rank (i mod p) + (j mod q)·p; everything else —
// residency, workspace, messaging — is the runtime's problem, not yours.
//
//	go get github.com/tilemesh/tilemesh
package tilemesh
