// SPDX-License-Identifier: MIT

// Package matrix defines the distributed tiled Matrix and its composable
// views over a shared tile catalog.
//
// What:
//
//   - Matrix[T]: a logical M×N matrix decomposed into mt×nt tiles of sizes
//     tileMb(i)×tileNb(j), distributed block-cyclically over a p×q process
//     grid (tile (i, j) lives on rank (i mod p) + (j mod q)·p), with a
//     per-tile device affinity for accelerator residency.
//   - Construction either over ScaLAPACK-style user storage (origin tiles
//     point into the user buffer) or via InsertLocalTiles (runtime-owned
//     origins).
//   - Views: Sub (inclusive tile ranges), Slice (strided tile ranges),
//     Transpose, ConjTranspose, and the type-changing casts Triangular,
//     Symmetric, Hermitian, Banded. Views are O(1) immutable descriptors;
//     they share the catalog and never own or copy tiles.
//   - Tile access routes through the coherence engine; collectives route
//     through the matrix's Bcaster so messaging and coherence stay one
//     system.
//
// Why:
//
//   - Algorithm drivers walk views and name tiles logically; everything
//     about residency, ownership, and layout stays behind this type.
//
// Errors:
//
//   - ErrInvalidDim: non-positive dimension, block size, or grid.
//   - ErrTileSize: a tile size function returns a non-positive extent (the
//     last tile is clamped to the edge, so an overshoot is not an error).
//   - ErrNonSquare: a triangular/symmetric/Hermitian cast of a non-square view.
//   - ErrRange: a sub or slice range escapes the view.
//   - ErrNotLocal: a local-only operation on a remote tile.
package matrix
