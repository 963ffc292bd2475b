// Package pivot implements parallel row permutation and symmetric
// row/column permutation over distributed tiled matrices.
//
// What:
//
//   - Pivot{TileIndex, Offset} names the row a pivot swaps with, relative
//     to the first block-row of the view the pivot vector applies to.
//   - PermuteRows applies a pivot vector forward or backward across every
//     block-column: local swaps where one rank owns both rows, paired
//     remote exchanges where ownership splits.
//   - PermuteRowsCols applies the symmetric permutation to a Hermitian
//     lower-stored matrix, conjugating the fragments whose stored and
//     needed orientations differ.
//
// All data movement goes through the coherence engine (tiles are brought
// to Write at the host before rows move) and the paired exchange of the
// communication layer; tags derive from the caller's base tag plus the
// block-column (row permutation) or tile-row (symmetric permutation), so
// concurrent permutations on disjoint columns never cross streams.
//
// Errors:
//
//   - ErrPivotRange: a pivot names a tile or offset outside the view.
package pivot
