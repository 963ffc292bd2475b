// Package tile defines the Tile value type: a pointer-plus-stride view into
// one tile of a larger matrix, together with the logical attributes that
// alter indexing without touching bytes.
//
// What:
//
//   - Tile[T] wraps a slice, a stride, and extents mb×nb.
//   - Layout (ColMajor | RowMajor) selects the storage order.
//   - Op (NoTrans | Trans | ConjTrans), Uplo (General | Upper | Lower) and
//     Diag (NonUnit | Unit) are purely logical: they change what At(i, j)
//     means, never what the backing slice holds.
//   - Memory tags the instance's residency (Host or a device index ≥ 0);
//     the origin flag marks the instance backed by user-visible storage.
//
// Why:
//
//   - Tiles are the unit of storage, communication, and computation for the
//     whole runtime. Keeping Tile a plain value with no locks or ownership
//     lets the catalog hand out cheap borrows.
//
// Complexity:
//
//   - At / SetAt:   O(1).
//   - CopyTo:       O(mb×nb), converting layout and op on the fly.
//   - Fill / Scale: O(mb×nb).
//
// Errors:
//
//   - ErrShapeMismatch: destination extents differ from the source's logical extents.
//   - Out-of-range element access is a programmer error and panics.
package tile
