// Package kernels defines the tile-kernel contract the runtime schedules,
// and a pure-Go reference binding.
//
// What:
//
//   - Blas[T] is the trait a scalar instantiation supplies to the drivers:
//     tile-level GEMM, TRSM, HERK, SYR2K-family updates, Cholesky (POTRF),
//     Householder panel factorization, block-reflector application, and
//     the triangle-triangle pair used by reduction-tree QR.
//   - Ref[T] implements the trait with straightforward loops working
//     through logical tile indexing, so op, layout, uplo, and diag are
//     honoured without per-case code. Correct for all four scalar types;
//     optimised BLAS backends plug in behind the same trait.
//
// Conventions:
//
//   - Ops and conjugation come in through the tiles themselves
//     (tile.Transpose / ConjTranspose views), as the coherence engine
//     hands them out. Output tiles must be plain NoTrans views.
//   - Panel routines work on dense column-major scratch (the drivers
//     gather a block column, factor, and scatter back), with reflectors
//     stored LAPACK-style: V below the diagonal, tau per column.
//   - Triangle-triangle routines preserve the strictly-lower part of the
//     second tile, which still holds the local panel's reflectors.
//
// Numerical failures (non-positive-definite pivot in Potrf) are reported
// as 1-based info indices, not errors; every other misuse is a programmer
// error.
package kernels
