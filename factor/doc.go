// Package factor contains the algorithm drivers: distributed tiled
// factorizations and the matrix-level operations they compose.
//
// What:
//
//   - Potrf: right-looking Cholesky with lookahead.
//   - Geqrf / Unmqr: communication-avoiding QR with local panel
//     factorization and triangle-triangle reduction across the process
//     column, plus application of the resulting Q.
//   - Gemm, Herk, Syr2k, Trsm: tile-level distributed updates and solves.
//   - Pbtrs: banded triangular solve after a banded Cholesky.
//   - Set: trapezoidal constant fill. ScaleRowCol: row/column scaling,
//     including the Hermitian lower-stored case.
//
// Every driver walks matrix views, spawns tasks on the scheduler with
// per-block-column dependencies, moves tiles with the matrix collectives,
// and touches data only through coherence. Origins are restored and
// workspace released before a driver returns.
//
// Options (the per-call map every driver accepts):
//
//   - Target: HostTask (default), HostNest, HostBatch, Devices.
//   - Lookahead: panels overlapped with trailing updates (default 1).
//   - InnerBlocking: panel inner block size (default 16).
//   - MaxPanelThreads: threads for nested panel work.
//
// Numerical failures surface as the info return (first failing global
// index + 1); every other failure is an error from the taskgroup.
package factor
