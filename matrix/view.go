// SPDX-License-Identifier: MIT

// Package matrix: O(1) composable views.
//
// A view is the Matrix value itself: deriving one copies the descriptor
// and adjusts offsets, steps, op, and kind. The storage is never touched.

package matrix

import (
	"fmt"

	"github.com/tilemesh/tilemesh/tile"
)

// Mt returns the logical tile-row count.
func (a Matrix[T]) Mt() int {
	if a.op != tile.NoTrans {
		return a.cols
	}
	return a.rows
}

// Nt returns the logical tile-column count.
func (a Matrix[T]) Nt() int {
	if a.op != tile.NoTrans {
		return a.rows
	}
	return a.cols
}

// M returns the logical row count in elements.
func (a Matrix[T]) M() int {
	total := 0
	for i := 0; i < a.Mt(); i++ {
		total += a.TileMb(i)
	}
	return total
}

// N returns the logical column count in elements.
func (a Matrix[T]) N() int {
	total := 0
	for j := 0; j < a.Nt(); j++ {
		total += a.TileNb(j)
	}
	return total
}

// TileMb returns the row extent of logical tile-row i.
func (a Matrix[T]) TileMb(i int) int {
	if a.op != tile.NoTrans {
		return a.st.TileNb(a.colStart + i*a.colStep)
	}
	return a.st.TileMb(a.rowStart + i*a.rowStep)
}

// TileNb returns the column extent of logical tile-column j.
func (a Matrix[T]) TileNb(j int) int {
	if a.op != tile.NoTrans {
		return a.st.TileMb(a.rowStart + j*a.rowStep)
	}
	return a.st.TileNb(a.colStart + j*a.colStep)
}

// Op returns the logical transposition of this view.
func (a Matrix[T]) Op() tile.Op { return a.op }

// Kind returns the structural type of this view.
func (a Matrix[T]) Kind() Kind { return a.kind }

// Uplo returns the meaningful triangle, as seen through op.
func (a Matrix[T]) Uplo() tile.Uplo {
	if a.op == tile.NoTrans {
		return a.uplo
	}
	switch a.uplo {
	case tile.Upper:
		return tile.Lower
	case tile.Lower:
		return tile.Upper
	}
	return a.uplo
}

// Diag returns the diagonal policy of a triangular view.
func (a Matrix[T]) Diag() tile.Diag { return a.diag }

// Band returns (kl, ku) of a band view, as seen through op.
func (a Matrix[T]) Band() (kl, ku int) {
	if a.op != tile.NoTrans {
		return a.ku, a.kl
	}
	return a.kl, a.ku
}

// mapTile converts logical (i, j) to storage tile coordinates.
func (a Matrix[T]) mapTile(i, j int) (si, sj int) {
	if a.op != tile.NoTrans {
		i, j = j, i
	}
	return a.rowStart + i*a.rowStep, a.colStart + j*a.colStep
}

// Sub returns the view of tiles [i1..i2] × [j1..j2] (inclusive, logical).
// Type-restricted kinds revert to General; re-cast if needed. Empty ranges
// (i2 < i1 or j2 < j1) are allowed and yield an empty view.
// Complexity: O(1).
func (a Matrix[T]) Sub(i1, i2, j1, j2 int) (Matrix[T], error) {
	if i1 < 0 || j1 < 0 || i2 >= a.Mt() || j2 >= a.Nt() {
		return Matrix[T]{}, fmt.Errorf("matrix: sub [%d..%d]×[%d..%d] of %d×%d: %w", i1, i2, j1, j2, a.Mt(), a.Nt(), ErrRange)
	}
	out := a
	out.kind, out.uplo, out.diag, out.kl, out.ku = GeneralKind, tile.General, tile.NonUnit, 0, 0
	ri1, rj1 := i1, j1
	rRows, rCols := i2-i1+1, j2-j1+1
	if a.op != tile.NoTrans {
		ri1, rj1 = j1, i1
		rRows, rCols = rCols, rRows
	}
	out.rowStart = a.rowStart + ri1*a.rowStep
	out.rows = max(rRows, 0)
	out.colStart = a.colStart + rj1*a.colStep
	out.cols = max(rCols, 0)
	return out, nil
}

// Slice returns the strided view selecting rowRange × colRange (logical,
// half-open, stepped).
// Complexity: O(1).
func (a Matrix[T]) Slice(rowRange, colRange Range) (Matrix[T], error) {
	if rowRange.Step <= 0 || colRange.Step <= 0 ||
		rowRange.Start < 0 || colRange.Start < 0 ||
		rowRange.End > a.Mt() || colRange.End > a.Nt() {
		return Matrix[T]{}, fmt.Errorf("matrix: slice %+v × %+v of %d×%d: %w", rowRange, colRange, a.Mt(), a.Nt(), ErrRange)
	}
	out := a
	out.kind, out.uplo, out.diag, out.kl, out.ku = GeneralKind, tile.General, tile.NonUnit, 0, 0
	rr, cc := rowRange, colRange
	if a.op != tile.NoTrans {
		rr, cc = cc, rr
	}
	out.rowStart = a.rowStart + rr.Start*a.rowStep
	out.rowStep = a.rowStep * rr.Step
	out.rows = rr.Len()
	out.colStart = a.colStart + cc.Start*a.colStep
	out.colStep = a.colStep * cc.Step
	out.cols = cc.Len()
	return out, nil
}

// Transpose returns the transposed view. Symmetric and Hermitian views
// keep their kind (transposition flips the stored triangle); triangular
// and band views flip their restrictions.
// Complexity: O(1).
func (a Matrix[T]) Transpose() Matrix[T] {
	out := a
	switch a.op {
	case tile.NoTrans:
		out.op = tile.Trans
	case tile.Trans:
		out.op = tile.NoTrans
	default:
		panic("matrix: transpose of a ConjTrans view")
	}
	return out
}

// ConjTranspose returns the conjugate-transposed view.
// Complexity: O(1).
func (a Matrix[T]) ConjTranspose() Matrix[T] {
	out := a
	switch a.op {
	case tile.NoTrans:
		out.op = tile.ConjTrans
	case tile.ConjTrans:
		out.op = tile.NoTrans
	default:
		panic("matrix: conj-transpose of a Trans view")
	}
	return out
}

// Triangular casts a square view to a triangular matrix.
func Triangular[T tile.Scalar](uplo tile.Uplo, diag tile.Diag, a Matrix[T]) (Matrix[T], error) {
	if err := requireSquare(a); err != nil {
		return Matrix[T]{}, err
	}
	out := a
	out.kind, out.uplo, out.diag = TriangularKind, storedUplo(a, uplo), diag
	return out, nil
}

// Symmetric casts a square view to a symmetric matrix stored in uplo.
func Symmetric[T tile.Scalar](uplo tile.Uplo, a Matrix[T]) (Matrix[T], error) {
	if err := requireSquare(a); err != nil {
		return Matrix[T]{}, err
	}
	out := a
	out.kind, out.uplo, out.diag = SymmetricKind, storedUplo(a, uplo), tile.NonUnit
	return out, nil
}

// Hermitian casts a square view to a Hermitian matrix stored in uplo.
func Hermitian[T tile.Scalar](uplo tile.Uplo, a Matrix[T]) (Matrix[T], error) {
	if err := requireSquare(a); err != nil {
		return Matrix[T]{}, err
	}
	out := a
	out.kind, out.uplo, out.diag = HermitianKind, storedUplo(a, uplo), tile.NonUnit
	return out, nil
}

// Banded casts a view to a band matrix with kl sub- and ku super-diagonals
// counted in elements; tiles wholly outside the band are never touched.
func Banded[T tile.Scalar](kl, ku int, a Matrix[T]) (Matrix[T], error) {
	if kl < 0 || ku < 0 {
		return Matrix[T]{}, fmt.Errorf("matrix: band (%d,%d): %w", kl, ku, ErrInvalidDim)
	}
	out := a
	out.kind = BandKind
	out.kl, out.ku = kl, ku
	if a.op != tile.NoTrans {
		out.kl, out.ku = ku, kl
	}
	return out, nil
}

// requireSquare checks a square-only cast.
func requireSquare[T tile.Scalar](a Matrix[T]) error {
	if a.Mt() != a.Nt() || a.M() != a.N() {
		return fmt.Errorf("matrix: %d×%d view: %w", a.M(), a.N(), ErrNonSquare)
	}
	return nil
}

// storedUplo converts a caller-facing uplo to storage orientation.
func storedUplo[T tile.Scalar](a Matrix[T], uplo tile.Uplo) tile.Uplo {
	if a.op == tile.NoTrans {
		return uplo
	}
	switch uplo {
	case tile.Upper:
		return tile.Lower
	case tile.Lower:
		return tile.Upper
	}
	return uplo
}
