// SPDX-License-Identifier: MIT

// Package matrix: kinds, ranges, and sentinel errors.

package matrix

import "errors"

// Sentinel errors for matrix construction and view casts.
var (
	// ErrInvalidDim indicates a non-positive dimension, block size, or grid.
	ErrInvalidDim = errors.New("matrix: invalid dimension")

	// ErrTileSize indicates a tile size function returning a non-positive
	// extent.
	ErrTileSize = errors.New("matrix: tile sizes do not cover the matrix")

	// ErrNonSquare indicates a square-only cast on a non-square view.
	ErrNonSquare = errors.New("matrix: view is not square")

	// ErrRange indicates a sub or slice range escaping the view.
	ErrRange = errors.New("matrix: tile range out of bounds")

	// ErrNotLocal indicates a local-only operation on a remote tile.
	ErrNotLocal = errors.New("matrix: tile is not local to this process")
)

// Kind is the structural type of a matrix view.
type Kind uint8

const (
	// GeneralKind is an unrestricted view.
	GeneralKind Kind = iota
	// TriangularKind restricts to one triangle with a diag policy.
	TriangularKind
	// SymmetricKind stores one triangle; the other is implied by symmetry.
	SymmetricKind
	// HermitianKind stores one triangle; the other is implied by conjugate
	// symmetry.
	HermitianKind
	// BandKind restricts to kl sub- and ku super-tile-diagonals.
	BandKind
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case TriangularKind:
		return "Triangular"
	case SymmetricKind:
		return "Symmetric"
	case HermitianKind:
		return "Hermitian"
	case BandKind:
		return "Band"
	default:
		return "General"
	}
}

// Range is a strided half-open tile-index range [Start, End) with
// Step ≥ 1.
type Range struct {
	Start, End, Step int
}

// Span returns [start, end) with step 1.
func Span(start, end int) Range { return Range{Start: start, End: end, Step: 1} }

// Len returns the number of indices the range selects.
func (r Range) Len() int {
	if r.End <= r.Start || r.Step <= 0 {
		return 0
	}
	return (r.End - r.Start + r.Step - 1) / r.Step
}
