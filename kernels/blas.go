// Package kernels: the Blas trait and the reference level-3 kernels.

package kernels

import "github.com/tilemesh/tilemesh/tile"

// Side selects which side a triangular operand multiplies from.
type Side uint8

const (
	// Left solves op(A)·X = αB or applies Q from the left.
	Left Side = iota
	// Right solves X·op(A) = αB.
	Right
)

// Blas is the kernel trait a scalar instantiation supplies to the
// drivers. Input tiles may carry ops; output tiles must be plain views.
type Blas[T tile.Scalar] interface {
	// Gemm computes C = α·A·B + β·C.
	Gemm(alpha T, a, b tile.Tile[T], beta T, c tile.Tile[T])

	// Trsm solves op(A)·X = α·B (Left) or X·op(A) = α·B (Right) in place
	// of B, with A triangular as tagged by its uplo and diag.
	Trsm(side Side, alpha T, a, b tile.Tile[T])

	// Herk computes C = α·A·Aᴴ + β·C on the triangle tagged by uplo. For
	// real scalars this is SYRK.
	Herk(uplo tile.Uplo, alpha float64, a tile.Tile[T], beta float64, c tile.Tile[T])

	// Her2k computes C = α·A·Bᴴ + conj(α)·B·Aᴴ + β·C on the tagged
	// triangle. For real scalars this is SYR2K.
	Her2k(uplo tile.Uplo, alpha T, a, b tile.Tile[T], beta float64, c tile.Tile[T])

	// Potrf factors A = L·Lᴴ in place on the lower triangle. Returns the
	// 1-based index of the first non-positive pivot, or 0.
	Potrf(a tile.Tile[T]) int

	// Geqr2 factors the dense m×n column-major panel a (leading dimension
	// lda): R overwrites the upper triangle, reflectors V the strict lower
	// part, tau one scalar per column.
	Geqr2(m, n int, a []T, lda int, tau []T)

	// Unmqr2 applies Q (trans false) or Qᴴ (trans true) from the left to
	// the dense m×n matrix c, with Q the product of k reflectors stored in
	// v/tau by Geqr2.
	Unmqr2(trans bool, m, n, k int, v []T, ldv int, tau []T, c []T, ldc int)

	// Larft forms the upper-triangular block-reflector factor T from k
	// reflectors stored in v/tau, forward columnwise; tau lands on T's
	// diagonal.
	Larft(m, k int, v []T, ldv int, tau []T, t []T, ldt int)

	// Ttqrt performs the triangle-triangle factorization of the stacked
	// pair [R1; R2]: the upper triangle of a1 receives the combined R, the
	// upper triangle of a2 the new reflectors (its strict lower part is
	// preserved), and t the triangular T factor whose diagonal is tau.
	Ttqrt(a1, a2, t tile.Tile[T])

	// Ttmqr applies the Ttqrt reflectors to the stacked row pair
	// [C1; C2], as Q (trans false) or Qᴴ (trans true).
	Ttmqr(trans bool, a2, t, c1, c2 tile.Tile[T])
}

// Ref is the pure-Go reference binding of Blas.
type Ref[T tile.Scalar] struct{}

// Gemm computes C = α·A·B + β·C by straightforward inner products.
// Complexity: O(m·n·k).
func (Ref[T]) Gemm(alpha T, a, b tile.Tile[T], beta T, c tile.Tile[T]) {
	m, n, k := c.Mb(), c.Nb(), a.Nb()
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			var sum T
			for l := 0; l < k; l++ {
				sum += a.At(i, l) * b.At(l, j)
			}
			c.SetAt(i, j, alpha*sum+beta*c.At(i, j))
		}
	}
}

// Trsm solves the triangular system in place of B by substitution.
func (Ref[T]) Trsm(side Side, alpha T, a, b tile.Tile[T]) {
	m, n := b.Mb(), b.Nb()
	unit := a.Diag() == tile.Unit
	lower := a.Uplo() == tile.Lower
	if side == Left {
		for j := 0; j < n; j++ {
			if lower {
				for i := 0; i < m; i++ {
					x := alpha * b.At(i, j)
					for k := 0; k < i; k++ {
						x -= a.At(i, k) * b.At(k, j)
					}
					if !unit {
						x /= a.At(i, i)
					}
					b.SetAt(i, j, x)
				}
			} else {
				for i := m - 1; i >= 0; i-- {
					x := alpha * b.At(i, j)
					for k := i + 1; k < m; k++ {
						x -= a.At(i, k) * b.At(k, j)
					}
					if !unit {
						x /= a.At(i, i)
					}
					b.SetAt(i, j, x)
				}
			}
		}
		return
	}
	// Right: X·A = α·B, column sweeps ordered by the triangle.
	if lower {
		for j := n - 1; j >= 0; j-- {
			for i := 0; i < m; i++ {
				x := alpha * b.At(i, j)
				for k := j + 1; k < n; k++ {
					x -= b.At(i, k) * a.At(k, j)
				}
				if !unit {
					x /= a.At(j, j)
				}
				b.SetAt(i, j, x)
			}
		}
		return
	}
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			x := alpha * b.At(i, j)
			for k := 0; k < j; k++ {
				x -= b.At(i, k) * a.At(k, j)
			}
			if !unit {
				x /= a.At(j, j)
			}
			b.SetAt(i, j, x)
		}
	}
}

// Herk computes the rank-k update on the tagged triangle, keeping the
// diagonal real.
func (Ref[T]) Herk(uplo tile.Uplo, alpha float64, a tile.Tile[T], beta float64, c tile.Tile[T]) {
	n, k := c.Mb(), a.Nb()
	al, be := fromFloat[T](alpha), fromFloat[T](beta)
	for j := 0; j < n; j++ {
		lo, hi := 0, n
		if uplo == tile.Lower {
			lo = j
		} else {
			hi = j + 1
		}
		for i := lo; i < hi; i++ {
			var sum T
			for l := 0; l < k; l++ {
				sum += a.At(i, l) * conjOf(a.At(j, l))
			}
			v := al*sum + be*c.At(i, j)
			if i == j {
				v = fromFloat[T](realOf(v))
			}
			c.SetAt(i, j, v)
		}
	}
}

// Her2k computes the rank-2k update on the tagged triangle.
func (Ref[T]) Her2k(uplo tile.Uplo, alpha T, a, b tile.Tile[T], beta float64, c tile.Tile[T]) {
	n, k := c.Mb(), a.Nb()
	be := fromFloat[T](beta)
	for j := 0; j < n; j++ {
		lo, hi := 0, n
		if uplo == tile.Lower {
			lo = j
		} else {
			hi = j + 1
		}
		for i := lo; i < hi; i++ {
			var s1, s2 T
			for l := 0; l < k; l++ {
				s1 += a.At(i, l) * conjOf(b.At(j, l))
				s2 += b.At(i, l) * conjOf(a.At(j, l))
			}
			v := alpha*s1 + conjOf(alpha)*s2 + be*c.At(i, j)
			if i == j {
				v = fromFloat[T](realOf(v))
			}
			c.SetAt(i, j, v)
		}
	}
}

// Potrf factors A = L·Lᴴ in place on the lower triangle, unblocked.
// Returns the 1-based index of the first non-positive pivot, or 0.
func (Ref[T]) Potrf(a tile.Tile[T]) int {
	n := a.Mb()
	for j := 0; j < n; j++ {
		d := realOf(a.At(j, j))
		for k := 0; k < j; k++ {
			d -= absSq(a.At(j, k))
		}
		if d <= 0 {
			return j + 1
		}
		ajj := fromFloat[T](sqrt(d))
		a.SetAt(j, j, ajj)
		for i := j + 1; i < n; i++ {
			x := a.At(i, j)
			for k := 0; k < j; k++ {
				x -= a.At(i, k) * conjOf(a.At(j, k))
			}
			a.SetAt(i, j, x/ajj)
		}
	}
	return 0
}
