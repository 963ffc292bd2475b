// Package factor: distributed triangular solve and the banded solve built
// on it.

package factor

import (
	"context"
	"fmt"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/kernels"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/sched"
	"github.com/tilemesh/tilemesh/tile"
)

// Trsm solves op(A)·X = α·B in place of B, with A a triangular view (op
// and uplo carried by the view). Left side only.
func Trsm[T tile.Scalar](ctx context.Context, alpha T, a, b matrix.Matrix[T], opts ...Option) error {
	return TrsmWith[T](ctx, kernels.Ref[T]{}, alpha, a, b, opts...)
}

// TrsmWith is Trsm with a caller-supplied kernel binding.
func TrsmWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], alpha T, a, b matrix.Matrix[T], opts ...Option) error {
	if a.Kind() != matrix.TriangularKind {
		return fmt.Errorf("factor: trsm needs a triangular A: %w", matrix.ErrNonSquare)
	}
	if a.Nt() != b.Mt() {
		return fmt.Errorf("factor: trsm extents differ: %w", matrix.ErrInvalidDim)
	}
	emit("trsm", "enter")
	d := newDriver[T](ctx, blas, b.Devices(), opts)
	err := d.trsmSweep(a, b, alpha, a.Mt())
	if werr := d.wait(); err == nil {
		err = werr
	}
	if err == nil {
		err = b.UpdateAllOrigin()
	}
	a.ReleaseWorkspace()
	b.ReleaseWorkspace()
	emit("trsm", "exit")
	return err
}

// trsmSweep runs the substitution sweep: forward for a Lower view,
// backward for Upper. reach bounds how far updates propagate in tiles
// (band solves stay inside the band).
func (d *driver[T]) trsmSweep(a, b matrix.Matrix[T], alpha T, reach int) error {
	mt := b.Mt()
	lower := a.Uplo() == tile.Lower

	steps := make([]int, 0, mt)
	if lower {
		for k := 0; k < mt; k++ {
			steps = append(steps, k)
		}
	} else {
		for k := mt - 1; k >= 0; k-- {
			steps = append(steps, k)
		}
	}

	// α scales every row of B exactly once, before its first touch.
	if alpha != fromFloat[T](1) {
		for j := 0; j < b.Nt(); j++ {
			j := j
			d.spawn(sched.On(j), sched.PriorityNormal, func() error {
				for i := 0; i < mt; i++ {
					if !b.TileIsLocal(i, j) {
						continue
					}
					t, err := b.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
					if err != nil {
						return err
					}
					t.Scale(alpha)
				}
				return nil
			})
		}
	}

	for _, k := range steps {
		k := k
		lo, hi := updateRange(k, mt, reach, lower)
		// The diagonal tile goes to B's row k; each A(i,k) to B's row i.
		specs := []matrix.BcastSpec[T]{}
		rowK, err := b.Sub(k, k, 0, b.Nt()-1)
		if err != nil {
			return err
		}
		specs = append(specs, matrix.BcastSpec[T]{I: k, J: k, To: []matrix.Matrix[T]{rowK},
			Tag: comm.StepColumnTag(comm.SaltBcast, k, k, mt)})
		for i := lo; i <= hi; i++ {
			row, err := b.Sub(i, i, 0, b.Nt()-1)
			if err != nil {
				return err
			}
			specs = append(specs, matrix.BcastSpec[T]{I: i, J: k, To: []matrix.Matrix[T]{row},
				Tag: comm.StepColumnTag(comm.SaltBcast, k, i, mt)})
		}
		if err := a.ListBcast(d.ctx, specs, tile.ColMajor); err != nil {
			return err
		}

		for j := 0; j < b.Nt(); j++ {
			j := j
			d.spawn(sched.On(j), sched.PriorityNormal, func() error {
				return d.trsmColumn(a, b, k, j, lo, hi)
			})
		}
	}
	return nil
}

// updateRange returns the tile rows a step's update touches.
func updateRange(k, mt, reach int, lower bool) (lo, hi int) {
	if lower {
		return k + 1, min(k+reach, mt-1)
	}
	return max(k-reach, 0), k - 1
}

// trsmColumn solves B(k,j), shares it down the column, and eliminates it
// from the remaining rows.
func (d *driver[T]) trsmColumn(a, b matrix.Matrix[T], k, j, lo, hi int) error {
	if b.TileIsLocal(k, j) {
		akk, err := a.Tile(k, k, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		bkj, err := b.Tile(k, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		d.blas.Trsm(kernels.Left, 1, akk, bkj)
	}
	// Share the solved row block with the rows it eliminates from.
	if hi >= lo {
		rows, err := b.Sub(lo, hi, j, j)
		if err != nil {
			return err
		}
		spec := matrix.BcastSpec[T]{I: k, J: j, To: []matrix.Matrix[T]{rows},
			Tag: comm.StepColumnTag(comm.SaltSwap, k, j, b.Nt())}
		if err := b.ListBcast(d.ctx, []matrix.BcastSpec[T]{spec}, tile.ColMajor); err != nil {
			return err
		}
	}
	for i := lo; i <= hi; i++ {
		if !b.TileIsLocal(i, j) {
			continue
		}
		aik, err := a.Tile(i, k, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		bkj, err := b.Tile(k, j, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		bij, err := b.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		d.blas.Gemm(fromFloat[T](-1), aik, bkj, 1, bij)
	}
	return nil
}

// Pbtrs solves A·X = B in place of B after a banded Cholesky A = L·Lᴴ:
// a forward band sweep with L, then a backward sweep with Lᴴ. l must be a
// band view holding the lower factor.
func Pbtrs[T tile.Scalar](ctx context.Context, l, b matrix.Matrix[T], opts ...Option) error {
	return PbtrsWith[T](ctx, kernels.Ref[T]{}, l, b, opts...)
}

// PbtrsWith is Pbtrs with a caller-supplied kernel binding.
func PbtrsWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], l, b matrix.Matrix[T], opts ...Option) error {
	if l.Kind() != matrix.BandKind {
		return fmt.Errorf("factor: pbtrs needs a band factor: %w", matrix.ErrInvalidDim)
	}
	kl, _ := l.Band()
	nb := l.TileNb(0)
	reach := (kl + nb - 1) / nb

	general, err := l.Sub(0, l.Mt()-1, 0, l.Nt()-1)
	if err != nil {
		return err
	}
	lt, err := matrix.Triangular(tile.Lower, tile.NonUnit, general)
	if err != nil {
		return err
	}
	emit("pbtrs", "enter")

	d := newDriver[T](ctx, blas, b.Devices(), opts)
	err = d.trsmSweep(lt, b, fromFloat[T](1), reach)
	if werr := d.wait(); err == nil {
		err = werr
	}
	if err != nil {
		return err
	}

	d = newDriver[T](ctx, blas, b.Devices(), opts)
	err = d.trsmSweep(lt.ConjTranspose(), b, fromFloat[T](1), reach)
	if werr := d.wait(); err == nil {
		err = werr
	}
	if err == nil {
		err = b.UpdateAllOrigin()
	}
	lt.ReleaseWorkspace()
	b.ReleaseWorkspace()
	emit("pbtrs", "exit")
	return err
}
