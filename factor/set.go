// Package factor: trapezoidal fills and row/column scaling.

package factor

import (
	"context"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/kernels"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/sched"
	"github.com/tilemesh/tilemesh/tile"
)

// Set writes the trapezoidal constant pattern into a: diag on the global
// diagonal, offdiag everywhere else the view's uplo makes meaningful.
// Purely local: every rank fills its own tiles.
func Set[T tile.Scalar](ctx context.Context, offdiag, diag T, a matrix.Matrix[T], opts ...Option) error {
	return SetWith[T](ctx, kernels.Ref[T]{}, offdiag, diag, a, opts...)
}

// SetWith is Set with a caller-supplied kernel binding.
func SetWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], offdiag, diag T, a matrix.Matrix[T], opts ...Option) error {
	emit("set", "enter")
	d := newDriver[T](ctx, blas, a.Devices(), opts)
	uplo := a.Uplo()
	for j := 0; j < a.Nt(); j++ {
		j := j
		d.spawn(sched.On(j), sched.PriorityNormal, func() error {
			for i := 0; i < a.Mt(); i++ {
				if !tileMeaningful(uplo, i, j) || !a.TileIsLocal(i, j) {
					continue
				}
				t, err := a.Tile(i, j, tile.Host, catalog.Write, tile.ColMajor)
				if err != nil {
					return err
				}
				switch {
				case i == j:
					t.WithUplo(uplo, tile.NonUnit).Fill(offdiag, diag)
				default:
					t.Fill(offdiag, offdiag)
				}
			}
			return nil
		})
	}
	err := d.wait()
	if err == nil {
		err = a.UpdateAllOrigin()
	}
	emit("set", "exit")
	return err
}

// tileMeaningful reports whether tile (i, j) carries data under uplo.
func tileMeaningful(uplo tile.Uplo, i, j int) bool {
	switch uplo {
	case tile.Lower:
		return i >= j
	case tile.Upper:
		return i <= j
	default:
		return true
	}
}

// ScaleRowCol multiplies element (r, c) by rowScale[r]·colScale[c] using
// global indices; either slice may be nil. On a Hermitian lower-stored
// view only the stored triangle is touched, which keeps the implied upper
// triangle consistent when rowScale and colScale agree.
func ScaleRowCol[T tile.Scalar](ctx context.Context, rowScale, colScale []T, a matrix.Matrix[T], opts ...Option) error {
	emit("scale_row_col", "enter")
	d := newDriver[T](ctx, kernels.Ref[T]{}, a.Devices(), opts)
	uplo := a.Uplo()

	rowOff := make([]int, a.Mt()+1)
	for i := 0; i < a.Mt(); i++ {
		rowOff[i+1] = rowOff[i] + a.TileMb(i)
	}
	colOff := make([]int, a.Nt()+1)
	for j := 0; j < a.Nt(); j++ {
		colOff[j+1] = colOff[j] + a.TileNb(j)
	}

	for j := 0; j < a.Nt(); j++ {
		j := j
		d.spawn(sched.On(j), sched.PriorityNormal, func() error {
			for i := 0; i < a.Mt(); i++ {
				if !tileMeaningful(uplo, i, j) || !a.TileIsLocal(i, j) {
					continue
				}
				t, err := a.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
				if err != nil {
					return err
				}
				var rs, cs []T
				if rowScale != nil {
					rs = rowScale[rowOff[i]:rowOff[i+1]]
				}
				if colScale != nil {
					cs = colScale[colOff[j]:colOff[j+1]]
				}
				if i == j {
					t.WithUplo(uplo, tile.NonUnit).ScaleRowsCols(rs, cs)
				} else {
					t.ScaleRowsCols(rs, cs)
				}
			}
			return nil
		})
	}
	err := d.wait()
	if err == nil {
		err = a.UpdateAllOrigin()
	}
	emit("scale_row_col", "exit")
	return err
}
