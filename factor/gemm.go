// Package factor: distributed tiled matrix-matrix multiply.

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

// Gemm computes C = α·A·B + β·C over tiles: inner dimension k streams
// through broadcasts of A's columns and B's rows, every rank updating its
// local C tiles. Ops come in through the views of A and B.
func Gemm[T tile.Scalar](ctx context.Context, alpha T, a, b matrix.Matrix[T], beta T, c matrix.Matrix[T], opts ...Option) error {
	return GemmWith[T](ctx, kernels.Ref[T]{}, alpha, a, b, beta, c, opts...)
}

// GemmWith is Gemm with a caller-supplied kernel binding.
func GemmWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], alpha T, a, b matrix.Matrix[T], beta T, c matrix.Matrix[T], opts ...Option) error {
	if a.Nt() != b.Mt() || a.Mt() != c.Mt() || b.Nt() != c.Nt() {
		return fmt.Errorf("factor: gemm %d×%d · %d×%d → %d×%d: %w",
			a.Mt(), a.Nt(), b.Mt(), b.Nt(), c.Mt(), c.Nt(), matrix.ErrInvalidDim)
	}
	if err := checkSameGrid(a, c); err != nil {
		return err
	}
	emit("gemm", "enter")
	d := newDriver[T](ctx, blas, c.Devices(), opts)

	kt := a.Nt()
	for k := 0; k < kt; k++ {
		k := k
		// A's column k to C's rows, B's row k to C's columns.
		aSpecs := make([]matrix.BcastSpec[T], 0, a.Mt())
		for i := 0; i < a.Mt(); i++ {
			row, err := c.Sub(i, i, 0, c.Nt()-1)
			if err != nil {
				return err
			}
			aSpecs = append(aSpecs, matrix.BcastSpec[T]{I: i, J: k, To: []matrix.Matrix[T]{row},
				Tag: comm.StepColumnTag(comm.SaltBcast, k, i, a.Mt())})
		}
		if err := a.ListBcast(d.ctx, aSpecs, tile.ColMajor); err != nil {
			_ = d.wait()
			return err
		}
		bSpecs := make([]matrix.BcastSpec[T], 0, c.Nt())
		for j := 0; j < c.Nt(); j++ {
			col, err := c.Sub(0, c.Mt()-1, j, j)
			if err != nil {
				return err
			}
			bSpecs = append(bSpecs, matrix.BcastSpec[T]{I: k, J: j, To: []matrix.Matrix[T]{col},
				Tag: comm.StepColumnTag(comm.SaltGeneral, k, j, c.Nt())})
		}
		if err := b.ListBcast(d.ctx, bSpecs, tile.ColMajor); err != nil {
			_ = d.wait()
			return err
		}

		for j := 0; j < c.Nt(); j++ {
			j := j
			d.spawn(sched.On(j), sched.PriorityNormal, func() error {
				bk := beta
				if k > 0 {
					bk = 1
				}
				for i := 0; i < c.Mt(); i++ {
					if !c.TileIsLocal(i, j) {
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
					cij, err := c.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
					if err != nil {
						return err
					}
					blas.Gemm(alpha, aik, bkj, bk, cij)
				}
				return nil
			})
		}
	}

	err := d.wait()
	if err == nil {
		err = c.UpdateAllOrigin()
	}
	a.ReleaseWorkspace()
	b.ReleaseWorkspace()
	c.ReleaseWorkspace()
	emit("gemm", "exit")
	return err
}
