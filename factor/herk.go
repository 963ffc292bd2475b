// Package factor: Hermitian rank-k and rank-2k updates.

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

// Herk computes C = α·A·Aᴴ + β·C on the lower-stored Hermitian view C.
// For real scalars this is SYRK.
func Herk[T tile.Scalar](ctx context.Context, alpha float64, a matrix.Matrix[T], beta float64, c matrix.Matrix[T], opts ...Option) error {
	return HerkWith[T](ctx, kernels.Ref[T]{}, alpha, a, beta, c, opts...)
}

// HerkWith is Herk with a caller-supplied kernel binding.
func HerkWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], alpha float64, a matrix.Matrix[T], beta float64, c matrix.Matrix[T], opts ...Option) error {
	if c.Kind() != matrix.HermitianKind && c.Kind() != matrix.SymmetricKind {
		return fmt.Errorf("factor: herk needs a Hermitian C: %w", matrix.ErrNonSquare)
	}
	if a.Mt() != c.Mt() {
		return fmt.Errorf("factor: herk extents differ: %w", matrix.ErrInvalidDim)
	}
	emit("herk", "enter")
	d := newDriver[T](ctx, blas, c.Devices(), opts)

	n, kt := c.Mt(), a.Nt()
	for k := 0; k < kt; k++ {
		k := k
		// A's column k reaches both sides of every product it joins: along
		// row i for C(i, j≤i) and down column i for C(i'>i, i).
		specs := make([]matrix.BcastSpec[T], 0, n)
		for i := 0; i < n; i++ {
			to := make([]matrix.Matrix[T], 0, 2)
			if i > 0 {
				row, err := c.Sub(i, i, 0, i-1)
				if err != nil {
					return err
				}
				to = append(to, row)
			}
			col, err := c.Sub(i, n-1, i, i)
			if err != nil {
				return err
			}
			to = append(to, col)
			specs = append(specs, matrix.BcastSpec[T]{I: i, J: k, To: to,
				Tag: comm.StepColumnTag(comm.SaltBcast, k, i, n)})
		}
		if err := a.ListBcast(d.ctx, specs, tile.ColMajor); err != nil {
			_ = d.wait()
			return err
		}

		for j := 0; j < n; j++ {
			j := j
			d.spawn(sched.On(j), sched.PriorityNormal, func() error {
				bk := beta
				if k > 0 {
					bk = 1
				}
				for i := j; i < n; i++ {
					if !c.TileIsLocal(i, j) {
						continue
					}
					ajk, err := a.Tile(j, k, tile.Host, catalog.Read, tile.ColMajor)
					if err != nil {
						return err
					}
					cij, err := c.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
					if err != nil {
						return err
					}
					if i == j {
						blas.Herk(tile.Lower, alpha, ajk, bk, cij)
						continue
					}
					aik, err := a.Tile(i, k, tile.Host, catalog.Read, tile.ColMajor)
					if err != nil {
						return err
					}
					alT := fromFloat[T](alpha)
					beT := fromFloat[T](bk)
					blas.Gemm(alT, aik, ajk.ConjTranspose(), beT, cij)
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
	c.ReleaseWorkspace()
	emit("herk", "exit")
	return err
}

// Syr2k computes C = α·A·Bᴴ + conj(α)·B·Aᴴ + β·C on the lower-stored
// Hermitian view C; for real scalars this is SYR2K.
func Syr2k[T tile.Scalar](ctx context.Context, alpha T, a, b matrix.Matrix[T], beta float64, c matrix.Matrix[T], opts ...Option) error {
	return Syr2kWith[T](ctx, kernels.Ref[T]{}, alpha, a, b, beta, c, opts...)
}

// Syr2kWith is Syr2k with a caller-supplied kernel binding.
func Syr2kWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], alpha T, a, b matrix.Matrix[T], beta float64, c matrix.Matrix[T], opts ...Option) error {
	if c.Kind() != matrix.HermitianKind && c.Kind() != matrix.SymmetricKind {
		return fmt.Errorf("factor: syr2k needs a Hermitian C: %w", matrix.ErrNonSquare)
	}
	if a.Mt() != c.Mt() || b.Mt() != c.Mt() || a.Nt() != b.Nt() {
		return fmt.Errorf("factor: syr2k extents differ: %w", matrix.ErrInvalidDim)
	}
	emit("syr2k", "enter")
	d := newDriver[T](ctx, blas, c.Devices(), opts)

	n, kt := c.Mt(), a.Nt()
	for k := 0; k < kt; k++ {
		k := k
		for _, src := range []struct {
			m    matrix.Matrix[T]
			salt comm.Salt
		}{{a, comm.SaltBcast}, {b, comm.SaltGeneral}} {
			specs := make([]matrix.BcastSpec[T], 0, n)
			for i := 0; i < n; i++ {
				to := make([]matrix.Matrix[T], 0, 2)
				if i > 0 {
					row, err := c.Sub(i, i, 0, i-1)
					if err != nil {
						return err
					}
					to = append(to, row)
				}
				col, err := c.Sub(i, n-1, i, i)
				if err != nil {
					return err
				}
				to = append(to, col)
				specs = append(specs, matrix.BcastSpec[T]{I: i, J: k, To: to,
					Tag: comm.StepColumnTag(src.salt, k, i, n)})
			}
			if err := src.m.ListBcast(d.ctx, specs, tile.ColMajor); err != nil {
				_ = d.wait()
				return err
			}
		}

		for j := 0; j < n; j++ {
			j := j
			d.spawn(sched.On(j), sched.PriorityNormal, func() error {
				bk := beta
				if k > 0 {
					bk = 1
				}
				for i := j; i < n; i++ {
					if !c.TileIsLocal(i, j) {
						continue
					}
					ajk, err := a.Tile(j, k, tile.Host, catalog.Read, tile.ColMajor)
					if err != nil {
						return err
					}
					bjk, err := b.Tile(j, k, tile.Host, catalog.Read, tile.ColMajor)
					if err != nil {
						return err
					}
					cij, err := c.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
					if err != nil {
						return err
					}
					if i == j {
						blas.Her2k(tile.Lower, alpha, ajk, bjk, bk, cij)
						continue
					}
					aik, err := a.Tile(i, k, tile.Host, catalog.Read, tile.ColMajor)
					if err != nil {
						return err
					}
					bik, err := b.Tile(i, k, tile.Host, catalog.Read, tile.ColMajor)
					if err != nil {
						return err
					}
					blas.Gemm(alpha, aik, bjk.ConjTranspose(), fromFloat[T](bk), cij)
					blas.Gemm(tile.Conj(alpha), bik, ajk.ConjTranspose(), 1, cij)
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
	emit("syr2k", "exit")
	return err
}

// fromFloat converts a real scaling factor into the scalar type.
func fromFloat[T tile.Scalar](x float64) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(float32(x)).(T)
	case float64:
		return any(x).(T)
	case complex64:
		return any(complex(float32(x), 0)).(T)
	case complex128:
		return any(complex(x, 0)).(T)
	default:
		return zero
	}
}
