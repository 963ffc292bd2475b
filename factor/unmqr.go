// Package factor: applying Q from a QR factorization.

package factor

import (
	"context"
	"fmt"

	"github.com/tilemesh/tilemesh/kernels"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/sched"
	"github.com/tilemesh/tilemesh/tile"
)

// Unmqr multiplies C from the left by Q (op NoTrans) or Qᴴ (op
// ConjTrans), with Q stored as the reflectors left in a by Geqrf plus the
// triangular factor set tf. C must share a's row tiling and grid.
func Unmqr[T tile.Scalar](ctx context.Context, op tile.Op, a matrix.Matrix[T], tf TriangularFactors[T], c matrix.Matrix[T], opts ...Option) error {
	return UnmqrWith[T](ctx, kernels.Ref[T]{}, op, a, tf, c, opts...)
}

// UnmqrWith is Unmqr with a caller-supplied kernel binding.
func UnmqrWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], op tile.Op, a matrix.Matrix[T], tf TriangularFactors[T], c matrix.Matrix[T], opts ...Option) error {
	if op != tile.NoTrans && op != tile.ConjTrans {
		return fmt.Errorf("factor: unmqr op %v: %w", op, matrix.ErrInvalidDim)
	}
	if err := checkSameGrid(a, c); err != nil {
		return err
	}
	if a.Mt() != c.Mt() {
		return fmt.Errorf("factor: unmqr row tilings differ: %w", matrix.ErrInvalidDim)
	}
	emit("unmqr", op.String())
	d := newDriver[T](ctx, blas, c.Devices(), opts)

	kmax := min(a.Mt(), a.Nt())
	steps := make([]int, 0, kmax)
	if op == tile.ConjTrans {
		for k := 0; k < kmax; k++ {
			steps = append(steps, k)
		}
	} else {
		for k := kmax - 1; k >= 0; k-- {
			steps = append(steps, k)
		}
	}

	trans := op == tile.ConjTrans
	for _, k := range steps {
		k := k
		tops := firstRows(a, k)
		pairs := treePairs(tops)

		// Redistribute the step's reflectors to C's owners; the factors
		// themselves were kept by Geqrf's owners.
		if err := d.bcastPanel(a, tf, c, k, 0, c.Nt()-1, tops); err != nil {
			_ = d.wait()
			return err
		}

		for j := 0; j < c.Nt(); j++ {
			j := j
			d.spawn(sched.On(j), sched.PriorityNormal, func() error {
				if trans {
					// Qᴴ: local reflectors first, then the tree, in
					// creation order.
					if err := d.unmqrStack(true, a, tf, c, k, j); err != nil {
						return err
					}
					for _, p := range pairs {
						if err := d.ttmqrPair(true, a, tf, c, k, j, p[0], p[1]); err != nil {
							return err
						}
					}
					return nil
				}
				// Q: the tree in reverse creation order, then the local
				// reflectors.
				for idx := len(pairs) - 1; idx >= 0; idx-- {
					p := pairs[idx]
					if err := d.ttmqrPair(false, a, tf, c, k, j, p[0], p[1]); err != nil {
						return err
					}
				}
				return d.unmqrStack(false, a, tf, c, k, j)
			})
		}
	}

	err := d.wait()
	if err == nil {
		err = c.UpdateAllOrigin()
	}
	a.ReleaseWorkspace()
	c.ReleaseWorkspace()
	emit("unmqr", "exit")
	return err
}
