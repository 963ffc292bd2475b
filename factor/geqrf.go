// Package factor: communication-avoiding QR with triangle-triangle
// reduction.

package factor

import (
	"context"

	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/kernels"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/sched"
	"github.com/tilemesh/tilemesh/tile"
)

// Geqrf computes the QR factorization A = Q·R in place with the reference
// kernels: R lands on and above the tile diagonal, the Householder
// reflectors below it, and the returned triangular factor set carries the
// block-reflector T factors (Local from panel factorization, Reduce from
// the reduction tree).
func Geqrf[T tile.Scalar](ctx context.Context, a matrix.Matrix[T], opts ...Option) (TriangularFactors[T], error) {
	return GeqrfWith[T](ctx, kernels.Ref[T]{}, a, opts...)
}

// GeqrfWith is Geqrf with a caller-supplied kernel binding.
func GeqrfWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], a matrix.Matrix[T], opts ...Option) (TriangularFactors[T], error) {
	emit("geqrf", "enter")
	d := newDriver[T](ctx, blas, a.Devices(), opts)
	tf := TriangularFactors[T]{Local: a.EmptyLike(), Reduce: a.EmptyLike()}

	mt, nt := a.Mt(), a.Nt()
	kmax := min(mt, nt)
	L := d.opts.lookahead

	for k := 0; k < kmax; k++ {
		k := k
		tops := firstRows(a, k)
		pairs := treePairs(tops)

		// Panel: local stack factorization, triangle-triangle reduction,
		// and the three broadcast families rightward.
		d.spawn(sched.On(k), sched.PriorityHigh, func() error {
			if err := d.geqrfPanel(a, tf, k); err != nil {
				return err
			}
			for _, p := range pairs {
				if err := d.ttqrtPair(a, tf, k, p[0], p[1]); err != nil {
					return err
				}
			}
			if k == nt-1 {
				return nil
			}
			return d.bcastPanel(a, tf, a, k, k+1, nt-1, tops)
		})

		// Lookahead columns, high priority.
		for j := k + 1; j < min(k+1+L, nt); j++ {
			j := j
			d.spawn(sched.Deps{In: []int{k}, InOut: []int{j}}, sched.PriorityHigh, func() error {
				return d.qrUpdate(a, tf, k, j, j, pairs)
			})
		}

		// Trailing submatrix, normal priority.
		if k+1+L < nt {
			d.spawn(sched.Deps{In: []int{k}, InOut: []int{k + 1 + L, nt - 1}}, sched.PriorityNormal, func() error {
				return d.qrUpdate(a, tf, k, k+1+L, nt-1, pairs)
			})
		}

		// Cleanup: the whole column's origins and workspace, plus the
		// factor tiles this step broadcast.
		d.spawn(sched.On(k), sched.PriorityNormal, func() error {
			if err := cleanupColumn(a, k); err != nil {
				return err
			}
			cleanupFactors(tf, tops, k)
			return nil
		})
	}

	err := d.wait()
	if err == nil {
		err = a.UpdateAllOrigin()
	}
	a.ReleaseWorkspace()
	emit("geqrf", "exit")
	return tf, err
}

// bcastPanel delivers step k's reflectors and T factors to the owners of
// columns j1..j2 of c: V tiles along their rows, Tlocal for each rank's
// top row, Treduce for every non-root top row.
func (d *driver[T]) bcastPanel(a matrix.Matrix[T], tf TriangularFactors[T], c matrix.Matrix[T], k, j1, j2 int, tops []int) error {
	mt := a.Mt()
	vSpecs := make([]matrix.BcastSpec[T], 0, mt-k)
	for i := k; i < mt; i++ {
		row, err := c.Sub(i, i, j1, j2)
		if err != nil {
			return err
		}
		vSpecs = append(vSpecs, matrix.BcastSpec[T]{I: i, J: k, To: []matrix.Matrix[T]{row},
			Tag: comm.StepColumnTag(comm.SaltBcast, k, i, mt)})
	}
	if err := a.ListBcast(d.ctx, vSpecs, tile.ColMajor); err != nil {
		return err
	}

	tlSpecs := make([]matrix.BcastSpec[T], 0, len(tops))
	for _, row := range tops {
		dst, err := c.Sub(row, row, j1, j2)
		if err != nil {
			return err
		}
		tlSpecs = append(tlSpecs, matrix.BcastSpec[T]{I: row, J: k, To: []matrix.Matrix[T]{dst},
			Tag: comm.StepColumnTag(comm.SaltGeneral, k, row, mt)})
	}
	if err := tf.Local.ListBcast(d.ctx, tlSpecs, tile.ColMajor); err != nil {
		return err
	}

	trSpecs := make([]matrix.BcastSpec[T], 0, len(tops))
	for _, row := range tops {
		if row == tops[0] {
			continue // the tree root carries no Reduce factor
		}
		dst, err := c.Sub(row, row, j1, j2)
		if err != nil {
			return err
		}
		trSpecs = append(trSpecs, matrix.BcastSpec[T]{I: row, J: k, To: []matrix.Matrix[T]{dst},
			Tag: comm.StepColumnTag(comm.SaltGather, k, row, mt)})
	}
	return tf.Reduce.ListBcast(d.ctx, trSpecs, tile.ColMajor)
}

// qrUpdate applies step k's reflectors to columns j1..j2 of the trailing
// matrix: the local stack apply, then the reduction-tree apply in creation
// order.
func (d *driver[T]) qrUpdate(a matrix.Matrix[T], tf TriangularFactors[T], k, j1, j2 int, pairs [][2]int) error {
	apply := func(j int) error {
		if err := d.unmqrStack(true, a, tf, a, k, j); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := d.ttmqrPair(true, a, tf, a, k, j, p[0], p[1]); err != nil {
				return err
			}
		}
		return nil
	}
	if d.opts.target == HostNest && j2 > j1 {
		nested := d.rt.Nested(d.opts.maxPanelThreads)
		for j := j1; j <= j2; j++ {
			j := j
			nested.Go(func() error { return apply(j) })
		}
		return nested.Wait()
	}
	for j := j1; j <= j2; j++ {
		if err := apply(j); err != nil {
			return err
		}
	}
	return nil
}

// cleanupFactors reclaims the broadcast copies of step k's T factors,
// keeping each owner's live tiles.
func cleanupFactors[T tile.Scalar](tf TriangularFactors[T], tops []int, k int) {
	for _, row := range tops {
		if tf.Local.TileIsLocal(row, k) {
			tf.Local.ReleaseLocalWorkspaceTile(row, k)
			tf.Reduce.ReleaseLocalWorkspaceTile(row, k)
		} else {
			tf.Local.ReleaseRemoteWorkspaceTile(row, k)
			tf.Reduce.ReleaseRemoteWorkspaceTile(row, k)
		}
	}
}
