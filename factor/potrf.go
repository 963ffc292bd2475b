// Package factor: right-looking Cholesky with lookahead.

package factor

import (
	"context"
	"fmt"
	"sync"

	"github.com/tilemesh/tilemesh/batch"
	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/kernels"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/sched"
	"github.com/tilemesh/tilemesh/tile"
)

// Potrf factors the Hermitian positive definite lower-stored matrix
// A = L·Lᴴ in place with the reference kernels. Returns the 1-based
// global index of the first non-positive pivot (0 on success) and the
// first captured runtime failure.
func Potrf[T tile.Scalar](ctx context.Context, a matrix.Matrix[T], opts ...Option) (int, error) {
	return PotrfWith[T](ctx, kernels.Ref[T]{}, a, opts...)
}

// PotrfWith is Potrf with a caller-supplied kernel binding.
func PotrfWith[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], a matrix.Matrix[T], opts ...Option) (int, error) {
	if a.Kind() != matrix.HermitianKind && a.Kind() != matrix.SymmetricKind {
		return 0, fmt.Errorf("factor: potrf needs a Hermitian view: %w", matrix.ErrNonSquare)
	}
	emit("potrf", "enter")
	d := newDriver[T](ctx, blas, a.Devices(), opts)
	nt := a.Nt()
	L := d.opts.lookahead

	var infoMu sync.Mutex
	info := 0
	recordInfo := func(k, local int) {
		infoMu.Lock()
		if info == 0 {
			global := local
			for kk := 0; kk < k; kk++ {
				global += a.TileNb(kk)
			}
			info = global
		}
		infoMu.Unlock()
	}

	for k := 0; k < nt; k++ {
		k := k
		// Panel: factor the diagonal tile, solve the column below it, and
		// broadcast the results to their consumers.
		d.spawn(sched.On(k), sched.PriorityHigh, func() error {
			return d.potrfPanel(a, k, recordInfo)
		})

		// Lookahead columns, high priority.
		for j := k + 1; j < min(k+1+L, nt); j++ {
			j := j
			d.spawn(sched.Deps{In: []int{k}, InOut: []int{j}}, sched.PriorityHigh, func() error {
				return d.potrfUpdate(a, k, j, j)
			})
		}

		// Trailing submatrix, normal priority. The inout on the last
		// column holds step k+1's panel back until this completes.
		if k+1+L < nt {
			d.spawn(sched.Deps{In: []int{k}, InOut: []int{k + 1 + L, nt - 1}}, sched.PriorityNormal, func() error {
				return d.potrfUpdate(a, k, k+1+L, nt-1)
			})
		}

		// Cleanup: origins coherent, workspace reclaimed, column done.
		d.spawn(sched.On(k), sched.PriorityNormal, func() error {
			return cleanupColumn(a, k)
		})
	}

	err := d.wait()
	if err == nil {
		err = a.UpdateAllOrigin()
	}
	a.ReleaseWorkspace()
	emit("potrf", "exit")
	return info, err
}

// potrfPanel runs step k's panel: POTRF on the diagonal tile, TRSM down
// the column, and the two broadcast families.
func (d *driver[T]) potrfPanel(a matrix.Matrix[T], k int, recordInfo func(k, local int)) error {
	mt := a.Mt()
	if a.TileIsLocal(k, k) {
		akk, err := a.Tile(k, k, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		// On a non-positive pivot the step still runs to completion so the
		// collective schedule stays matched across ranks; the info code
		// marks the result invalid.
		if local := d.blas.Potrf(akk.WithUplo(tile.Lower, tile.NonUnit)); local != 0 {
			recordInfo(k, local)
		}
	}
	// Broadcast the factored diagonal to the column below it.
	if k+1 < mt {
		below, err := a.Sub(k+1, mt-1, k, k)
		if err != nil {
			return err
		}
		spec := matrix.BcastSpec[T]{I: k, J: k, To: []matrix.Matrix[T]{below},
			Tag: comm.StepColumnTag(comm.SaltBcast, k, k, mt)}
		if err := a.ListBcast(d.ctx, []matrix.BcastSpec[T]{spec}, tile.ColMajor); err != nil {
			return err
		}
	}
	// TRSM: A(i,k) ← A(i,k) · L(k,k)⁻ᴴ on local tiles.
	for i := k + 1; i < mt; i++ {
		if !a.TileIsLocal(i, k) {
			continue
		}
		akk, err := a.Tile(k, k, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		aik, err := a.Tile(i, k, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		d.blas.Trsm(kernels.Right, 1,
			akk.WithUplo(tile.Lower, tile.NonUnit).ConjTranspose(), aik)
	}
	// Broadcast each A(i,k) along row i and down column i, where the
	// trailing update consumes it.
	specs := make([]matrix.BcastSpec[T], 0, mt-k-1)
	for i := k + 1; i < mt; i++ {
		to := make([]matrix.Matrix[T], 0, 2)
		if i > k+1 {
			row, err := a.Sub(i, i, k+1, i-1)
			if err != nil {
				return err
			}
			to = append(to, row)
		}
		col, err := a.Sub(i, mt-1, i, i)
		if err != nil {
			return err
		}
		to = append(to, col)
		specs = append(specs, matrix.BcastSpec[T]{I: i, J: k, To: to,
			Tag: comm.StepColumnTag(comm.SaltBcast, k, i, mt)})
	}
	return a.ListBcast(d.ctx, specs, tile.ColMajor)
}

// potrfUpdate applies step k's rank-1 tile update to columns j1..j2 of the
// trailing matrix, dispatched per the target.
func (d *driver[T]) potrfUpdate(a matrix.Matrix[T], k, j1, j2 int) error {
	switch d.opts.target {
	case HostNest:
		nested := d.rt.Nested(d.opts.maxPanelThreads)
		for j := j1; j <= j2; j++ {
			j := j
			nested.Go(func() error { return d.updateColumn(a, k, j) })
		}
		return nested.Wait()

	case HostBatch, Devices:
		marshallers := make(map[tile.Memory]*batch.Marshaller[T])
		for j := j1; j <= j2; j++ {
			if err := d.collectColumn(a, k, j, marshallers); err != nil {
				return err
			}
		}
		for mem, m := range marshallers {
			q := d.queues.Queue(mem, k%(3+d.opts.lookahead))
			if err := m.FlushGemm(q, d.blas, -1, 1, tile.Lower); err != nil {
				return err
			}
		}
		return nil

	default: // HostTask
		for j := j1; j <= j2; j++ {
			if err := d.updateColumn(a, k, j); err != nil {
				return err
			}
		}
		return nil
	}
}

// updateColumn applies A(i,j) −= A(i,k)·A(j,k)ᴴ for the local tiles of
// column j (Herk on the diagonal).
func (d *driver[T]) updateColumn(a matrix.Matrix[T], k, j int) error {
	for i := j; i < a.Mt(); i++ {
		if !a.TileIsLocal(i, j) {
			continue
		}
		ajk, err := a.Tile(j, k, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		cij, err := a.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		if i == j {
			d.blas.Herk(tile.Lower, -1, ajk, 1, cij)
			continue
		}
		aik, err := a.Tile(i, k, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		d.blas.Gemm(-1, aik, ajk.ConjTranspose(), 1, cij)
	}
	return nil
}

// collectColumn marshals column j's update into per-memory batches,
// acquiring coherence at each tile's target memory on the way.
func (d *driver[T]) collectColumn(a matrix.Matrix[T], k, j int, ms map[tile.Memory]*batch.Marshaller[T]) error {
	for i := j; i < a.Mt(); i++ {
		if !a.TileIsLocal(i, j) {
			continue
		}
		mem := d.updateMem(a, i, j)
		m := ms[mem]
		if m == nil {
			m = batch.NewMarshaller[T](mem)
			ms[mem] = m
		}
		ajk, err := a.Tile(j, k, mem, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		cij, err := a.Tile(i, j, mem, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		if i == j {
			if err := m.Add(batch.Entry[T]{A: ajk, C: cij}, true); err != nil {
				return err
			}
			continue
		}
		aik, err := a.Tile(i, k, mem, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		if err := m.Add(batch.Entry[T]{A: aik, B: ajk.ConjTranspose(), C: cij}, false); err != nil {
			return err
		}
	}
	return nil
}
