// Package factor: shared driver scaffolding.

package factor

import (
	"context"

	"github.com/tilemesh/tilemesh/batch"
	"github.com/tilemesh/tilemesh/kernels"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/sched"
	"github.com/tilemesh/tilemesh/tile"
	"github.com/tilemesh/tilemesh/trace"
)

// driver bundles the per-call machinery: a scheduler runtime, one
// taskgroup, the kernel binding, and (for batched targets) the queue set.
type driver[T tile.Scalar] struct {
	ctx    context.Context
	blas   kernels.Blas[T]
	opts   Options
	rt     *sched.Runtime
	group  *sched.Group
	queues *batch.QueueSet
}

// newDriver opens the scaffolding; close must run before the driver
// returns to the caller.
func newDriver[T tile.Scalar](ctx context.Context, blas kernels.Blas[T], devices int, opts []Option) *driver[T] {
	o := gatherOptions(opts)
	d := &driver[T]{ctx: ctx, blas: blas, opts: o}
	d.rt = sched.NewRuntime(sched.WithWorkers(o.workers))
	d.group = d.rt.NewGroup()
	if o.target == HostBatch || o.target == Devices {
		d.queues = batch.NewQueueSet(devices, o.lookahead)
	}
	return d
}

// wait closes the taskgroup and returns its first captured failure.
func (d *driver[T]) wait() error {
	err := d.group.Wait()
	d.rt.Shutdown()
	if d.queues != nil {
		d.queues.Close()
	}
	return err
}

// spawn forwards to the taskgroup.
func (d *driver[T]) spawn(deps sched.Deps, prio int, body func() error) {
	d.group.Spawn(deps, prio, body)
}

// updateMem returns the memory an update on tile (i, j) should run in for
// the selected target.
func (d *driver[T]) updateMem(a matrix.Matrix[T], i, j int) tile.Memory {
	if d.opts.target == Devices && a.Devices() > 0 {
		return a.TileDevice(i, j)
	}
	return tile.Host
}

// emit traces a driver event when the buffer is live.
func emit(name, detail string) {
	if trace.Enabled() {
		trace.Emit(name, detail)
	}
}

// cleanupColumn restores origins and reclaims workspace for one logical
// column of a, the tail of every step's task chain.
func cleanupColumn[T tile.Scalar](a matrix.Matrix[T], k int) error {
	for i := 0; i < a.Mt(); i++ {
		if a.TileIsLocal(i, k) {
			if err := a.UpdateOrigin(i, k); err != nil {
				return err
			}
			a.ReleaseLocalWorkspaceTile(i, k)
		} else {
			a.ReleaseRemoteWorkspaceTile(i, k)
		}
	}
	return nil
}
