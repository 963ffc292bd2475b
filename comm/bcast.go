// Package comm: tile collectives over broadcast and reduction trees.

package comm

import (
	"context"
	"fmt"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/tile"
)

// DefaultRadix is the tree fan-out used when no option overrides it.
const DefaultRadix = 2

// BcastItem names one tile to deliver: the root rank that owns it and the
// set of destination ranks. Tag must be unique among collectives active
// concurrently on overlapping rank sets (see TagSpace).
type BcastItem struct {
	Row, Col int
	Root     int
	Ranks    []int
	Tag      int
}

// Combine accumulates src into dst during a reduction tree.
type Combine[T tile.Scalar] func(dst, src tile.Tile[T]) error

// Bcaster runs tile collectives for one matrix: it couples a Transport
// with the matrix's coherence engine so that sends read through coherence
// and completed receives install Shared instances.
type Bcaster[T tile.Scalar] struct {
	tr    Transport
	en    *catalog.Engine[T]
	radix int
}

// NewBcaster couples a transport and a coherence engine.
func NewBcaster[T tile.Scalar](tr Transport, en *catalog.Engine[T]) *Bcaster[T] {
	return &Bcaster[T]{tr: tr, en: en, radix: DefaultRadix}
}

// WithRadix sets the tree fan-out. radix must be ≥ 2.
func (b *Bcaster[T]) WithRadix(radix int) *Bcaster[T] {
	if radix < 2 {
		panic("comm: Bcaster.WithRadix: radix must be ≥ 2")
	}
	b.radix = radix
	return b
}

// ListBcast delivers every item's tile to every rank in its set. Items run
// one after another in list order, each over its own deterministic tree;
// items that share a rank set are not grouped. Receivers forward before
// returning; on completion every destination holds the tile Shared, in the
// requested layout. Ranks not named by an item skip it, so all ranks may
// call ListBcast with the same list (SPMD).
//
// Complexity per item: O(log(set size)) messages on the critical path.
func (b *Bcaster[T]) ListBcast(ctx context.Context, items []BcastItem, layout tile.Layout) error {
	for _, it := range items {
		if err := b.bcastOne(ctx, it, layout); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bcaster[T]) bcastOne(ctx context.Context, it BcastItem, layout tile.Layout) error {
	set := NewSet(it.Root, it.Ranks)
	me := set.Index(b.tr.Rank())
	if me < 0 || set.Size() == 1 {
		return nil
	}
	recvFrom, sendTo := CubeBcastPattern(set.Size(), me, b.radix)

	mb := b.en.Geom().TileMb(it.Row)
	nb := b.en.Geom().TileNb(it.Col)
	buf := make([]T, mb*nb)

	if me == 0 {
		// Root: read through coherence (materialises a host copy if the
		// live one is on a device) and pack in the requested layout.
		t, err := b.en.Acquire(it.Row, it.Col, tile.Host, catalog.Read, layout)
		if err != nil {
			return err
		}
		t.Pack(buf)
	} else {
		if err := b.tr.Recv(ctx, set.Rank(recvFrom[0]), it.Tag, buf); err != nil {
			return err
		}
		if _, err := b.en.ReceiveInto(it.Row, it.Col, tile.Host, layout, buf, layout); err != nil {
			return err
		}
	}
	for _, child := range sendTo {
		if err := b.tr.Send(ctx, set.Rank(child), it.Tag, buf); err != nil {
			return err
		}
	}
	return nil
}

// ListReduce runs a reduction tree per item: children's partials are
// combined into each participant's local instance with combine, ascending
// to the root, which keeps the accumulated tile Modified. Non-roots end
// with their partial consumed (sent upward); their instances are left for
// workspace release.
func (b *Bcaster[T]) ListReduce(ctx context.Context, items []BcastItem, layout tile.Layout, combine Combine[T]) error {
	for _, it := range items {
		if err := b.reduceOne(ctx, it, layout, combine); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bcaster[T]) reduceOne(ctx context.Context, it BcastItem, layout tile.Layout, combine Combine[T]) error {
	set := NewSet(it.Root, it.Ranks)
	me := set.Index(b.tr.Rank())
	if me < 0 || set.Size() == 1 {
		return nil
	}
	recvFrom, sendTo := CubeReducePattern(set.Size(), me, b.radix)

	mb := b.en.Geom().TileMb(it.Row)
	nb := b.en.Geom().TileNb(it.Col)

	local, err := b.en.Acquire(it.Row, it.Col, tile.Host, catalog.ReadWrite, layout)
	if err != nil {
		return err
	}
	if len(recvFrom) > 0 {
		buf := make([]T, mb*nb)
		stride := mb
		if layout == tile.RowMajor {
			stride = nb
		}
		scratch := tile.New(mb, nb, buf, stride, layout, tile.Host)
		for _, child := range recvFrom {
			if err := b.tr.Recv(ctx, set.Rank(child), it.Tag, buf); err != nil {
				return err
			}
			if err := combine(local, scratch); err != nil {
				return fmt.Errorf("comm: reduce combine: %w", err)
			}
		}
	}
	for _, parent := range sendTo {
		buf := make([]T, mb*nb)
		local.Pack(buf)
		if err := b.tr.Send(ctx, set.Rank(parent), it.Tag, buf); err != nil {
			return err
		}
	}
	return nil
}

// Gatherv collects variable-length buffers on root: rank r's send lands in
// recv[r]. recv is only read on the root; tag disambiguates concurrent
// gathers on overlapping rank sets.
func Gatherv[T tile.Scalar](ctx context.Context, tr Transport, root, tag int, send []T, recv [][]T) error {
	if tr.Rank() != root {
		return tr.Send(ctx, root, tag, send)
	}
	for r := 0; r < tr.Size(); r++ {
		if r == root {
			copy(recv[r], send)
			continue
		}
		if err := tr.Recv(ctx, r, tag, recv[r]); err != nil {
			return err
		}
	}
	return nil
}

// Scatterv is the dual of Gatherv: root's send[r] lands in each rank's
// recv.
func Scatterv[T tile.Scalar](ctx context.Context, tr Transport, root, tag int, send [][]T, recv []T) error {
	if tr.Rank() != root {
		return tr.Recv(ctx, root, tag, recv)
	}
	for r := 0; r < tr.Size(); r++ {
		if r == root {
			copy(recv, send[r])
			continue
		}
		if err := tr.Send(ctx, r, tag, send[r]); err != nil {
			return err
		}
	}
	return nil
}
