// Package catalog: the coherence engine.
//
// Every transition is atomic under the tile's entry lock. No kernel work,
// pool shrink, or messaging happens under that lock; a remote fetch happens
// before the transition commits, through the RemoteFetcher hook.

package catalog

import (
	"fmt"
	"sort"

	"github.com/tilemesh/tilemesh/pool"
	"github.com/tilemesh/tilemesh/tile"
)

// Geometry supplies tile extents for workspace allocation.
type Geometry interface {
	// TileMb returns the row count of tiles in tile-row i.
	TileMb(i int) int
	// TileNb returns the column count of tiles in tile-column j.
	TileNb(j int) int
}

// RemoteFetcher obtains a tile from a remote process, used as the donor of
// last resort. The returned tile must reside at Host; slab is the pool slab
// backing it (owned by the engine afterwards).
type RemoteFetcher[T tile.Scalar] interface {
	Fetch(i, j int, layout tile.Layout) (t tile.Tile[T], slab []T, err error)
}

// Engine realises tiles at requested locations in requested states.
//
// One engine serves one catalog; matrices sharing a catalog (views) share
// the engine.
type Engine[T tile.Scalar] struct {
	cat    *Catalog[T]
	pool   *pool.Pool[T]
	geom   Geometry
	remote RemoteFetcher[T] // optional donor of last resort
}

// NewEngine binds a coherence engine to a catalog, a pool, and a geometry.
func NewEngine[T tile.Scalar](cat *Catalog[T], p *pool.Pool[T], geom Geometry) *Engine[T] {
	return &Engine[T]{cat: cat, pool: p, geom: geom}
}

// Catalog returns the catalog this engine serves.
func (en *Engine[T]) Catalog() *Catalog[T] { return en.cat }

// Pool returns the slab pool this engine allocates workspace from.
func (en *Engine[T]) Pool() *pool.Pool[T] { return en.pool }

// Geom returns the geometry the engine allocates workspace with.
func (en *Engine[T]) Geom() Geometry { return en.geom }

// SetRemote installs the remote donor of last resort.
func (en *Engine[T]) SetRemote(f RemoteFetcher[T]) { en.remote = f }

// Acquire produces tile (i, j) at mem in the requested access mode and
// layout, performing whatever coherence transition is required:
//
//   - Read on a readable instance: no data movement (layout conversion only).
//   - Read on Invalid/absent: copy from a donor; both end Shared.
//   - Write/ReadWrite: existing valid content is moved here, every other
//     Shared or Modified instance is invalidated, and the local instance
//     ends Modified. Write with no valid copy anywhere creates a fresh
//     workspace instance.
//
// Complexity: O(1) plus at most one tile copy.
func (en *Engine[T]) Acquire(i, j int, mem tile.Memory, mode AccessMode, layout tile.Layout) (tile.Tile[T], error) {
	e := en.cat.entry(Index{i, j}, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	inst := e.instances[mem]
	switch mode {
	case Read:
		if inst == nil || !inst.State.Readable() {
			donor := en.pickDonor(e, mem)
			if donor == nil {
				if err := en.fetchRemote(e, i, j, mem, layout); err != nil {
					return tile.Tile[T]{}, err
				}
			} else {
				var err error
				if inst, err = en.copyIn(e, i, j, mem, donor, layout); err != nil {
					return tile.Tile[T]{}, err
				}
				// Reading from the exclusive owner leaves both copies Shared.
				if donor.State == Modified {
					donor.State = Shared
				}
			}
			inst = e.instances[mem]
		}
		if err := en.convertLayout(inst, i, j, layout); err != nil {
			return tile.Tile[T]{}, err
		}
		return inst.Tile, nil

	case Write, ReadWrite:
		if inst == nil || !inst.State.Readable() {
			donor := en.pickDonor(e, mem)
			switch {
			case donor != nil:
				var err error
				if inst, err = en.copyIn(e, i, j, mem, donor, layout); err != nil {
					return tile.Tile[T]{}, err
				}
			case mode == Write:
				// No valid copy anywhere: a pure write may start from a
				// fresh workspace instance.
				var err error
				if inst, err = en.insertWorkspace(e, i, j, mem, layout); err != nil {
					return tile.Tile[T]{}, err
				}
			default:
				if err := en.fetchRemote(e, i, j, mem, layout); err != nil {
					return tile.Tile[T]{}, err
				}
				inst = e.instances[mem]
			}
		}
		if err := en.convertLayout(inst, i, j, layout); err != nil {
			return tile.Tile[T]{}, err
		}
		// Invalidate every other Shared or Modified instance; OnHold stays
		// pinned (stale reads are the holder's contract).
		for loc, other := range e.instances {
			if loc == mem || other.State == OnHold || other.State == Invalid {
				continue
			}
			other.State = Invalid
		}
		inst.State = Modified
		return inst.Tile, nil
	}
	return tile.Tile[T]{}, fmt.Errorf("catalog: unknown access mode %d: %w", mode, ErrInvariant)
}

// pickDonor selects a valid instance to copy from: host first, then devices
// in ascending index order, skipping the destination.
func (en *Engine[T]) pickDonor(e *Entry[T], dst tile.Memory) *Instance[T] {
	if dst != tile.Host {
		if inst := e.instances[tile.Host]; inst != nil && inst.State.Readable() {
			return inst
		}
	}
	locs := e.locations()
	sort.Slice(locs, func(a, b int) bool { return locs[a] < locs[b] })
	for _, loc := range locs {
		if loc == dst || loc == tile.Host {
			continue
		}
		if inst := e.instances[loc]; inst.State.Readable() {
			return inst
		}
	}
	return nil
}

// allocTile builds a pool-backed tile of the canonical extents for (i, j).
func (en *Engine[T]) allocTile(i, j int, mem tile.Memory, layout tile.Layout) (tile.Tile[T], []T, error) {
	mb, nb := en.geom.TileMb(i), en.geom.TileNb(j)
	slab, err := en.pool.Acquire(mem, mb*nb)
	if err != nil {
		return tile.Tile[T]{}, nil, err
	}
	stride := mb
	if layout == tile.RowMajor {
		stride = nb
	}
	return tile.New(mb, nb, slab, stride, layout, mem), slab, nil
}

// insertWorkspace creates a fresh (zeroed) workspace instance at mem.
// Caller holds e.mu. The new instance starts Invalid; callers set state.
func (en *Engine[T]) insertWorkspace(e *Entry[T], i, j int, mem tile.Memory, layout tile.Layout) (*Instance[T], error) {
	t, slab, err := en.allocTile(i, j, mem, layout)
	if err != nil {
		return nil, err
	}
	inst := &Instance[T]{Tile: t, State: Invalid, Life: WorkspaceLife, slab: slab}
	e.instances[mem] = inst
	return inst, nil
}

// copyIn materialises (i, j) at mem by copying from donor, converting
// layout on the way. Reuses an existing Invalid instance when its layout
// matches; otherwise allocates. Caller holds e.mu. The result is Shared.
func (en *Engine[T]) copyIn(e *Entry[T], i, j int, mem tile.Memory, donor *Instance[T], layout tile.Layout) (*Instance[T], error) {
	inst := e.instances[mem]
	if inst == nil || (inst.Life == WorkspaceLife && inst.Tile.Layout() != layout) {
		if inst != nil && inst.slab != nil {
			_ = en.pool.Release(mem, inst.slab)
		}
		var err error
		if inst, err = en.insertWorkspace(e, i, j, mem, layout); err != nil {
			return nil, err
		}
	}
	if err := donor.Tile.CopyTo(inst.Tile); err != nil {
		return nil, fmt.Errorf("catalog: donor copy: %w", err)
	}
	inst.State = Shared
	return inst, nil
}

// fetchRemote pulls (i, j) from a remote owner into Host and, when the
// request was for another memory, lets the caller continue from there.
// Caller holds e.mu.
func (en *Engine[T]) fetchRemote(e *Entry[T], i, j int, mem tile.Memory, layout tile.Layout) error {
	if en.remote == nil {
		return fmt.Errorf("catalog: tile (%d,%d): %w", i, j, ErrNoDonor)
	}
	t, slab, err := en.remote.Fetch(i, j, layout)
	if err != nil {
		return err
	}
	host := &Instance[T]{Tile: t, State: Shared, Life: WorkspaceLife, slab: slab}
	e.instances[tile.Host] = host
	if mem == tile.Host {
		return nil
	}
	_, err = en.copyIn(e, i, j, mem, host, layout)
	return err
}

// ReceiveInto installs message content as the instance of (i, j) at mem in
// state Shared. A completed receive is a coherence transition: the
// communication layer hands the packed payload here instead of touching
// instances itself. buf is a packed image (tile.Pack) in srcLayout.
func (en *Engine[T]) ReceiveInto(i, j int, mem tile.Memory, layout tile.Layout, buf []T, srcLayout tile.Layout) (tile.Tile[T], error) {
	e := en.cat.entry(Index{i, j}, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[mem]
	if inst == nil {
		var err error
		if inst, err = en.insertWorkspace(e, i, j, mem, layout); err != nil {
			return tile.Tile[T]{}, err
		}
	} else if err := en.convertLayout(inst, i, j, layout); err != nil {
		return tile.Tile[T]{}, err
	}
	inst.Tile.Unpack(buf, srcLayout)
	inst.State = Shared
	return inst.Tile, nil
}

// PackForSend snapshots the instance of (i, j) at mem into a packed buffer
// for messaging. The sender's state is unchanged. A send from an instance
// that is neither Modified, Shared, nor OnHold is an invariant violation.
func (en *Engine[T]) PackForSend(i, j int, mem tile.Memory, buf []T) (tile.Layout, error) {
	e := en.cat.entry(Index{i, j}, false)
	if e == nil {
		return tile.ColMajor, fmt.Errorf("catalog: send of absent tile (%d,%d): %w", i, j, ErrInvariant)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[mem]
	if inst == nil || !inst.State.Readable() {
		return tile.ColMajor, fmt.Errorf("catalog: send of invalid tile (%d,%d): %w", i, j, ErrInvariant)
	}
	inst.Tile.Pack(buf)
	return inst.Tile.Layout(), nil
}

// convertLayout rewrites inst's storage into the requested layout.
//
// Workspace instances convert through a fresh slab. An origin instance
// (contiguous or not) converts into an extended pool slab and keeps the user
// tile aside; UpdateOrigin copies the content back and drops the extension.
// Caller holds e.mu.
func (en *Engine[T]) convertLayout(inst *Instance[T], i, j int, layout tile.Layout) error {
	if inst.Tile.Layout() == layout {
		return nil
	}
	mem := inst.Tile.Memory()
	t, slab, err := en.allocTile(i, j, mem, layout)
	if err != nil {
		return err
	}
	if err := inst.Tile.CopyTo(t); err != nil {
		_ = en.pool.Release(mem, slab)
		return fmt.Errorf("catalog: layout conversion: %w", err)
	}
	if inst.Life == OriginLife && !inst.extended {
		// Keep the user-visible tile aside so origin fidelity survives.
		inst.user = inst.Tile
		inst.extended = true
	} else if inst.slab != nil {
		_ = en.pool.Release(mem, inst.slab)
	}
	inst.Tile, inst.slab = t, slab
	return nil
}
