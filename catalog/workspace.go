// Package catalog: origin preservation and workspace reclamation.

package catalog

import (
	"errors"
	"fmt"

	"github.com/tilemesh/tilemesh/tile"
)

// UpdateOrigin forces the origin instance of (i, j) back to Modified,
// pulling content from wherever the live copy is, so user-visible storage
// is coherent. Any layout extension is collapsed back into user storage.
//
// Returns ErrNotFound when this process holds no origin for (i, j).
func (en *Engine[T]) UpdateOrigin(i, j int) error {
	e := en.cat.entry(Index{i, j}, false)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var origin *Instance[T]
	for _, inst := range e.instances {
		if inst.Life == OriginLife {
			origin = inst
			break
		}
	}
	if origin == nil {
		return ErrNotFound
	}

	if !origin.State.Readable() {
		donor := en.pickDonor(e, origin.Tile.Memory())
		if donor == nil {
			return fmt.Errorf("catalog: origin (%d,%d) has no live copy: %w", i, j, ErrInvariant)
		}
		if err := donor.Tile.CopyTo(origin.Tile); err != nil {
			return fmt.Errorf("catalog: origin restore: %w", err)
		}
	}
	if origin.extended {
		// Collapse the extension: content lives in the extended slab,
		// user storage must end up authoritative.
		if err := origin.Tile.CopyTo(origin.user); err != nil {
			return fmt.Errorf("catalog: origin collapse: %w", err)
		}
		_ = en.pool.Release(origin.user.Memory(), origin.slab)
		origin.Tile, origin.slab, origin.extended = origin.user, nil, false
		origin.user = tile.Tile[T]{}
	}
	origin.State = Modified
	for _, inst := range e.instances {
		if inst == origin || inst.State == OnHold || inst.State == Invalid {
			continue
		}
		inst.State = Invalid
	}
	return nil
}

// UpdateAllOrigin walks every tile in the catalog and updates origins that
// this process owns; tiles with no local origin are skipped.
func (en *Engine[T]) UpdateAllOrigin() error {
	for _, ix := range en.cat.Indices() {
		if err := en.UpdateOrigin(ix.Row, ix.Col); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// ReleaseLocalWorkspace erases every non-origin instance of (i, j) that is
// Shared or Invalid, returning slabs to the pool. Modified, OnHold, and
// held instances are left alone.
func (en *Engine[T]) ReleaseLocalWorkspace(i, j int) {
	en.releaseWorkspace(i, j, false)
}

// ReleaseRemoteWorkspace discards the instances of (i, j) on a process
// that does not own its origin: everything received or accumulated here is
// disposable, including Modified copies.
func (en *Engine[T]) ReleaseRemoteWorkspace(i, j int) {
	en.releaseWorkspace(i, j, true)
}

// releaseWorkspace reclaims non-origin instances; dropModified also
// discards Modified instances (remote-workspace semantics).
func (en *Engine[T]) releaseWorkspace(i, j int, dropModified bool) {
	e := en.cat.entry(Index{i, j}, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for loc, inst := range e.instances {
		if inst.Life == OriginLife || inst.holds > 0 || inst.State == OnHold {
			continue
		}
		if inst.State == Modified && !dropModified {
			continue
		}
		delete(e.instances, loc)
		if inst.slab != nil {
			_ = en.pool.Release(loc, inst.slab)
		}
	}
}

// Validate checks the global coherence invariants for every tile:
// at most one Modified instance; Modified excludes Shared; all Shared and
// OnHold instances bit-identical. Used by tests and stress harnesses at
// quiescent points.
//
// Complexity: O(tiles × instances × tile elements).
func (c *Catalog[T]) Validate() error {
	for _, ix := range c.Indices() {
		e := c.entry(ix, false)
		if e == nil {
			continue
		}
		e.mu.Lock()
		err := validateEntry(ix, e)
		e.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// validateEntry checks one tile's instances under e.mu.
func validateEntry[T tile.Scalar](ix Index, e *Entry[T]) error {
	var modified, ref *Instance[T]
	for _, inst := range e.instances {
		switch inst.State {
		case Modified:
			if modified != nil {
				return fmt.Errorf("catalog: tile (%d,%d): two Modified instances: %w", ix.Row, ix.Col, ErrInvariant)
			}
			modified = inst
		case Shared, OnHold:
			if ref == nil {
				ref = inst
			}
		}
	}
	if modified != nil {
		for _, inst := range e.instances {
			if inst != modified && inst.State == Shared {
				return fmt.Errorf("catalog: tile (%d,%d): Shared coexists with Modified: %w", ix.Row, ix.Col, ErrInvariant)
			}
		}
		return nil
	}
	if ref == nil {
		return nil
	}
	for _, inst := range e.instances {
		if inst == ref || !inst.State.Readable() {
			continue
		}
		if !sameContent(ref.Tile, inst.Tile) {
			return fmt.Errorf("catalog: tile (%d,%d): Shared instances differ: %w", ix.Row, ix.Col, ErrInvariant)
		}
	}
	return nil
}

// sameContent compares two instances element-wise through their logical
// indices, so differing layouts compare correctly.
func sameContent[T tile.Scalar](a, b tile.Tile[T]) bool {
	if a.Mb() != b.Mb() || a.Nb() != b.Nb() {
		return false
	}
	for j := 0; j < a.Nb(); j++ {
		for i := 0; i < a.Mb(); i++ {
			if a.At(i, j) != b.At(i, j) {
				return false
			}
		}
	}
	return true
}
