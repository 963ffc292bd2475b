// Package catalog: the concurrent (i, j) → entry mapping.
//
// Locking discipline: Catalog.mu guards the entries map only; Entry.mu
// guards the instances of one tile. Take Entry.mu only after releasing
// Catalog.mu (lookup returns the entry pointer, then locks it), never the
// other way round.

package catalog

import (
	"errors"
	"sync"

	"github.com/tilemesh/tilemesh/tile"
)

// Sentinel errors for catalog and coherence operations.
var (
	// ErrNotFound indicates no instance of the tile exists where required.
	ErrNotFound = errors.New("catalog: tile instance not found")

	// ErrNoDonor indicates a read found no valid instance anywhere.
	ErrNoDonor = errors.New("catalog: no valid instance to read from")

	// ErrInvariant indicates a coherence invariant violation. Always a defect.
	ErrInvariant = errors.New("catalog: coherence invariant violated")

	// ErrOriginErase indicates an attempt to erase an origin instance.
	ErrOriginErase = errors.New("catalog: cannot erase origin instance")

	// ErrHeld indicates an erase of an instance with outstanding holds.
	ErrHeld = errors.New("catalog: instance has outstanding holds")
)

// Index identifies one tile of a matrix.
type Index struct {
	Row, Col int
}

// Instance is one copy of a tile at one memory location.
type Instance[T tile.Scalar] struct {
	Tile  tile.Tile[T]
	State State
	Life  Life

	slab  []T // pool slab backing a runtime-created instance; nil for plain origin
	holds int // in-flight pins against eviction

	// An origin whose user storage could not serve a layout conversion is
	// "extended": Tile points into a pool slab and user keeps the
	// user-visible tile until UpdateOrigin collapses the extension.
	user     tile.Tile[T]
	extended bool
}

// Entry lists all known instances of one tile.
// mu guards instances and every Instance reached through it.
type Entry[T tile.Scalar] struct {
	mu        sync.Mutex
	instances map[tile.Memory]*Instance[T]
}

// Catalog is the per-matrix instance registry. All methods are safe for
// concurrent use.
type Catalog[T tile.Scalar] struct {
	mu      sync.RWMutex // guards entries map (read-mostly, grows monotonically)
	entries map[Index]*Entry[T]
}

// New creates an empty catalog.
func New[T tile.Scalar]() *Catalog[T] {
	return &Catalog[T]{entries: make(map[Index]*Entry[T])}
}

// entry returns the entry for ix, creating it when create is set.
func (c *Catalog[T]) entry(ix Index, create bool) *Entry[T] {
	c.mu.RLock()
	e := c.entries[ix]
	c.mu.RUnlock()
	if e != nil || !create {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e = c.entries[ix]; e == nil {
		e = &Entry[T]{instances: make(map[tile.Memory]*Instance[T])}
		c.entries[ix] = e
	}
	return e
}

// InsertOrigin installs t as the origin instance of tile (i, j) at the
// tile's own memory location, in state Shared.
// Complexity: O(1).
func (c *Catalog[T]) InsertOrigin(i, j int, t tile.Tile[T]) {
	e := c.entry(Index{i, j}, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instances[t.Memory()] = &Instance[T]{Tile: t.AsOrigin(), State: Shared, Life: OriginLife}
}

// Get returns a snapshot of the instance of (i, j) at mem.
// Complexity: O(1).
func (c *Catalog[T]) Get(i, j int, mem tile.Memory) (Instance[T], error) {
	e := c.entry(Index{i, j}, false)
	if e == nil {
		return Instance[T]{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[mem]
	if inst == nil {
		return Instance[T]{}, ErrNotFound
	}
	return *inst, nil
}

// StateOf returns the coherence state of (i, j) at mem; Invalid when the
// instance does not exist.
// Complexity: O(1).
func (c *Catalog[T]) StateOf(i, j int, mem tile.Memory) State {
	inst, err := c.Get(i, j, mem)
	if err != nil {
		return Invalid
	}
	return inst.State
}

// SetState forces the state of (i, j) at mem. Intended for the coherence
// engine and the communication layer; algorithm code goes through Acquire.
func (c *Catalog[T]) SetState(i, j int, mem tile.Memory, s State) error {
	e := c.entry(Index{i, j}, false)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[mem]
	if inst == nil {
		return ErrNotFound
	}
	inst.State = s
	return nil
}

// Hold pins the instance of (i, j) at mem against eviction, moving a
// Shared instance to OnHold.
func (c *Catalog[T]) Hold(i, j int, mem tile.Memory) error {
	e := c.entry(Index{i, j}, false)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[mem]
	if inst == nil {
		return ErrNotFound
	}
	inst.holds++
	if inst.State == Shared {
		inst.State = OnHold
	}
	return nil
}

// Unhold releases one pin taken by Hold; the last release moves OnHold
// back to Shared.
func (c *Catalog[T]) Unhold(i, j int, mem tile.Memory) error {
	e := c.entry(Index{i, j}, false)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[mem]
	if inst == nil {
		return ErrNotFound
	}
	if inst.holds > 0 {
		inst.holds--
	}
	if inst.holds == 0 && inst.State == OnHold {
		inst.State = Shared
	}
	return nil
}

// Erase removes a non-origin instance. Legal only for Invalid or OnHold-free
// instances with no outstanding holds; the backing slab, if any, is
// returned to the caller for pool release.
func (c *Catalog[T]) Erase(i, j int, mem tile.Memory) ([]T, error) {
	e := c.entry(Index{i, j}, false)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[mem]
	if inst == nil {
		return nil, ErrNotFound
	}
	if inst.Life == OriginLife {
		return nil, ErrOriginErase
	}
	if inst.holds > 0 || inst.State == OnHold {
		return nil, ErrHeld
	}
	delete(e.instances, mem)
	return inst.slab, nil
}

// Indices returns a snapshot of every tile index present in the catalog.
func (c *Catalog[T]) Indices() []Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Index, 0, len(c.entries))
	for ix := range c.entries {
		out = append(out, ix)
	}
	return out
}

// locations returns the memory locations holding instances of e, under e.mu.
func (e *Entry[T]) locations() []tile.Memory {
	out := make([]tile.Memory, 0, len(e.instances))
	for mem := range e.instances {
		out = append(out, mem)
	}
	return out
}
