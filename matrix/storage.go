// SPDX-License-Identifier: MIT

// Package matrix: shared storage, constructors, ownership, and geometry.
//
// One storage value backs a matrix and every view derived from it: the
// tile catalog, coherence engine, slab pool, transport, distribution, and
// tile-size geometry all live here and are shared by reference.

package matrix

import (
	"fmt"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/pool"
	"github.com/tilemesh/tilemesh/tile"
)

// SizeFunc returns the extent of tile-row (or tile-column) k. The last
// tile is clamped to the matrix edge.
type SizeFunc func(k int) int

// Uniform returns a SizeFunc of constant block size nb.
func Uniform(nb int) SizeFunc { return func(int) int { return nb } }

// Option configures matrix construction.
type Option func(*config)

type config struct {
	mbOf, nbOf SizeFunc
	devices    int
}

// WithTileSizes supplies non-uniform tile size functions. Σ tileMb(i) must
// reach M and Σ tileNb(j) must reach N (the final tile is clamped).
func WithTileSizes(mbOf, nbOf SizeFunc) Option {
	return func(c *config) { c.mbOf, c.nbOf = mbOf, nbOf }
}

// WithDevices configures n accelerator memories for this matrix.
func WithDevices(n int) Option {
	if n < 0 {
		panic("matrix: WithDevices: n must be non-negative")
	}
	return func(c *config) { c.devices = n }
}

// storage is the shared backing of a matrix and all of its views.
type storage[T tile.Scalar] struct {
	m, n       int
	mt, nt     int
	mbOf, nbOf SizeFunc
	rowOff     []int // global element offset of tile-row i; len mt+1
	colOff     []int // global element offset of tile-col j; len nt+1

	p, q    int
	rank    int
	nranks  int
	tr      comm.Transport // nil in single-process mode
	devices int

	cat *catalog.Catalog[T]
	en  *catalog.Engine[T]
	pl  *pool.Pool[T]
}

// TileMb implements catalog.Geometry in storage coordinates.
func (st *storage[T]) TileMb(i int) int { return st.rowOff[i+1] - st.rowOff[i] }

// TileNb implements catalog.Geometry in storage coordinates.
func (st *storage[T]) TileNb(j int) int { return st.colOff[j+1] - st.colOff[j] }

// tileRank returns the owner of storage tile (si, sj) on the p×q grid.
func (st *storage[T]) tileRank(si, sj int) int {
	return si%st.p + (sj%st.q)*st.p
}

// tileDevice returns the device affinity of storage tile (si, sj); Host
// when the matrix has no devices.
func (st *storage[T]) tileDevice(si, sj int) tile.Memory {
	if st.devices == 0 {
		return tile.Host
	}
	return tile.Device((si/st.p + sj/st.q) % st.devices)
}

// Matrix is a logical view over shared tiled storage. The zero value is
// not usable; construct with New or FromScaLAPACK and derive views from
// there. Matrix values are cheap to copy.
type Matrix[T tile.Scalar] struct {
	st *storage[T]

	// View descriptor, in storage coordinates. rows/cols count tiles along
	// the storage axes; op decides which axis is logically first.
	rowStart, rowStep, rows int
	colStart, colStep, cols int
	op                      tile.Op

	kind Kind
	uplo tile.Uplo
	diag tile.Diag
	kl   int // band: sub-tile-diagonals
	ku   int // band: super-tile-diagonals
}

// New creates an M×N matrix with square nb tiles (unless WithTileSizes
// overrides) on a p×q grid over transport tr. tr may be nil for a
// single-process matrix (p = q = 1). No tiles are inserted.
// Complexity: O(mt + nt).
func New[T tile.Scalar](m, n, nb, p, q int, tr comm.Transport, opts ...Option) (Matrix[T], error) {
	if m <= 0 || n <= 0 || nb <= 0 || p <= 0 || q <= 0 {
		return Matrix[T]{}, ErrInvalidDim
	}
	if tr == nil && p*q != 1 {
		return Matrix[T]{}, fmt.Errorf("matrix: %d×%d grid needs a transport: %w", p, q, ErrInvalidDim)
	}
	if tr != nil && tr.Size() != p*q {
		return Matrix[T]{}, fmt.Errorf("matrix: grid %d×%d over %d ranks: %w", p, q, tr.Size(), ErrInvalidDim)
	}
	cfg := config{mbOf: Uniform(nb), nbOf: Uniform(nb)}
	for _, opt := range opts {
		opt(&cfg)
	}
	rowOff, mt, err := buildOffsets(m, cfg.mbOf)
	if err != nil {
		return Matrix[T]{}, err
	}
	colOff, nt, err := buildOffsets(n, cfg.nbOf)
	if err != nil {
		return Matrix[T]{}, err
	}
	st := &storage[T]{
		m: m, n: n, mt: mt, nt: nt,
		mbOf: cfg.mbOf, nbOf: cfg.nbOf,
		rowOff: rowOff, colOff: colOff,
		p: p, q: q, tr: tr, devices: cfg.devices,
		nranks: 1,
	}
	if tr != nil {
		st.rank, st.nranks = tr.Rank(), tr.Size()
	}
	st.cat = catalog.New[T]()
	st.pl = pool.New[T](pool.WithDevices(cfg.devices))
	st.en = catalog.NewEngine(st.cat, st.pl, st)
	return Matrix[T]{
		st:      st,
		rowStep: 1,
		rows:    mt,
		colStep: 1,
		cols:    nt,
		diag:    tile.NonUnit,
	}, nil
}

// buildOffsets accumulates tile sizes until total is covered, clamping the
// final tile to the edge.
func buildOffsets(total int, f SizeFunc) ([]int, int, error) {
	off := []int{0}
	sum := 0
	for k := 0; sum < total; k++ {
		s := f(k)
		if s <= 0 {
			return nil, 0, fmt.Errorf("matrix: tile %d has extent %d: %w", k, s, ErrTileSize)
		}
		if sum+s > total {
			s = total - sum
		}
		sum += s
		off = append(off, sum)
	}
	return off, len(off) - 1, nil
}

// FromScaLAPACK creates a matrix whose origin tiles point into the
// caller's local block-cyclic column-major buffer with local leading
// dimension lda. Tile sizes are uniform nb (ScaLAPACK layout). The buffer
// is never copied; the runtime mutates it only through coherence
// transitions and restores it at UpdateAllOrigin.
func FromScaLAPACK[T tile.Scalar](m, n, nb, p, q int, tr comm.Transport, data []T, lda int, opts ...Option) (Matrix[T], error) {
	a, err := New[T](m, n, nb, p, q, tr, opts...)
	if err != nil {
		return Matrix[T]{}, err
	}
	st := a.st
	for sj := 0; sj < st.nt; sj++ {
		for si := 0; si < st.mt; si++ {
			if st.tileRank(si, sj) != st.rank {
				continue
			}
			lr := (si / p) * nb
			lc := (sj / q) * nb
			off := lr + lc*lda
			t := tile.New(st.TileMb(si), st.TileNb(sj), data[off:], lda, tile.ColMajor, tile.Host)
			st.cat.InsertOrigin(si, sj, t)
		}
	}
	return a, nil
}

// InsertLocalTiles allocates runtime-owned origin tiles for every tile
// this process owns. Used when there is no pre-existing user buffer.
// Complexity: O(local tiles).
func (a Matrix[T]) InsertLocalTiles() {
	st := a.st
	for sj := 0; sj < st.nt; sj++ {
		for si := 0; si < st.mt; si++ {
			if st.tileRank(si, sj) != st.rank {
				continue
			}
			mb, nb := st.TileMb(si), st.TileNb(sj)
			t := tile.New(mb, nb, make([]T, mb*nb), mb, tile.ColMajor, tile.Host)
			st.cat.InsertOrigin(si, sj, t)
		}
	}
}

// EmptyLike creates a matrix with the same dimensions, tile sizes,
// distribution, and transport, but a fresh catalog with no tiles. Tiles
// materialise lazily as workspace on first write.
func (a Matrix[T]) EmptyLike() Matrix[T] {
	return a.emptyLikeSized(a.st.mbOf)
}

// EmptyLikeMb is EmptyLike with every tile-row forced to extent mb; used
// for triangular-factor matrices whose tiles are ib×nb.
func (a Matrix[T]) EmptyLikeMb(mb int) Matrix[T] {
	if mb <= 0 {
		panic("matrix: EmptyLikeMb: mb must be positive")
	}
	return a.emptyLikeSized(Uniform(mb))
}

func (a Matrix[T]) emptyLikeSized(mbOf SizeFunc) Matrix[T] {
	st := a.st
	rowOff := make([]int, st.mt+1)
	for i := 0; i < st.mt; i++ {
		rowOff[i+1] = rowOff[i] + min(mbOf(i), st.TileMb(i))
	}
	like := &storage[T]{
		m: rowOff[st.mt], n: st.n, mt: st.mt, nt: st.nt,
		mbOf: mbOf, nbOf: st.nbOf,
		rowOff: rowOff, colOff: st.colOff,
		p: st.p, q: st.q, rank: st.rank, nranks: st.nranks,
		tr: st.tr, devices: st.devices,
	}
	like.cat = catalog.New[T]()
	like.pl = pool.New[T](pool.WithDevices(st.devices))
	like.en = catalog.NewEngine(like.cat, like.pl, like)
	out := a
	out.st = like
	return out
}
