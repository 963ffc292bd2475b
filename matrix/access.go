// SPDX-License-Identifier: MIT

// Package matrix: tile access through coherence, origin management, and
// per-matrix collectives.

package matrix

import (
	"context"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/tile"
)

// Rank returns this process's rank on the matrix's grid.
func (a Matrix[T]) Rank() int { return a.st.rank }

// Grid returns the process grid extents (p, q).
func (a Matrix[T]) Grid() (p, q int) { return a.st.p, a.st.q }

// Devices returns the number of accelerator memories of this matrix.
func (a Matrix[T]) Devices() int { return a.st.devices }

// Transport returns the matrix's message layer; nil in single-process mode.
func (a Matrix[T]) Transport() comm.Transport { return a.st.tr }

// Engine returns the coherence engine shared by every view of this matrix.
func (a Matrix[T]) Engine() *catalog.Engine[T] { return a.st.en }

// Catalog returns the shared tile catalog.
func (a Matrix[T]) Catalog() *catalog.Catalog[T] { return a.st.cat }

// TileRank returns the rank owning logical tile (i, j).
func (a Matrix[T]) TileRank(i, j int) int {
	si, sj := a.mapTile(i, j)
	return a.st.tileRank(si, sj)
}

// TileIsLocal reports whether logical tile (i, j) is owned here.
func (a Matrix[T]) TileIsLocal(i, j int) bool {
	return a.TileRank(i, j) == a.st.rank
}

// TileDevice returns the device affinity of logical tile (i, j).
func (a Matrix[T]) TileDevice(i, j int) tile.Memory {
	si, sj := a.mapTile(i, j)
	return a.st.tileDevice(si, sj)
}

// Tile realises logical tile (i, j) at mem in the requested mode and
// layout through the coherence engine, and returns it with the view's op
// applied. Diagonal tiles of triangular views carry the view's uplo and
// diag restriction.
func (a Matrix[T]) Tile(i, j int, mem tile.Memory, mode catalog.AccessMode, layout tile.Layout) (tile.Tile[T], error) {
	si, sj := a.mapTile(i, j)
	t, err := a.st.en.Acquire(si, sj, mem, mode, layout)
	if err != nil {
		return tile.Tile[T]{}, err
	}
	if a.kind == TriangularKind && i == j {
		t = t.WithUplo(a.uplo, a.diag)
	}
	switch a.op {
	case tile.Trans:
		t = t.Transpose()
	case tile.ConjTrans:
		t = t.ConjTranspose()
	}
	return t, nil
}

// TileGetAllForWriting brings every local tile of the view to mem in
// ReadWrite mode, acquiring the tiles one after another; the transfers are
// not batched.
func (a Matrix[T]) TileGetAllForWriting(mem tile.Memory, layout tile.Layout) error {
	for j := 0; j < a.Nt(); j++ {
		for i := 0; i < a.Mt(); i++ {
			if !a.TileIsLocal(i, j) {
				continue
			}
			if _, err := a.Tile(i, j, mem, catalog.ReadWrite, layout); err != nil {
				return err
			}
		}
	}
	return nil
}

// TileGetAllForWritingOnDevices is the device-affinity variant: every
// local tile goes to its own device.
func (a Matrix[T]) TileGetAllForWritingOnDevices(layout tile.Layout) error {
	for j := 0; j < a.Nt(); j++ {
		for i := 0; i < a.Mt(); i++ {
			if !a.TileIsLocal(i, j) {
				continue
			}
			if _, err := a.Tile(i, j, a.TileDevice(i, j), catalog.ReadWrite, layout); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateOrigin forces the origin of logical tile (i, j) coherent.
func (a Matrix[T]) UpdateOrigin(i, j int) error {
	si, sj := a.mapTile(i, j)
	return a.st.en.UpdateOrigin(si, sj)
}

// UpdateAllOrigin restores every locally-owned origin at algorithm exit.
func (a Matrix[T]) UpdateAllOrigin() error {
	return a.st.en.UpdateAllOrigin()
}

// ReleaseLocalWorkspaceTile reclaims non-origin instances of a local tile.
func (a Matrix[T]) ReleaseLocalWorkspaceTile(i, j int) {
	si, sj := a.mapTile(i, j)
	a.st.en.ReleaseLocalWorkspace(si, sj)
}

// ReleaseRemoteWorkspaceTile discards received instances of a remote tile.
func (a Matrix[T]) ReleaseRemoteWorkspaceTile(i, j int) {
	si, sj := a.mapTile(i, j)
	a.st.en.ReleaseRemoteWorkspace(si, sj)
}

// ReleaseWorkspace reclaims every workspace instance of the matrix and
// shrinks the pool.
func (a Matrix[T]) ReleaseWorkspace() {
	for _, ix := range a.st.cat.Indices() {
		a.st.en.ReleaseLocalWorkspace(ix.Row, ix.Col)
	}
	_ = a.st.pl.Shrink(tile.Host)
	for d := 0; d < a.st.devices; d++ {
		_ = a.st.pl.Shrink(tile.Device(d))
	}
}

// RankSet returns the sorted set of ranks owning tiles of this view.
// Complexity: O(Mt×Nt).
func (a Matrix[T]) RankSet() []int {
	seen := make(map[int]bool)
	for j := 0; j < a.Nt(); j++ {
		for i := 0; i < a.Mt(); i++ {
			seen[a.TileRank(i, j)] = true
		}
	}
	out := make([]int, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sortInts(out)
	return out
}

func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for k := i; k > 0 && a[k] < a[k-1]; k-- {
			a[k], a[k-1] = a[k-1], a[k]
		}
	}
}

// BcastSpec names one tile to broadcast and the views whose owners must
// receive it, mirroring the shape of driver bcast lists.
type BcastSpec[T tile.Scalar] struct {
	I, J int
	To   []Matrix[T]
	Tag  int
}

// ListBcast delivers each spec's tile to every rank owning a tile of the
// destination views. Single-process matrices return immediately.
func (a Matrix[T]) ListBcast(ctx context.Context, specs []BcastSpec[T], layout tile.Layout) error {
	if a.st.tr == nil {
		return nil
	}
	b := comm.NewBcaster(a.st.tr, a.st.en)
	items := make([]comm.BcastItem, 0, len(specs))
	for _, sp := range specs {
		si, sj := a.mapTile(sp.I, sp.J)
		ranks := make(map[int]bool)
		for _, v := range sp.To {
			for _, r := range v.RankSet() {
				ranks[r] = true
			}
		}
		dsts := make([]int, 0, len(ranks))
		for r := range ranks {
			dsts = append(dsts, r)
		}
		sortInts(dsts)
		items = append(items, comm.BcastItem{
			Row: si, Col: sj,
			Root:  a.st.tileRank(si, sj),
			Ranks: dsts,
			Tag:   sp.Tag,
		})
	}
	return b.ListBcast(ctx, items, layout)
}

// ListReduce runs a reduction tree per spec over the ranks of the
// destination views; the owner of the tile is the root and ends Modified.
func (a Matrix[T]) ListReduce(ctx context.Context, specs []BcastSpec[T], layout tile.Layout, combine comm.Combine[T]) error {
	if a.st.tr == nil {
		return nil
	}
	b := comm.NewBcaster(a.st.tr, a.st.en)
	for _, sp := range specs {
		si, sj := a.mapTile(sp.I, sp.J)
		ranks := make(map[int]bool)
		for _, v := range sp.To {
			for _, r := range v.RankSet() {
				ranks[r] = true
			}
		}
		dsts := make([]int, 0, len(ranks))
		for r := range ranks {
			dsts = append(dsts, r)
		}
		sortInts(dsts)
		item := comm.BcastItem{
			Row: si, Col: sj,
			Root:  a.st.tileRank(si, sj),
			Ranks: dsts,
			Tag:   sp.Tag,
		}
		if err := b.ListReduce(ctx, []comm.BcastItem{item}, layout, combine); err != nil {
			return err
		}
	}
	return nil
}
