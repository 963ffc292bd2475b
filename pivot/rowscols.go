// Package pivot: symmetric row/column permutation on a Hermitian
// lower-stored matrix.
//
// Swapping global row/column i1 with r2 = offset(t2)+i2 decomposes into
// fragment swaps that never leave the stored lower triangle: the
// strictly-left rows, the column-strip/row-strip pair (conjugated, since
// stored and needed orientations differ), the diagonal elements, the
// below-r2 column pairs, and finally the conjugation of the crossing
// element A[r2, i1].

package pivot

import (
	"context"
	"fmt"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/tile"
)

// PermuteRowsCols applies the symmetric permutation to Hermitian
// lower-stored a: pivot idx names the swap of row/column idx with
// row/column offset(TileIndex)+Offset. Backward undoes Forward. tag is the
// base wire tag; fragment traffic on tile-row t uses tag+t.
func PermuteRowsCols[T tile.Scalar](ctx context.Context, dir Direction, a matrix.Matrix[T], pivots []Pivot, tag int) error {
	if a.Kind() != matrix.HermitianKind && a.Kind() != matrix.SymmetricKind {
		return fmt.Errorf("pivot: symmetric permutation on a %v matrix: %w", a.Kind(), ErrPivotRange)
	}
	order := make([]int, 0, len(pivots))
	for i := range pivots {
		order = append(order, i)
	}
	if dir == Backward {
		for l, r := 0, len(order)-1; l < r; l, r = l+1, r-1 {
			order[l], order[r] = order[r], order[l]
		}
	}
	for _, i1 := range order {
		p := pivots[i1]
		if p.TileIndex == 0 && p.Offset == i1 {
			continue
		}
		if p.TileIndex < 0 || p.TileIndex >= a.Mt() || p.Offset < 0 || p.Offset >= a.TileMb(p.TileIndex) {
			return fmt.Errorf("pivot: (%d,%d) of %d tile-rows: %w", p.TileIndex, p.Offset, a.Mt(), ErrPivotRange)
		}
		if p.TileIndex == 0 && p.Offset < i1 {
			return fmt.Errorf("pivot: symmetric pivot must not precede its row: %w", ErrPivotRange)
		}
		if err := swapSym(ctx, a, i1, p.TileIndex, p.Offset, tag); err != nil {
			return err
		}
	}
	return nil
}

// frag names a contiguous run of one tile: row r (cols [start, end)) when
// row is set, else column c (rows [start, end)). conj conjugates the
// incoming value during a swap.
type frag struct {
	ti, tj     int
	row        bool
	idx        int
	start, end int
	conj       bool
}

// swapSym performs one symmetric swap i1 ↔ offset(t2)+i2.
func swapSym[T tile.Scalar](ctx context.Context, a matrix.Matrix[T], i1, t2, i2, tag int) error {
	// 1. Strictly-left rows: A[i1, 0:i1] ↔ A[r2, 0:i1].
	if i1 > 0 {
		fa := frag{ti: 0, tj: 0, row: true, idx: i1, start: 0, end: i1}
		fb := frag{ti: t2, tj: 0, row: true, idx: i2, start: 0, end: i1}
		if t2 == 0 {
			// Same tile: the partner row is above i2 inside tile (0,0).
			fb.ti = 0
		}
		if err := swapFrags(ctx, a, fa, fb, tag+t2); err != nil {
			return err
		}
	}

	// 2. Column strip below i1 ↔ row strip left of r2, conjugating both.
	for t := 0; t <= t2; t++ {
		colStart, colEnd := 0, a.TileMb(t)
		rowStart, rowEnd := 0, a.TileNb(t)
		if t == 0 {
			colStart = i1 + 1
			rowStart = i1 + 1
		}
		if t == t2 {
			colEnd = min(colEnd, i2)
			rowEnd = min(rowEnd, i2)
		}
		if colEnd <= colStart {
			continue
		}
		fa := frag{ti: t, tj: 0, row: false, idx: i1, start: colStart, end: colEnd, conj: true}
		fb := frag{ti: t2, tj: t, row: true, idx: i2, start: rowStart, end: rowEnd, conj: true}
		if err := swapFrags(ctx, a, fa, fb, tag+t); err != nil {
			return err
		}
	}

	// 3. Diagonal elements A[i1,i1] ↔ A[r2,r2].
	fa := frag{ti: 0, tj: 0, row: true, idx: i1, start: i1, end: i1 + 1}
	fb := frag{ti: t2, tj: t2, row: true, idx: i2, start: i2, end: i2 + 1}
	if err := swapFrags(ctx, a, fa, fb, tag+t2); err != nil {
		return err
	}

	// 4. Below r2: column i1 of tile (t, 0) ↔ column i2 of tile (t, t2).
	for t := t2; t < a.Mt(); t++ {
		start := 0
		if t == t2 {
			start = i2 + 1
		}
		end := a.TileMb(t)
		if end <= start {
			continue
		}
		fa := frag{ti: t, tj: 0, row: false, idx: i1, start: start, end: end}
		fb := frag{ti: t, tj: t2, row: false, idx: i2, start: start, end: end}
		if err := swapFrags(ctx, a, fa, fb, tag+t); err != nil {
			return err
		}
	}

	// 5. Conjugate the crossing element A[r2, i1].
	if a.TileIsLocal(t2, 0) {
		t, err := a.Tile(t2, 0, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		t.SetAt(i2, i1, tile.Conj(t.At(i2, i1)))
	}
	return nil
}

// swapFrags exchanges two fragments: each side's incoming value is
// conjugated when its frag says so. Ranks owning neither side return
// immediately; split ownership goes through a paired exchange.
func swapFrags[T tile.Scalar](ctx context.Context, a matrix.Matrix[T], fa, fb frag, tag int) error {
	me := a.Rank()
	ra := a.TileRank(fa.ti, fa.tj)
	rb := a.TileRank(fb.ti, fb.tj)
	if me != ra && me != rb {
		return nil
	}
	if ra == rb {
		va, err := readFrag(a, fa)
		if err != nil {
			return err
		}
		vb, err := readFrag(a, fb)
		if err != nil {
			return err
		}
		if err := writeFrag(a, fa, vb); err != nil {
			return err
		}
		return writeFrag(a, fb, va)
	}
	mine, peer := fa, rb
	if me == rb {
		mine, peer = fb, ra
	}
	vm, err := readFrag(a, mine)
	if err != nil {
		return err
	}
	theirs := make([]T, len(vm))
	if err := comm.Exchange(ctx, a.Transport(), peer, tag, vm, theirs); err != nil {
		return err
	}
	return writeFrag(a, mine, theirs)
}

// readFrag copies a fragment out of its tile, raw (no conjugation).
func readFrag[T tile.Scalar](a matrix.Matrix[T], f frag) ([]T, error) {
	t, err := a.Tile(f.ti, f.tj, tile.Host, catalog.ReadWrite, tile.ColMajor)
	if err != nil {
		return nil, err
	}
	out := make([]T, f.end-f.start)
	for k := range out {
		if f.row {
			out[k] = t.At(f.idx, f.start+k)
		} else {
			out[k] = t.At(f.start+k, f.idx)
		}
	}
	return out, nil
}

// writeFrag stores incoming values into a fragment, conjugating when the
// fragment demands it.
func writeFrag[T tile.Scalar](a matrix.Matrix[T], f frag, vals []T) error {
	t, err := a.Tile(f.ti, f.tj, tile.Host, catalog.ReadWrite, tile.ColMajor)
	if err != nil {
		return err
	}
	for k, v := range vals {
		if f.conj {
			v = tile.Conj(v)
		}
		if f.row {
			t.SetAt(f.idx, f.start+k, v)
		} else {
			t.SetAt(f.start+k, f.idx, v)
		}
	}
	return nil
}
