// Package pivot: row permutation.

package pivot

import (
	"context"
	"errors"
	"fmt"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/tile"
)

// ErrPivotRange indicates a pivot outside the view it applies to.
var ErrPivotRange = errors.New("pivot: pivot outside the view")

// Pivot names the swap partner of one row: element Offset of block-row
// TileIndex. TileIndex 0, Offset i is the identity for row i.
type Pivot struct {
	TileIndex int
	Offset    int
}

// Direction selects application order of a pivot vector.
type Direction uint8

const (
	// Forward applies pivots 0..k−1 in order.
	Forward Direction = iota
	// Backward applies them in reverse, undoing a Forward application.
	Backward
)

// String returns "Forward" or "Backward".
func (d Direction) String() string {
	if d == Backward {
		return "Backward"
	}
	return "Forward"
}

// PermuteRows applies pivots to every block-column of a: row i of the
// first block-row swaps with row pivots[i].Offset of block-row
// pivots[i].TileIndex. The GPU path requires RowMajor so a row is
// contiguous; the layout is honoured on every acquire. tag is the base
// wire tag; block-column j uses tag+j.
//
// Complexity: O(len(pivots) × Nt) swaps.
func PermuteRows[T tile.Scalar](ctx context.Context, dir Direction, a matrix.Matrix[T], pivots []Pivot, layout tile.Layout, tag int) error {
	for _, p := range pivots {
		if p.TileIndex < 0 || p.TileIndex >= a.Mt() || p.Offset < 0 || p.Offset >= a.TileMb(p.TileIndex) {
			return fmt.Errorf("pivot: (%d,%d) of %d tile-rows: %w", p.TileIndex, p.Offset, a.Mt(), ErrPivotRange)
		}
	}
	for j := 0; j < a.Nt(); j++ {
		if err := permuteColumn(ctx, dir, a, pivots, j, layout, tag+j); err != nil {
			return err
		}
	}
	return nil
}

// permuteColumn applies the pivot vector within one block-column.
func permuteColumn[T tile.Scalar](ctx context.Context, dir Direction, a matrix.Matrix[T], pivots []Pivot, j int, layout tile.Layout, tag int) error {
	order := make([]int, 0, len(pivots))
	for i := range pivots {
		order = append(order, i)
	}
	if dir == Backward {
		for l, r := 0, len(order)-1; l < r; l, r = l+1, r-1 {
			order[l], order[r] = order[r], order[l]
		}
	}
	me := a.Rank()
	for _, i := range order {
		p := pivots[i]
		if p.TileIndex == 0 && p.Offset == i {
			continue // identity pivot
		}
		topRank := a.TileRank(0, j)
		pivRank := a.TileRank(p.TileIndex, j)
		switch {
		case topRank == pivRank && topRank == me:
			top, err := a.Tile(0, j, tile.Host, catalog.ReadWrite, layout)
			if err != nil {
				return err
			}
			piv, err := a.Tile(p.TileIndex, j, tile.Host, catalog.ReadWrite, layout)
			if err != nil {
				return err
			}
			tile.SwapRows(top, i, piv, p.Offset)

		case topRank == me:
			top, err := a.Tile(0, j, tile.Host, catalog.ReadWrite, layout)
			if err != nil {
				return err
			}
			if err := exchangeRow(ctx, a, top, i, pivRank, tag); err != nil {
				return err
			}

		case pivRank == me:
			piv, err := a.Tile(p.TileIndex, j, tile.Host, catalog.ReadWrite, layout)
			if err != nil {
				return err
			}
			if err := exchangeRow(ctx, a, piv, p.Offset, topRank, tag); err != nil {
				return err
			}
		}
	}
	return nil
}

// exchangeRow swaps stored row r of t with the peer's counterpart: both
// sides send theirs and overwrite with the other's.
func exchangeRow[T tile.Scalar](ctx context.Context, a matrix.Matrix[T], t tile.Tile[T], r, peer, tag int) error {
	nb := t.Nb()
	mine := make([]T, nb)
	theirs := make([]T, nb)
	t.CopyRowOut(r, mine)
	if err := comm.Exchange(ctx, a.Transport(), peer, tag, mine, theirs); err != nil {
		return err
	}
	t.CopyRowIn(r, theirs)
	return nil
}
