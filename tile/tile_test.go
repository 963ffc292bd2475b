package tile_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tilemesh/tilemesh/tile"
)

// TileSuite exercises the Tile value type: indexing under op and layout,
// copies with conversion, packing, and trapezoid fills.
type TileSuite struct {
	suite.Suite
}

// colMajor builds a 3×2 ColMajor tile holding
//
//	1 4
//	2 5
//	3 6
func colMajor() tile.Tile[float64] {
	data := []float64{1, 2, 3, 4, 5, 6}
	return tile.New(3, 2, data, 3, tile.ColMajor, tile.Host)
}

// TestAtColMajor verifies plain element access.
func (s *TileSuite) TestAtColMajor() {
	t := colMajor()
	require.Equal(s.T(), 3, t.Mb())
	require.Equal(s.T(), 2, t.Nb())
	require.Equal(s.T(), 1.0, t.At(0, 0))
	require.Equal(s.T(), 6.0, t.At(2, 1))
	require.Equal(s.T(), 4.0, t.At(0, 1))
}

// TestAtRowMajor verifies access with RowMajor storage.
func (s *TileSuite) TestAtRowMajor() {
	data := []float64{1, 4, 2, 5, 3, 6}
	t := tile.New(3, 2, data, 2, tile.RowMajor, tile.Host)
	require.Equal(s.T(), 1.0, t.At(0, 0))
	require.Equal(s.T(), 5.0, t.At(1, 1))
	require.Equal(s.T(), 3.0, t.At(2, 0))
}

// TestTranspose verifies that Transpose swaps extents and indices without
// moving bytes.
func (s *TileSuite) TestTranspose() {
	t := colMajor().Transpose()
	require.Equal(s.T(), 2, t.Mb())
	require.Equal(s.T(), 3, t.Nb())
	require.Equal(s.T(), 2.0, t.At(0, 1))
	require.Equal(s.T(), 6.0, t.At(1, 2))
}

// TestConjTranspose verifies conjugation on complex access.
func (s *TileSuite) TestConjTranspose() {
	data := []complex128{1 + 2i, 3 - 1i, 0, 0}
	t := tile.New(2, 2, data, 2, tile.ColMajor, tile.Host).ConjTranspose()
	require.Equal(s.T(), complex128(1-2i), t.At(0, 0))
	require.Equal(s.T(), complex128(3+1i), t.At(0, 1))
}

// TestSetAtThroughOp verifies that SetAt round-trips through a transposed view.
func (s *TileSuite) TestSetAtThroughOp() {
	t := colMajor()
	tt := t.Transpose()
	tt.SetAt(1, 2, 42)
	require.Equal(s.T(), 42.0, t.At(2, 1))
}

// TestCopyToSameLayout checks the fast path.
func (s *TileSuite) TestCopyToSameLayout() {
	src := colMajor()
	dst := tile.New(3, 2, make([]float64, 6), 3, tile.ColMajor, tile.Host)
	require.NoError(s.T(), src.CopyTo(dst))
	require.Equal(s.T(), src.Data(), dst.Data())
}

// TestCopyToLayoutConversion checks the converting path.
func (s *TileSuite) TestCopyToLayoutConversion() {
	src := colMajor()
	dst := tile.New(3, 2, make([]float64, 6), 2, tile.RowMajor, tile.Host)
	require.NoError(s.T(), src.CopyTo(dst))
	for j := 0; j < 2; j++ {
		for i := 0; i < 3; i++ {
			require.Equal(s.T(), src.At(i, j), dst.At(i, j))
		}
	}
}

// TestCopyToTransposedSource checks the op-resolving path.
func (s *TileSuite) TestCopyToTransposedSource() {
	src := colMajor().Transpose()
	dst := tile.New(2, 3, make([]float64, 6), 2, tile.ColMajor, tile.Host)
	require.NoError(s.T(), src.CopyTo(dst))
	require.Equal(s.T(), 2.0, dst.At(0, 1))
	require.Equal(s.T(), 6.0, dst.At(1, 2))
}

// TestCopyToShapeMismatch verifies the sentinel.
func (s *TileSuite) TestCopyToShapeMismatch() {
	src := colMajor()
	dst := tile.New(2, 2, make([]float64, 4), 2, tile.ColMajor, tile.Host)
	require.ErrorIs(s.T(), src.CopyTo(dst), tile.ErrShapeMismatch)
}

// TestPackUnpackRoundTrip verifies Pack/Unpack across layouts.
func (s *TileSuite) TestPackUnpackRoundTrip() {
	src := colMajor()
	buf := make([]float64, src.PackLen())
	src.Pack(buf)

	dst := tile.New(3, 2, make([]float64, 6), 2, tile.RowMajor, tile.Host)
	dst.Unpack(buf, tile.ColMajor)
	for j := 0; j < 2; j++ {
		for i := 0; i < 3; i++ {
			require.Equal(s.T(), src.At(i, j), dst.At(i, j))
		}
	}
}

// TestFillTrapezoid verifies uplo-restricted constant fills.
func (s *TileSuite) TestFillTrapezoid() {
	t := tile.New(3, 3, make([]float64, 9), 3, tile.ColMajor, tile.Host).
		WithUplo(tile.Lower, tile.NonUnit)
	t.Fill(7, 1)
	require.Equal(s.T(), 1.0, t.At(0, 0))
	require.Equal(s.T(), 7.0, t.At(2, 0))
	require.Equal(s.T(), 0.0, t.At(0, 2)) // strict upper untouched
}

// TestRowColumnHelpers verifies the row/column copy primitives the pivot
// engine is built on.
func (s *TileSuite) TestRowColumnHelpers() {
	t := colMajor()
	row := make([]float64, 2)
	t.CopyRowOut(1, row)
	require.Equal(s.T(), []float64{2, 5}, row)

	t.CopyRowIn(1, []float64{20, 50})
	require.Equal(s.T(), 20.0, t.At(1, 0))

	col := make([]float64, 3)
	t.CopyColOut(1, col)
	require.Equal(s.T(), []float64{4, 50, 6}, col)
}

// TestSwapRows verifies the two-tile row exchange.
func (s *TileSuite) TestSwapRows() {
	a := colMajor()
	b := tile.New(2, 2, []float64{10, 20, 30, 40}, 2, tile.ColMajor, tile.Host)
	tile.SwapRows(a, 0, b, 1)
	require.Equal(s.T(), 20.0, a.At(0, 0))
	require.Equal(s.T(), 30.0, a.At(0, 1))
	require.Equal(s.T(), 1.0, b.At(1, 0))
	require.Equal(s.T(), 4.0, b.At(1, 1))
}

func TestTileSuite(t *testing.T) {
	suite.Run(t, new(TileSuite))
}
