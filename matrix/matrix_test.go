package matrix_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/tile"
)

// MatrixSuite exercises construction, geometry, ownership, and access.
type MatrixSuite struct {
	suite.Suite
}

// local8x8 builds a single-process 8×8 matrix with 4×4 tiles, filled so
// element (gi, gj) holds 100·gi + gj.
func local8x8(s *MatrixSuite) matrix.Matrix[float64] {
	a, err := matrix.New[float64](8, 8, 4, 1, 1, nil)
	require.NoError(s.T(), err)
	a.InsertLocalTiles()
	for tj := 0; tj < 2; tj++ {
		for ti := 0; ti < 2; ti++ {
			t, err := a.Tile(ti, tj, tile.Host, catalog.ReadWrite, tile.ColMajor)
			require.NoError(s.T(), err)
			for j := 0; j < 4; j++ {
				for i := 0; i < 4; i++ {
					t.SetAt(i, j, float64(100*(4*ti+i)+4*tj+j))
				}
			}
		}
	}
	return a
}

// TestDimensions verifies tile counts and element extents.
func (s *MatrixSuite) TestDimensions() {
	a := local8x8(s)
	require.Equal(s.T(), 2, a.Mt())
	require.Equal(s.T(), 2, a.Nt())
	require.Equal(s.T(), 8, a.M())
	require.Equal(s.T(), 8, a.N())
	require.Equal(s.T(), 4, a.TileMb(1))
}

// TestInvalidArguments verifies synchronous validation at entry.
func (s *MatrixSuite) TestInvalidArguments() {
	_, err := matrix.New[float64](0, 8, 4, 1, 1, nil)
	require.ErrorIs(s.T(), err, matrix.ErrInvalidDim)
	_, err = matrix.New[float64](8, 8, -1, 1, 1, nil)
	require.ErrorIs(s.T(), err, matrix.ErrInvalidDim)
	_, err = matrix.New[float64](8, 8, 4, 2, 2, nil)
	require.ErrorIs(s.T(), err, matrix.ErrInvalidDim) // grid without transport
}

// TestNonUniformTileSizes verifies clamped offsets: 1000 with
// tileNb = 256, 128, 256, 128, ... covers in 5 tiles.
func (s *MatrixSuite) TestNonUniformTileSizes() {
	nbOf := func(j int) int {
		if j%2 == 1 {
			return 128
		}
		return 256
	}
	a, err := matrix.New[float32](1000, 1000, 256, 1, 1, nil,
		matrix.WithTileSizes(matrix.Uniform(256), nbOf))
	require.NoError(s.T(), err)
	require.Equal(s.T(), 4, a.Mt())
	require.Equal(s.T(), 5, a.Nt())

	sum := 0
	for j := 0; j < a.Nt(); j++ {
		sum += a.TileNb(j)
	}
	require.Equal(s.T(), 1000, sum)
	require.Equal(s.T(), 232, a.TileNb(4)) // clamped to the edge
}

// TestTransposeView verifies index and extent mapping through op.
func (s *MatrixSuite) TestTransposeView() {
	a := local8x8(s)
	at := a.Transpose()
	require.Equal(s.T(), a.Nt(), at.Mt())

	t, err := at.Tile(0, 1, tile.Host, catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)
	// at(0,1) is a(1,0) transposed: logical (i,j) = a(1,0)'s (j,i).
	require.Equal(s.T(), tile.Trans, t.Op())
	require.Equal(s.T(), float64(100*4+0), t.At(0, 0))
	require.Equal(s.T(), float64(100*5+1), t.At(1, 1))
	require.Equal(s.T(), float64(100*7+2), t.At(2, 3))
}

// TestSubView verifies offset mapping and range validation.
func (s *MatrixSuite) TestSubView() {
	a := local8x8(s)
	sub, err := a.Sub(1, 1, 0, 1)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 1, sub.Mt())
	require.Equal(s.T(), 2, sub.Nt())

	t, err := sub.Tile(0, 1, tile.Host, catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), float64(100*4+4), t.At(0, 0)) // a's tile (1,1)

	_, err = a.Sub(0, 2, 0, 0)
	require.ErrorIs(s.T(), err, matrix.ErrRange)
}

// TestSubOfTranspose verifies view composition.
func (s *MatrixSuite) TestSubOfTranspose() {
	a := local8x8(s)
	sub, err := a.Transpose().Sub(0, 0, 1, 1)
	require.NoError(s.T(), err)
	t, err := sub.Tile(0, 0, tile.Host, catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)
	// Transposed view's (0,1) is storage tile (1,0), transposed.
	require.Equal(s.T(), float64(100*4+0), t.At(0, 0))
}

// TestSliceStrided verifies strided selection.
func (s *MatrixSuite) TestSliceStrided() {
	a, err := matrix.New[float64](16, 16, 4, 1, 1, nil)
	require.NoError(s.T(), err)
	a.InsertLocalTiles()

	sl, err := a.Slice(matrix.Range{Start: 0, End: 4, Step: 2}, matrix.Span(0, 4))
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, sl.Mt())
	require.Equal(s.T(), 4, sl.Nt())
	// Slice row 1 is storage tile-row 2.
	require.Equal(s.T(), a.TileRank(2, 0), sl.TileRank(1, 0))
}

// TestTriangularCast verifies square enforcement and diagonal restriction.
func (s *MatrixSuite) TestTriangularCast() {
	a := local8x8(s)
	l, err := matrix.Triangular(tile.Lower, tile.NonUnit, a)
	require.NoError(s.T(), err)
	require.Equal(s.T(), matrix.TriangularKind, l.Kind())

	t, err := l.Tile(0, 0, tile.Host, catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), tile.Lower, t.Uplo())

	rect, err := a.Sub(0, 1, 0, 0)
	require.NoError(s.T(), err)
	_, err = matrix.Triangular(tile.Lower, tile.NonUnit, rect)
	require.ErrorIs(s.T(), err, matrix.ErrNonSquare)
}

// TestHermitianUploThroughTranspose verifies that the stored triangle
// flips with the view.
func (s *MatrixSuite) TestHermitianUploThroughTranspose() {
	a := local8x8(s)
	h, err := matrix.Hermitian(tile.Lower, a)
	require.NoError(s.T(), err)
	require.Equal(s.T(), tile.Lower, h.Uplo())
	require.Equal(s.T(), tile.Upper, h.Transpose().Uplo())
}

// TestEmptyLikeLazyTiles verifies workspace materialisation on write.
func (s *MatrixSuite) TestEmptyLikeLazyTiles() {
	a := local8x8(s)
	w := a.EmptyLike()
	require.Equal(s.T(), a.Mt(), w.Mt())

	// No tiles yet; a write creates workspace.
	_, err := w.Tile(1, 0, tile.Host, catalog.Write, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), catalog.Modified, w.Catalog().StateOf(1, 0, tile.Host))
}

// TestScaLAPACKOriginPointers verifies that origin tiles alias the user
// buffer: writes through coherence land in user storage after
// UpdateAllOrigin.
func (s *MatrixSuite) TestScaLAPACKOriginPointers() {
	const n, nb = 8, 4
	data := make([]float64, n*n)
	a, err := matrix.FromScaLAPACK(n, n, nb, 1, 1, nil, data, n)
	require.NoError(s.T(), err)

	t, err := a.Tile(1, 1, tile.Host, catalog.ReadWrite, tile.ColMajor)
	require.NoError(s.T(), err)
	t.SetAt(0, 0, 42)
	require.NoError(s.T(), a.UpdateAllOrigin())
	// Tile (1,1) starts at local (4,4): offset 4 + 4*8.
	require.Equal(s.T(), 42.0, data[4+4*n])
}

func TestMatrixSuite(t *testing.T) {
	suite.Run(t, new(MatrixSuite))
}

// TestBlockCyclicDistribution verifies the ownership function and the
// per-rank tile census of the non-uniform seed scenario on a 2×2 grid.
func TestBlockCyclicDistribution(t *testing.T) {
	mesh := comm.NewMesh(4)
	var g errgroup.Group
	counts := make([]int, 4)
	for r := 0; r < 4; r++ {
		tr := mesh.Rank(r)
		g.Go(func() error {
			nbOf := func(j int) int {
				if j%2 == 1 {
					return 128
				}
				return 256
			}
			am, err := matrix.New[float32](1000, 1000, 256, 2, 2, tr,
				matrix.WithTileSizes(matrix.Uniform(256), nbOf))
			if err != nil {
				return err
			}
			am.InsertLocalTiles()

			// Deterministic per-rank fill.
			rng := rand.New(rand.NewSource(int64(tr.Rank() + 1)))
			local := 0
			for j := 0; j < am.Nt(); j++ {
				for i := 0; i < am.Mt(); i++ {
					if !am.TileIsLocal(i, j) {
						continue
					}
					local++
					tl, err := am.Tile(i, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
					if err != nil {
						return err
					}
					tl.SetAt(0, 0, rng.Float32())
				}
			}
			counts[tr.Rank()] = local
			return nil
		})
	}
	require.NoError(t, g.Wait())
	// mt=4, nt=5 on a 2×2 grid: rows split 2/2, cols split 3/2.
	require.Equal(t, []int{6, 6, 4, 4}, counts)
}
