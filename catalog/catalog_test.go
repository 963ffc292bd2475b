package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/pool"
	"github.com/tilemesh/tilemesh/tile"
)

// uniformGeom supplies constant tile extents.
type uniformGeom struct{ mb, nb int }

func (g uniformGeom) TileMb(int) int { return g.mb }
func (g uniformGeom) TileNb(int) int { return g.nb }

// newEngine builds a catalog+engine over a host arena and nDevices device
// arenas, with 4×4 tiles.
func newEngine(nDevices int) (*catalog.Catalog[float64], *catalog.Engine[float64]) {
	cat := catalog.New[float64]()
	p := pool.New[float64](pool.WithDevices(nDevices))
	return cat, catalog.NewEngine(cat, p, uniformGeom{4, 4})
}

// originTile builds a host origin tile filled with a recognisable pattern.
func originTile(seed float64) tile.Tile[float64] {
	data := make([]float64, 16)
	for k := range data {
		data[k] = seed + float64(k)
	}
	return tile.New(4, 4, data, 4, tile.ColMajor, tile.Host)
}

// CatalogSuite exercises entry bookkeeping: insertion, state accounting,
// holds, and erase rules.
type CatalogSuite struct {
	suite.Suite
}

// TestInsertOriginShared verifies that a fresh origin starts Shared.
func (s *CatalogSuite) TestInsertOriginShared() {
	cat, _ := newEngine(0)
	cat.InsertOrigin(0, 0, originTile(0))
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Host))

	inst, err := cat.Get(0, 0, tile.Host)
	require.NoError(s.T(), err)
	require.Equal(s.T(), catalog.OriginLife, inst.Life)
	require.True(s.T(), inst.Tile.Origin())
}

// TestStateOfAbsent verifies that a missing instance reads as Invalid.
func (s *CatalogSuite) TestStateOfAbsent() {
	cat, _ := newEngine(0)
	require.Equal(s.T(), catalog.Invalid, cat.StateOf(3, 3, tile.Host))
}

// TestEraseOriginRefused verifies the origin-erase sentinel.
func (s *CatalogSuite) TestEraseOriginRefused() {
	cat, _ := newEngine(0)
	cat.InsertOrigin(0, 0, originTile(0))
	_, err := cat.Erase(0, 0, tile.Host)
	require.ErrorIs(s.T(), err, catalog.ErrOriginErase)
}

// TestHoldPinsInstance verifies the Shared→OnHold→Shared hold cycle and
// that held instances refuse erase.
func (s *CatalogSuite) TestHoldPinsInstance() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(0))
	_, err := en.Acquire(0, 0, tile.Device(0), catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)

	require.NoError(s.T(), cat.Hold(0, 0, tile.Device(0)))
	require.Equal(s.T(), catalog.OnHold, cat.StateOf(0, 0, tile.Device(0)))
	_, err = cat.Erase(0, 0, tile.Device(0))
	require.ErrorIs(s.T(), err, catalog.ErrHeld)

	require.NoError(s.T(), cat.Unhold(0, 0, tile.Device(0)))
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Device(0)))
}

// TestValidateDetectsDoubleModified verifies the invariant checker.
func (s *CatalogSuite) TestValidateDetectsDoubleModified() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(0))
	_, err := en.Acquire(0, 0, tile.Device(0), catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)
	require.NoError(s.T(), cat.Validate())

	// Force an illegal pair of Modified instances.
	require.NoError(s.T(), cat.SetState(0, 0, tile.Host, catalog.Modified))
	require.NoError(s.T(), cat.SetState(0, 0, tile.Device(0), catalog.Modified))
	require.ErrorIs(s.T(), cat.Validate(), catalog.ErrInvariant)
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}
