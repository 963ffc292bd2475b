package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tilemesh/tilemesh/pool"
	"github.com/tilemesh/tilemesh/tile"
)

// PoolSuite exercises slab reuse, reservation windows, limits, and shrink.
type PoolSuite struct {
	suite.Suite
}

// TestLIFOReuse verifies that a released slab is handed back first.
func (s *PoolSuite) TestLIFOReuse() {
	p := pool.New[float64]()
	a, err := p.Acquire(tile.Host, 64)
	require.NoError(s.T(), err)
	b, err := p.Acquire(tile.Host, 64)
	require.NoError(s.T(), err)

	require.NoError(s.T(), p.Release(tile.Host, a))
	require.NoError(s.T(), p.Release(tile.Host, b))

	// LIFO: b comes back before a.
	c, err := p.Acquire(tile.Host, 64)
	require.NoError(s.T(), err)
	require.Equal(s.T(), &b[0], &c[0])
}

// TestSizeClasses verifies that distinct sizes do not share freelists.
func (s *PoolSuite) TestSizeClasses() {
	p := pool.New[float32]()
	a, err := p.Acquire(tile.Host, 16)
	require.NoError(s.T(), err)
	require.NoError(s.T(), p.Release(tile.Host, a))

	b, err := p.Acquire(tile.Host, 32)
	require.NoError(s.T(), err)
	require.Len(s.T(), b, 32)
}

// TestLimit verifies ErrOutOfMemory on an exhausted arena.
func (s *PoolSuite) TestLimit() {
	p := pool.New[float64](pool.WithLimit(int(tile.Host), 2))
	_, err := p.Acquire(tile.Host, 8)
	require.NoError(s.T(), err)
	_, err = p.Acquire(tile.Host, 8)
	require.NoError(s.T(), err)
	_, err = p.Acquire(tile.Host, 8)
	require.ErrorIs(s.T(), err, pool.ErrOutOfMemory)
}

// TestReserveWindow verifies that reserved slabs satisfy acquires even at
// the limit.
func (s *PoolSuite) TestReserveWindow() {
	p := pool.New[float64](pool.WithLimit(int(tile.Host), 4))
	require.NoError(s.T(), p.Reserve(tile.Host, 4, 8))
	for i := 0; i < 4; i++ {
		_, err := p.Acquire(tile.Host, 8)
		require.NoError(s.T(), err)
	}
	_, err := p.Acquire(tile.Host, 8)
	require.ErrorIs(s.T(), err, pool.ErrOutOfMemory)
}

// TestUnknownMemory verifies the sentinel for unconfigured devices.
func (s *PoolSuite) TestUnknownMemory() {
	p := pool.New[float64]()
	_, err := p.Acquire(tile.Device(0), 8)
	require.ErrorIs(s.T(), err, pool.ErrUnknownMemory)
}

// TestDeviceArenas verifies that WithDevices configures device arenas.
func (s *PoolSuite) TestDeviceArenas() {
	p := pool.New[float64](pool.WithDevices(2))
	_, err := p.Acquire(tile.Device(1), 8)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, p.Devices())
}

// TestShrinkCountsFrees verifies that Shrink counts the idle slabs it frees.
func (s *PoolSuite) TestShrinkCountsFrees() {
	p := pool.New[float64]()
	a, _ := p.Acquire(tile.Host, 8)
	require.NoError(s.T(), p.Release(tile.Host, a))
	require.NoError(s.T(), p.Shrink(tile.Host))

	live, idle, freed := p.Stats(tile.Host)
	require.Equal(s.T(), 0, live)
	require.Equal(s.T(), 0, idle)
	require.Equal(s.T(), uint64(1), freed)
}

func TestPoolSuite(t *testing.T) {
	suite.Run(t, new(PoolSuite))
}
