package catalog_test

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/pool"
	"github.com/tilemesh/tilemesh/tile"
)

// CoherenceSuite exercises the transition table of the coherence engine.
type CoherenceSuite struct {
	suite.Suite
}

// TestReadFetchesToDevice verifies Invalid+Read: copy from a donor, both
// sides end Shared with identical content.
func (s *CoherenceSuite) TestReadFetchesToDevice() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(100))

	dev, err := en.Acquire(0, 0, tile.Device(0), catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Device(0)))
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Host))
	require.Equal(s.T(), 100.0, dev.At(0, 0))
	require.NoError(s.T(), cat.Validate())
}

// TestWriteInvalidatesOthers verifies Shared+Write: the writer becomes
// Modified and every other location Invalid.
func (s *CoherenceSuite) TestWriteInvalidatesOthers() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(0))
	_, err := en.Acquire(0, 0, tile.Device(0), catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)

	_, err = en.Acquire(0, 0, tile.Device(0), catalog.Write, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), catalog.Modified, cat.StateOf(0, 0, tile.Device(0)))
	require.Equal(s.T(), catalog.Invalid, cat.StateOf(0, 0, tile.Host))
	require.NoError(s.T(), cat.Validate())
}

// TestModifiedMovesOnWrite verifies Modified-elsewhere+Write: content moves
// and the source is invalidated.
func (s *CoherenceSuite) TestModifiedMovesOnWrite() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(0))

	dev, err := en.Acquire(0, 0, tile.Device(0), catalog.ReadWrite, tile.ColMajor)
	require.NoError(s.T(), err)
	dev.SetAt(1, 1, -7)

	host, err := en.Acquire(0, 0, tile.Host, catalog.ReadWrite, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), -7.0, host.At(1, 1))
	require.Equal(s.T(), catalog.Modified, cat.StateOf(0, 0, tile.Host))
	require.Equal(s.T(), catalog.Invalid, cat.StateOf(0, 0, tile.Device(0)))
	require.NoError(s.T(), cat.Validate())
}

// TestReadAfterDeviceWrite verifies the read-back path: the device donor
// downgrades to Shared alongside the new host copy.
func (s *CoherenceSuite) TestReadAfterDeviceWrite() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(0))

	dev, err := en.Acquire(0, 0, tile.Device(0), catalog.ReadWrite, tile.ColMajor)
	require.NoError(s.T(), err)
	dev.SetAt(2, 3, 99)

	host, err := en.Acquire(0, 0, tile.Host, catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 99.0, host.At(2, 3))
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Host))
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Device(0)))
	require.NoError(s.T(), cat.Validate())
}

// TestReadNoDonor verifies the ErrNoDonor sentinel.
func (s *CoherenceSuite) TestReadNoDonor() {
	_, en := newEngine(0)
	_, err := en.Acquire(5, 5, tile.Host, catalog.Read, tile.ColMajor)
	require.ErrorIs(s.T(), err, catalog.ErrNoDonor)
}

// TestWriteCreatesFreshWorkspace verifies Write on a tile absent everywhere.
func (s *CoherenceSuite) TestWriteCreatesFreshWorkspace() {
	cat, en := newEngine(0)
	t, err := en.Acquire(2, 3, tile.Host, catalog.Write, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), catalog.Modified, cat.StateOf(2, 3, tile.Host))
	require.Equal(s.T(), 0.0, t.At(0, 0)) // fresh slabs are zeroed

	inst, err := cat.Get(2, 3, tile.Host)
	require.NoError(s.T(), err)
	require.Equal(s.T(), catalog.WorkspaceLife, inst.Life)
}

// TestLayoutConversionOnFetch verifies that a RowMajor request is honoured
// with converted content.
func (s *CoherenceSuite) TestLayoutConversionOnFetch() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(0))

	dev, err := en.Acquire(0, 0, tile.Device(0), catalog.Read, tile.RowMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), tile.RowMajor, dev.Layout())
	host, _ := en.Acquire(0, 0, tile.Host, catalog.Read, tile.ColMajor)
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			require.Equal(s.T(), host.At(i, j), dev.At(i, j))
		}
	}
	require.NoError(s.T(), cat.Validate())
}

// TestExtendedOriginRoundTrip verifies that a non-contiguous origin
// converts through an extended slab and collapses back on UpdateOrigin.
func (s *CoherenceSuite) TestExtendedOriginRoundTrip() {
	cat := catalog.New[float64]()
	p := pool.New[float64]()
	en := catalog.NewEngine(cat, p, uniformGeom{4, 4})

	// lda=6 > mb=4: user storage is not contiguous.
	user := make([]float64, 6*4)
	orig := tile.New(4, 4, user, 6, tile.ColMajor, tile.Host)
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			orig.SetAt(i, j, float64(10*i+j))
		}
	}
	cat.InsertOrigin(0, 0, orig)

	rm, err := en.Acquire(0, 0, tile.Host, catalog.ReadWrite, tile.RowMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), tile.RowMajor, rm.Layout())
	require.Equal(s.T(), 12.0, rm.At(1, 2))
	rm.SetAt(3, 3, -1)

	require.NoError(s.T(), en.UpdateOrigin(0, 0))
	require.Equal(s.T(), -1.0, orig.At(3, 3))
	require.Equal(s.T(), 12.0, orig.At(1, 2))
	require.Equal(s.T(), catalog.Modified, cat.StateOf(0, 0, tile.Host))
}

// TestUpdateOriginPullsFromDevice verifies origin restoration after a
// device-side write.
func (s *CoherenceSuite) TestUpdateOriginPullsFromDevice() {
	cat, en := newEngine(1)
	orig := originTile(0)
	cat.InsertOrigin(0, 0, orig)

	dev, err := en.Acquire(0, 0, tile.Device(0), catalog.ReadWrite, tile.ColMajor)
	require.NoError(s.T(), err)
	dev.SetAt(0, 0, 555)

	require.NoError(s.T(), en.UpdateOrigin(0, 0))
	require.Equal(s.T(), 555.0, orig.At(0, 0))
	require.Equal(s.T(), catalog.Modified, cat.StateOf(0, 0, tile.Host))
	require.Equal(s.T(), catalog.Invalid, cat.StateOf(0, 0, tile.Device(0)))
	require.NoError(s.T(), cat.Validate())
}

// TestReleaseLocalWorkspace verifies that Shared device copies are erased
// and their slabs returned to the pool.
func (s *CoherenceSuite) TestReleaseLocalWorkspace() {
	cat, en := newEngine(1)
	cat.InsertOrigin(0, 0, originTile(0))
	_, err := en.Acquire(0, 0, tile.Device(0), catalog.Read, tile.ColMajor)
	require.NoError(s.T(), err)

	en.ReleaseLocalWorkspace(0, 0)
	require.Equal(s.T(), catalog.Invalid, cat.StateOf(0, 0, tile.Device(0)))
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Host)) // origin survives

	_, idle, _ := en.Pool().Stats(tile.Device(0))
	require.Equal(s.T(), 1, idle)
}

// TestPackForSendInvariant verifies the message-layer contract: packing a
// readable instance snapshots it without a state change, packing an
// invalid one is an invariant violation.
func (s *CoherenceSuite) TestPackForSendInvariant() {
	cat, en := newEngine(0)
	cat.InsertOrigin(0, 0, originTile(5))

	buf := make([]float64, 16)
	layout, err := en.PackForSend(0, 0, tile.Host, buf)
	require.NoError(s.T(), err)
	require.Equal(s.T(), tile.ColMajor, layout)
	require.Equal(s.T(), 5.0, buf[0])
	require.Equal(s.T(), catalog.Shared, cat.StateOf(0, 0, tile.Host))

	require.NoError(s.T(), cat.SetState(0, 0, tile.Host, catalog.Invalid))
	_, err = en.PackForSend(0, 0, tile.Host, buf)
	require.ErrorIs(s.T(), err, catalog.ErrInvariant)
}

// TestReceiveIntoInstallsShared verifies that a completed receive is a
// coherence transition ending Shared.
func (s *CoherenceSuite) TestReceiveIntoInstallsShared() {
	cat, en := newEngine(0)
	buf := make([]float64, 16)
	for k := range buf {
		buf[k] = float64(k)
	}
	got, err := en.ReceiveInto(3, 4, tile.Host, tile.ColMajor, buf, tile.ColMajor)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 5.0, got.At(1, 1))
	require.Equal(s.T(), catalog.Shared, cat.StateOf(3, 4, tile.Host))

	inst, err := cat.Get(3, 4, tile.Host)
	require.NoError(s.T(), err)
	require.Equal(s.T(), catalog.WorkspaceLife, inst.Life)
}

func TestCoherenceSuite(t *testing.T) {
	suite.Run(t, new(CoherenceSuite))
}

// TestCoherenceStress fires random acquires from 8 goroutines at a 16×16
// tile matrix across host and two devices, then checks the catalog
// invariants at quiescence. Guards against deadlock with a global timeout.
func TestCoherenceStress(t *testing.T) {
	cat := catalog.New[float64]()
	p := pool.New[float64](pool.WithDevices(2))
	en := catalog.NewEngine(cat, p, uniformGeom{4, 4})
	for j := 0; j < 16; j++ {
		for i := 0; i < 16; i++ {
			cat.InsertOrigin(i, j, originTile(float64(16*i+j)))
		}
	}

	mems := []tile.Memory{tile.Host, tile.Device(0), tile.Device(1)}
	modes := []catalog.AccessMode{catalog.Read, catalog.Read, catalog.Write, catalog.ReadWrite}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for n := 0; n < 2000; n++ {
				i, j := rng.Intn(16), rng.Intn(16)
				mem := mems[rng.Intn(len(mems))]
				mode := modes[rng.Intn(len(modes))]
				if _, err := en.Acquire(i, j, mem, mode, tile.ColMajor); err != nil {
					t.Errorf("acquire (%d,%d) %v %v: %v", i, j, mem, mode, err)
					return
				}
			}
		}(int64(g + 1))
	}
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("coherence stress did not quiesce within 10s")
	}
	require.NoError(t, cat.Validate())
}
