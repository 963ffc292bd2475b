package comm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tilemesh/tilemesh/comm"
)

// TestCubeBcastCoverage checks, across sizes and radices, that every
// non-root rank receives exactly once, from a rank that lists it as a
// forwarding target.
func TestCubeBcastCoverage(t *testing.T) {
	for _, radix := range []int{2, 3, 4} {
		for size := 1; size <= 17; size++ {
			sends := make(map[int][]int) // receiver → senders
			for rank := 0; rank < size; rank++ {
				recvFrom, sendTo := comm.CubeBcastPattern(size, rank, radix)
				if rank == 0 {
					require.Empty(t, recvFrom, "root must not receive (size=%d radix=%d)", size, radix)
				} else {
					require.Len(t, recvFrom, 1, "rank %d must receive once (size=%d radix=%d)", rank, size, radix)
				}
				for _, dst := range sendTo {
					require.Less(t, dst, size)
					sends[dst] = append(sends[dst], rank)
				}
			}
			for rank := 1; rank < size; rank++ {
				recvFrom, _ := comm.CubeBcastPattern(size, rank, radix)
				require.Equal(t, []int{recvFrom[0]}, sends[rank],
					"rank %d parent mismatch (size=%d radix=%d)", rank, size, radix)
			}
		}
	}
}

// TestCubeReduceIsDual checks that the reduce pattern mirrors the
// broadcast pattern edge for edge.
func TestCubeReduceIsDual(t *testing.T) {
	for _, radix := range []int{2, 3} {
		for size := 1; size <= 13; size++ {
			for rank := 0; rank < size; rank++ {
				bRecv, bSend := comm.CubeBcastPattern(size, rank, radix)
				rRecv, rSend := comm.CubeReducePattern(size, rank, radix)
				require.ElementsMatch(t, bSend, rRecv, "size=%d radix=%d rank=%d", size, radix, rank)
				require.ElementsMatch(t, bRecv, rSend, "size=%d radix=%d rank=%d", size, radix, rank)
			}
		}
	}
}

// TestMakeTagLayout verifies the (salt << 16) | subtag wire format.
func TestMakeTagLayout(t *testing.T) {
	tag := comm.MakeTag(comm.SaltBcast, 0x00AB)
	require.Equal(t, 0x100AB, tag)
	require.Panics(t, func() { comm.MakeTag(comm.SaltBcast, 1<<16) })
}

// TestTagSpaceCollision verifies reservation semantics.
func TestTagSpaceCollision(t *testing.T) {
	ts := comm.NewTagSpace()
	tag := comm.MakeTag(comm.SaltReduce, 7)
	require.NoError(t, ts.Reserve(tag))
	require.ErrorIs(t, ts.Reserve(tag), comm.ErrTagCollision)
	ts.Release(tag)
	require.NoError(t, ts.Reserve(tag))
}
