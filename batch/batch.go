// Package batch: group marshalling.

package batch

import (
	"errors"

	"github.com/tilemesh/tilemesh/kernels"
	"github.com/tilemesh/tilemesh/tile"
)

// MaxGroups bounds the distinct (mb, nb, stride, diagonal) groups of one
// batched call.
const MaxGroups = 8

// ErrTooManyGroups indicates a batched call with more than MaxGroups
// distinct tile shapes.
var ErrTooManyGroups = errors.New("batch: too many groups in one call")

// Entry is one batched-GEMM operand triple. The tiles must already be
// coherent at the target memory when the batch flushes.
type Entry[T tile.Scalar] struct {
	A, B, C tile.Tile[T]
}

// groupKey distinguishes batch groups: kernels with different extents,
// strides, or diagonal behaviour cannot share a launch.
type groupKey struct {
	mb, nb, stride int
	onDiagonal     bool
}

// Group is one homogeneous slice of a batch.
type Group[T tile.Scalar] struct {
	Mb, Nb, Stride int
	OnDiagonal     bool
	Entries        []Entry[T]
}

// Marshaller accumulates one batched call for one device.
type Marshaller[T tile.Scalar] struct {
	mem    tile.Memory
	order  []groupKey
	groups map[groupKey]*Group[T]
}

// NewMarshaller starts an empty batch for mem.
func NewMarshaller[T tile.Scalar](mem tile.Memory) *Marshaller[T] {
	return &Marshaller[T]{mem: mem, groups: make(map[groupKey]*Group[T])}
}

// Memory returns the target memory of this batch.
func (m *Marshaller[T]) Memory() tile.Memory { return m.mem }

// Add appends an entry, grouping by the C tile's extents and stride plus
// the diagonal flag.
// Complexity: O(1).
func (m *Marshaller[T]) Add(e Entry[T], onDiagonal bool) error {
	key := groupKey{mb: e.C.Mb(), nb: e.C.Nb(), stride: e.C.Stride(), onDiagonal: onDiagonal}
	g := m.groups[key]
	if g == nil {
		if len(m.order) == MaxGroups {
			return ErrTooManyGroups
		}
		g = &Group[T]{Mb: key.mb, Nb: key.nb, Stride: key.stride, OnDiagonal: key.onDiagonal}
		m.groups[key] = g
		m.order = append(m.order, key)
	}
	g.Entries = append(g.Entries, e)
	return nil
}

// Len returns the number of collected entries.
func (m *Marshaller[T]) Len() int {
	total := 0
	for _, g := range m.groups {
		total += len(g.Entries)
	}
	return total
}

// FlushGemm launches one batched GEMM per non-empty group on q and
// synchronises the queue before returning, so the enclosing task completes
// only after the device work does. Diagonal groups run Herk on the stored
// triangle instead.
func (m *Marshaller[T]) FlushGemm(q *Queue, blas kernels.Blas[T], alpha T, beta T, uplo tile.Uplo) error {
	for _, key := range m.order {
		g := m.groups[key]
		q.Submit(func() {
			for _, e := range g.Entries {
				if g.OnDiagonal {
					blas.Herk(uplo, realOf(alpha), e.A, realOf(beta), e.C)
				} else {
					blas.Gemm(alpha, e.A, e.B, beta, e.C)
				}
			}
		})
	}
	q.Sync()
	m.order = m.order[:0]
	clear(m.groups)
	return nil
}

// realOf truncates a scalar to its real part for the Herk scaling factors.
func realOf[T tile.Scalar](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case complex64:
		return float64(real(x))
	case complex128:
		return real(x)
	default:
		return 0
	}
}
