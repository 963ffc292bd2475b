// Package tile: data movement between tiles and packed buffers.

package tile

// CopyTo copies the logical contents of t into dst, converting layout and
// op as needed. Both tiles keep their own geometry; only element values
// move. Scalar type is fixed by construction.
//
// Returns ErrShapeMismatch when the logical extents differ.
// Complexity: O(mb×nb); the fast path is a column/row-wise copy.
func (t Tile[T]) CopyTo(dst Tile[T]) error {
	m, n := t.Mb(), t.Nb()
	if dst.Mb() != m || dst.Nb() != n {
		return ErrShapeMismatch
	}
	// Fast path: identical storage interpretation on both sides.
	if t.op == NoTrans && dst.op == NoTrans && t.layout == dst.layout {
		if t.layout == ColMajor {
			for j := 0; j < n; j++ {
				copy(dst.data[j*dst.stride:j*dst.stride+m], t.data[j*t.stride:j*t.stride+m])
			}
		} else {
			for i := 0; i < m; i++ {
				copy(dst.data[i*dst.stride:i*dst.stride+n], t.data[i*t.stride:i*t.stride+n])
			}
		}
		return nil
	}
	// Slow path performs the transpose or layout conversion element-wise.
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			dst.SetAt(i, j, t.At(i, j))
		}
	}
	return nil
}

// PackLen returns the element count of a packed image of t.
func (t Tile[T]) PackLen() int { return t.mb * t.nb }

// Pack writes the stored contents of t into buf contiguously in the tile's
// own layout, ignoring op. Used to serialise a tile for messaging; the
// receiver restores it with Unpack into a tile of the same extents.
//
// PRECONDITION: len(buf) ≥ PackLen(). Complexity: O(mb×nb).
func (t Tile[T]) Pack(buf []T) {
	if t.layout == ColMajor {
		for j := 0; j < t.nb; j++ {
			copy(buf[j*t.mb:(j+1)*t.mb], t.data[j*t.stride:j*t.stride+t.mb])
		}
	} else {
		for i := 0; i < t.mb; i++ {
			copy(buf[i*t.nb:(i+1)*t.nb], t.data[i*t.stride:i*t.stride+t.nb])
		}
	}
}

// Unpack restores contents packed by Pack on a tile of extents mb×nb with
// layout srcLayout, converting to t's layout when they differ.
//
// PRECONDITION: len(buf) ≥ PackLen(). Complexity: O(mb×nb).
func (t Tile[T]) Unpack(buf []T, srcLayout Layout) {
	if srcLayout == t.layout {
		if t.layout == ColMajor {
			for j := 0; j < t.nb; j++ {
				copy(t.data[j*t.stride:j*t.stride+t.mb], buf[j*t.mb:(j+1)*t.mb])
			}
		} else {
			for i := 0; i < t.mb; i++ {
				copy(t.data[i*t.stride:i*t.stride+t.nb], buf[i*t.nb:(i+1)*t.nb])
			}
		}
		return
	}
	// Cross-layout restore transposes the packed image in place of a copy.
	for j := 0; j < t.nb; j++ {
		for i := 0; i < t.mb; i++ {
			var v T
			if srcLayout == ColMajor {
				v = buf[i+j*t.mb]
			} else {
				v = buf[i*t.nb+j]
			}
			t.data[t.index(i, j)] = v
		}
	}
}

// CopyRowOut copies stored row i (length nb, before op) into dst.
func (t Tile[T]) CopyRowOut(i int, dst []T) {
	if t.layout == RowMajor {
		copy(dst[:t.nb], t.data[i*t.stride:i*t.stride+t.nb])
		return
	}
	for j := 0; j < t.nb; j++ {
		dst[j] = t.data[i+j*t.stride]
	}
}

// CopyRowIn overwrites stored row i (length nb, before op) from src.
func (t Tile[T]) CopyRowIn(i int, src []T) {
	if t.layout == RowMajor {
		copy(t.data[i*t.stride:i*t.stride+t.nb], src[:t.nb])
		return
	}
	for j := 0; j < t.nb; j++ {
		t.data[i+j*t.stride] = src[j]
	}
}

// CopyColOut copies stored column j (length mb, before op) into dst.
func (t Tile[T]) CopyColOut(j int, dst []T) {
	if t.layout == ColMajor {
		copy(dst[:t.mb], t.data[j*t.stride:j*t.stride+t.mb])
		return
	}
	for i := 0; i < t.mb; i++ {
		dst[i] = t.data[i*t.stride+j]
	}
}

// CopyColIn overwrites stored column j (length mb, before op) from src.
func (t Tile[T]) CopyColIn(j int, src []T) {
	if t.layout == ColMajor {
		copy(t.data[j*t.stride:j*t.stride+t.mb], src[:t.mb])
		return
	}
	for i := 0; i < t.mb; i++ {
		t.data[i*t.stride+j] = src[i]
	}
}

// SwapRows exchanges stored row ia of a with stored row ib of b. The tiles
// must have equal nb. Used by the pivot engine for local swaps.
func SwapRows[T Scalar](a Tile[T], ia int, b Tile[T], ib int) {
	for j := 0; j < a.nb; j++ {
		va := a.data[a.index(ia, j)]
		a.data[a.index(ia, j)] = b.data[b.index(ib, j)]
		b.data[b.index(ib, j)] = va
	}
}
