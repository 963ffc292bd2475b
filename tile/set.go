// Package tile: constant fills and scaling over the meaningful region.

package tile

// Fill writes offdiag to every off-diagonal element and diag to every
// diagonal element of the stored region, honouring uplo: Upper touches only
// j ≥ i, Lower only j ≤ i, General the whole tile. Op is ignored; Fill acts
// on storage. Complexity: O(mb×nb).
func (t Tile[T]) Fill(offdiag, diag T) {
	for j := 0; j < t.nb; j++ {
		lo, hi := 0, t.mb
		switch t.uplo {
		case Upper:
			hi = min(j+1, t.mb)
		case Lower:
			lo = j
		}
		for i := lo; i < hi; i++ {
			if i == j {
				t.data[t.index(i, j)] = diag
			} else {
				t.data[t.index(i, j)] = offdiag
			}
		}
	}
}

// Scale multiplies every element of the stored region by alpha, honouring
// uplo the same way Fill does. Complexity: O(mb×nb).
func (t Tile[T]) Scale(alpha T) {
	for j := 0; j < t.nb; j++ {
		lo, hi := 0, t.mb
		switch t.uplo {
		case Upper:
			hi = min(j+1, t.mb)
		case Lower:
			lo = j
		}
		for i := lo; i < hi; i++ {
			t.data[t.index(i, j)] *= alpha
		}
	}
}

// ScaleRowsCols multiplies stored element (i, j) by rowScale[i]*colScale[j].
// Either slice may be nil to skip that factor. Honours uplo like Fill.
func (t Tile[T]) ScaleRowsCols(rowScale, colScale []T) {
	for j := 0; j < t.nb; j++ {
		lo, hi := 0, t.mb
		switch t.uplo {
		case Upper:
			hi = min(j+1, t.mb)
		case Lower:
			lo = j
		}
		for i := lo; i < hi; i++ {
			v := t.data[t.index(i, j)]
			if rowScale != nil {
				v *= rowScale[i]
			}
			if colScale != nil {
				v *= colScale[j]
			}
			t.data[t.index(i, j)] = v
		}
	}
}
