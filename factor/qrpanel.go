// Package factor: panel stacks and the triangle-triangle tree for QR.
//
// A panel is one block-column being factored. Each rank of the process
// column stacks its local tiles into dense column-major scratch, factors
// or updates the stack as a unit, and scatters it back; the per-rank R
// triangles then combine pairwise up a binary tree (ttqrt), whose shape is
// fixed by the sorted list of each rank's top-most row.

package factor

import (
	"fmt"

	"github.com/tilemesh/tilemesh/catalog"
	"github.com/tilemesh/tilemesh/comm"
	"github.com/tilemesh/tilemesh/matrix"
	"github.com/tilemesh/tilemesh/tile"
)

// TriangularFactors carries the block-reflector T factors of a QR
// factorization: Local from the per-rank panel factorizations, Reduce
// from the triangle-triangle reduction tree. Same distribution as A;
// Reduce's tile (k, k) is never allocated (the root of the tree).
type TriangularFactors[T tile.Scalar] struct {
	Local  matrix.Matrix[T]
	Reduce matrix.Matrix[T]
}

// stack is one rank's dense copy of its panel-column tiles.
type stack[T tile.Scalar] struct {
	rows    []int // tile rows, ascending
	heights []int
	total   int
	width   int
	data    []T // total×width, column-major
}

// localRows lists the rows in [i1, mt) whose tile in column col this rank
// owns.
func localRows[T tile.Scalar](a matrix.Matrix[T], i1, col int) []int {
	var rows []int
	for i := i1; i < a.Mt(); i++ {
		if a.TileIsLocal(i, col) {
			rows = append(rows, i)
		}
	}
	return rows
}

// gatherStack copies tiles (rows, col) of a into dense scratch. mode
// governs the coherence acquire (Read for V stacks, ReadWrite for data).
func gatherStack[T tile.Scalar](a matrix.Matrix[T], rows []int, col int, mode catalog.AccessMode) (*stack[T], error) {
	st := &stack[T]{rows: rows, width: a.TileNb(col)}
	for _, i := range rows {
		h := a.TileMb(i)
		st.heights = append(st.heights, h)
		st.total += h
	}
	st.data = make([]T, st.total*st.width)
	off := 0
	for r, i := range rows {
		t, err := a.Tile(i, col, tile.Host, mode, tile.ColMajor)
		if err != nil {
			return nil, err
		}
		for j := 0; j < st.width; j++ {
			for ii := 0; ii < st.heights[r]; ii++ {
				st.data[off+ii+j*st.total] = t.At(ii, j)
			}
		}
		off += st.heights[r]
	}
	return st, nil
}

// scatterStack writes the dense scratch back into its tiles.
func scatterStack[T tile.Scalar](a matrix.Matrix[T], st *stack[T], col int) error {
	off := 0
	for r, i := range st.rows {
		t, err := a.Tile(i, col, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		for j := 0; j < st.width; j++ {
			for ii := 0; ii < st.heights[r]; ii++ {
				t.SetAt(ii, j, st.data[off+ii+j*st.total])
			}
		}
		off += st.heights[r]
	}
	return nil
}

// firstRows returns, for panel column k, each participating rank's
// top-most row, sorted by row index. The first entry is the tree root.
func firstRows[T tile.Scalar](a matrix.Matrix[T], k int) []int {
	seen := make(map[int]bool)
	var rows []int
	for i := k; i < a.Mt(); i++ {
		r := a.TileRank(i, k)
		if !seen[r] {
			seen[r] = true
			rows = append(rows, i)
		}
	}
	return rows
}

// treePairs returns the ttqrt combination order for the given top rows:
// leaves first, root last, each pair (dst, src) combining src's triangle
// into dst's.
func treePairs(tops []int) [][2]int {
	var pairs [][2]int
	for step := 1; step < len(tops); step *= 2 {
		for idx := 0; idx+step < len(tops); idx += 2 * step {
			pairs = append(pairs, [2]int{tops[idx], tops[idx+step]})
		}
	}
	return pairs
}

// ttqrtPair combines the R triangle at row iSrc into the one at row iDst
// for panel column k, storing the new reflectors and T factor at the
// source row.
func (d *driver[T]) ttqrtPair(a matrix.Matrix[T], tf TriangularFactors[T], k, iDst, iSrc int) error {
	me := a.Rank()
	dstRank := a.TileRank(iDst, k)
	srcRank := a.TileRank(iSrc, k)
	if me != dstRank && me != srcRank {
		return nil
	}
	width := a.TileNb(k)
	tag := comm.StepColumnTag(comm.SaltReduce, k, iSrc, a.Mt())

	if dstRank == srcRank {
		a1, err := a.Tile(iDst, k, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		a2, err := a.Tile(iSrc, k, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		t, err := tf.Reduce.Tile(iSrc, k, tile.Host, catalog.Write, tile.ColMajor)
		if err != nil {
			return err
		}
		d.blas.Ttqrt(a1, a2, t)
		return nil
	}

	if me == srcRank {
		a2, err := a.Tile(iSrc, k, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		buf := make([]T, width*width)
		packUpper(a2, width, buf)
		if err := a.Transport().Send(d.ctx, dstRank, tag, buf); err != nil {
			return err
		}
		// The combined reflectors and T factor come back.
		if err := a.Transport().Recv(d.ctx, dstRank, tag, buf); err != nil {
			return err
		}
		unpackUpper(a2, width, buf)
		t, err := tf.Reduce.Tile(iSrc, k, tile.Host, catalog.Write, tile.ColMajor)
		if err != nil {
			return err
		}
		if err := a.Transport().Recv(d.ctx, dstRank, tag, buf); err != nil {
			return err
		}
		t.Unpack(buf[:t.PackLen()], tile.ColMajor)
		return nil
	}

	// Destination side: combine the received triangle into the local one.
	a1, err := a.Tile(iDst, k, tile.Host, catalog.ReadWrite, tile.ColMajor)
	if err != nil {
		return err
	}
	buf := make([]T, width*width)
	if err := a.Transport().Recv(d.ctx, srcRank, tag, buf); err != nil {
		return err
	}
	scratchA2 := tile.New(width, width, make([]T, width*width), width, tile.ColMajor, tile.Host)
	unpackUpper(scratchA2, width, buf)
	scratchT := tile.New(width, width, make([]T, width*width), width, tile.ColMajor, tile.Host)
	d.blas.Ttqrt(a1, scratchA2, scratchT)

	packUpper(scratchA2, width, buf)
	if err := a.Transport().Send(d.ctx, srcRank, tag, buf); err != nil {
		return err
	}
	scratchT.Pack(buf)
	return a.Transport().Send(d.ctx, srcRank, tag, buf)
}

// ttmqrPair applies the reflectors at row iSrc of panel k to the row pair
// (iDst, iSrc) of column j of c. The owner of the source row computes.
func (d *driver[T]) ttmqrPair(trans bool, a matrix.Matrix[T], tf TriangularFactors[T], c matrix.Matrix[T], k, j, iDst, iSrc int) error {
	me := c.Rank()
	dstRank := c.TileRank(iDst, j)
	srcRank := c.TileRank(iSrc, j)
	if me != dstRank && me != srcRank {
		return nil
	}
	tag := comm.StepColumnTag(comm.SaltSwap, k*c.Nt()+j, iSrc, a.Mt())

	if dstRank == srcRank {
		c1, err := c.Tile(iDst, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		c2, err := c.Tile(iSrc, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		a2, err := a.Tile(iSrc, k, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		t, err := tf.Reduce.Tile(iSrc, k, tile.Host, catalog.Read, tile.ColMajor)
		if err != nil {
			return err
		}
		d.blas.Ttmqr(trans, a2, t, c1, c2)
		return nil
	}

	if me == dstRank {
		c1, err := c.Tile(iDst, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
		if err != nil {
			return err
		}
		buf := make([]T, c1.PackLen())
		c1.Pack(buf)
		if err := c.Transport().Send(d.ctx, srcRank, tag, buf); err != nil {
			return err
		}
		if err := c.Transport().Recv(d.ctx, srcRank, tag, buf); err != nil {
			return err
		}
		c1.Unpack(buf, tile.ColMajor)
		return nil
	}

	// Source side holds the reflectors; it computes both halves.
	c2, err := c.Tile(iSrc, j, tile.Host, catalog.ReadWrite, tile.ColMajor)
	if err != nil {
		return err
	}
	a2, err := a.Tile(iSrc, k, tile.Host, catalog.Read, tile.ColMajor)
	if err != nil {
		return err
	}
	t, err := tf.Reduce.Tile(iSrc, k, tile.Host, catalog.Read, tile.ColMajor)
	if err != nil {
		return err
	}
	mb1, nb1 := c.TileMb(iDst), c.TileNb(j)
	buf := make([]T, mb1*nb1)
	if err := c.Transport().Recv(d.ctx, dstRank, tag, buf); err != nil {
		return err
	}
	c1 := tile.New(mb1, nb1, make([]T, mb1*nb1), mb1, tile.ColMajor, tile.Host)
	c1.Unpack(buf, tile.ColMajor)
	d.blas.Ttmqr(trans, a2, t, c1, c2)
	c1.Pack(buf)
	return c.Transport().Send(d.ctx, dstRank, tag, buf)
}

// packUpper serialises the upper triangle of a width×width tile; the rest
// of the buffer is zeroed.
func packUpper[T tile.Scalar](t tile.Tile[T], width int, buf []T) {
	for j := 0; j < width; j++ {
		for i := 0; i < width; i++ {
			if i <= j {
				buf[i+j*width] = t.At(i, j)
			} else {
				buf[i+j*width] = *new(T)
			}
		}
	}
}

// unpackUpper restores only the upper triangle, preserving the strict
// lower part of the destination.
func unpackUpper[T tile.Scalar](t tile.Tile[T], width int, buf []T) {
	for j := 0; j < width; j++ {
		for i := 0; i <= j; i++ {
			t.SetAt(i, j, buf[i+j*width])
		}
	}
}

// geqrfPanel factors this rank's stack of panel column k and forms the
// local T factor. Ranks with no local rows return immediately.
func (d *driver[T]) geqrfPanel(a matrix.Matrix[T], tf TriangularFactors[T], k int) error {
	rows := localRows(a, k, k)
	if len(rows) == 0 {
		return nil
	}
	st, err := gatherStack(a, rows, k, catalog.ReadWrite)
	if err != nil {
		return err
	}
	width := st.width
	tau := make([]T, width)

	// Blocked panel: factor ib columns unblocked, then apply their
	// reflectors to the rest of the panel, splitting the trailing columns
	// over the nested panel threads.
	ib := d.opts.innerBlocking
	for jb := 0; jb < width; jb += ib {
		w := min(ib, width-jb)
		sub := st.data[jb+jb*st.total:]
		d.blas.Geqr2(st.total-jb, w, sub, st.total, tau[jb:jb+w])
		rest := width - jb - w
		if rest == 0 {
			continue
		}
		nested := d.rt.Nested(d.opts.maxPanelThreads)
		chunk := max((rest+d.opts.maxPanelThreads-1)/d.opts.maxPanelThreads, 1)
		for c0 := jb + w; c0 < width; c0 += chunk {
			c0 := c0
			cols := min(chunk, width-c0)
			nested.Go(func() error {
				d.blas.Unmqr2(true, st.total-jb, cols, w, sub, st.total, tau[jb:jb+w],
					st.data[jb+c0*st.total:], st.total)
				return nil
			})
		}
		if err := nested.Wait(); err != nil {
			return err
		}
	}

	// Local T factor, stored in the top tile's slot of Tlocal.
	tl, err := tf.Local.Tile(rows[0], k, tile.Host, catalog.Write, tile.ColMajor)
	if err != nil {
		return err
	}
	tdense := make([]T, width*width)
	d.blas.Larft(st.total, width, st.data, st.total, tau, tdense, width)
	for j := 0; j < width; j++ {
		for i := 0; i <= j; i++ {
			tl.SetAt(i, j, tdense[i+j*width])
		}
	}
	return scatterStack(a, st, k)
}

// unmqrStack applies this rank's local panel reflectors to its stack of
// column j: Qᴴ for trans true, Q for trans false.
func (d *driver[T]) unmqrStack(trans bool, a matrix.Matrix[T], tf TriangularFactors[T], c matrix.Matrix[T], k, j int) error {
	rows := localRows(c, k, j)
	if len(rows) == 0 {
		return nil
	}
	v, err := gatherStack(a, rows, k, catalog.Read)
	if err != nil {
		return err
	}
	cs, err := gatherStack(c, rows, j, catalog.ReadWrite)
	if err != nil {
		return err
	}
	width := v.width
	tl, err := tf.Local.Tile(rows[0], k, tile.Host, catalog.Read, tile.ColMajor)
	if err != nil {
		return err
	}
	tau := make([]T, width)
	for kk := 0; kk < width; kk++ {
		tau[kk] = tl.At(kk, kk)
	}
	d.blas.Unmqr2(trans, cs.total, cs.width, width, v.data, v.total, tau, cs.data, cs.total)
	return scatterStack(c, cs, j)
}

// checkSameGrid guards drivers that walk two matrices in lockstep.
func checkSameGrid[T tile.Scalar](a, c matrix.Matrix[T]) error {
	ap, aq := a.Grid()
	cp, cq := c.Grid()
	if ap != cp || aq != cq {
		return fmt.Errorf("factor: operand grids %dx%d and %dx%d differ: %w", ap, aq, cp, cq, matrix.ErrInvalidDim)
	}
	return nil
}
