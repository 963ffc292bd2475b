// Package kernels: Householder panel factorization, block-reflector
// application, and the triangle-triangle pair for reduction-tree QR.
//
// Reflectors follow the LAPACK convention: H = I − τ·v·vᴴ with v[0] = 1,
// and Hᴴ applied from the left during factorization, so A = Q·R with
// Q = H₀·H₁·…·H_{k−1}.

package kernels

import "github.com/tilemesh/tilemesh/tile"

// larfg generates a reflector for the vector (alpha, x): on return x holds
// v[1:], and the returned beta satisfies Hᴴ·(alpha, x) = (beta, 0).
// tau = 0 means H = I.
func larfg[T tile.Scalar](alpha T, x []T) (beta, tau T) {
	xnorm := norm2(x)
	ar := realOf(alpha)
	if xnorm == 0 && absSq(alpha) == ar*ar {
		// Nothing to annihilate and imag(alpha) is zero.
		return alpha, 0
	}
	b := sqrt(absSq(alpha) + xnorm*xnorm)
	if ar > 0 {
		b = -b
	}
	beta = fromFloat[T](b)
	tau = (beta - alpha) / beta
	scale := alpha - beta
	for i := range x {
		x[i] /= scale
	}
	return beta, tau
}

// Geqr2 factors the dense m×n column-major panel unblocked.
func (Ref[T]) Geqr2(m, n int, a []T, lda int, tau []T) {
	kmax := min(m, n)
	for k := 0; k < kmax; k++ {
		col := a[k+k*lda : m+k*lda]
		beta, t := larfg(col[0], col[1:])
		col[0] = beta
		tau[k] = t
		if t == 0 {
			continue
		}
		// Apply Hᴴ to the trailing columns.
		for j := k + 1; j < n; j++ {
			cj := a[k+j*lda : m+j*lda]
			w := cj[0]
			for i := 1; i < len(col); i++ {
				w += conjOf(col[i]) * cj[i]
			}
			w *= conjOf(t)
			cj[0] -= w
			for i := 1; i < len(col); i++ {
				cj[i] -= col[i] * w
			}
		}
	}
}

// Unmqr2 applies Q (trans false) or Qᴴ (trans true) from the left to the
// dense m×n matrix c, reflector by reflector.
func (Ref[T]) Unmqr2(trans bool, m, n, k int, v []T, ldv int, tau []T, c []T, ldc int) {
	apply := func(idx int) {
		t := tau[idx]
		if t == 0 {
			return
		}
		if trans {
			t = conjOf(t)
		}
		col := v[idx+idx*ldv : m+idx*ldv]
		for j := 0; j < n; j++ {
			cj := c[idx+j*ldc : m+j*ldc]
			w := cj[0]
			for i := 1; i < len(col); i++ {
				w += conjOf(col[i]) * cj[i]
			}
			w *= t
			cj[0] -= w
			for i := 1; i < len(col); i++ {
				cj[i] -= col[i] * w
			}
		}
	}
	if trans {
		for idx := 0; idx < k; idx++ {
			apply(idx)
		}
	} else {
		for idx := k - 1; idx >= 0; idx-- {
			apply(idx)
		}
	}
}

// Larft forms the upper-triangular block-reflector factor from reflectors
// stored in v/tau, forward columnwise: T[k,k] = τ_k and
// T[0:k, k] = −τ_k · T · (Vᴴ·v_k).
func (Ref[T]) Larft(m, k int, v []T, ldv int, tau []T, t []T, ldt int) {
	for kk := 0; kk < k; kk++ {
		t[kk+kk*ldt] = tau[kk]
		for i := 0; i < kk; i++ {
			// w_i = v_i ᴴ · v_kk, with the implicit unit diagonal.
			var w T
			w = conjOf(v[kk+i*ldv]) // v_i[kk] against v_kk[kk] = 1
			for r := kk + 1; r < m; r++ {
				w += conjOf(v[r+i*ldv]) * v[r+kk*ldv]
			}
			t[i+kk*ldt] = w
		}
		// T[0:kk, kk] = −τ_kk · T[0:kk,0:kk] · w, ascending so each row
		// reads only not-yet-overwritten entries.
		for i := 0; i < kk; i++ {
			var sum T
			for r := i; r < kk; r++ {
				sum += t[i+r*ldt] * t[r+kk*ldt]
			}
			t[i+kk*ldt] = sum
		}
		for i := 0; i < kk; i++ {
			t[i+kk*ldt] = -tau[kk] * t[i+kk*ldt]
		}
	}
}

// Ttqrt factors the stacked triangle pair [R1; R2]: R1's upper triangle
// receives the combined R; the new reflectors overwrite exactly R2's upper
// triangle (column k touches rows 0..k), leaving the strict lower part of
// a2 untouched; t receives the triangular T factor with tau on its
// diagonal.
func (Ref[T]) Ttqrt(a1, a2, t tile.Tile[T]) {
	n := a1.Nb()
	tau := make([]T, n)
	x := make([]T, n)
	for k := 0; k < n; k++ {
		// Reflector over (R1[k,k], R2[0:k+1, k]).
		for r := 0; r <= k; r++ {
			x[r] = a2.At(r, k)
		}
		beta, tk := larfg(a1.At(k, k), x[:k+1])
		a1.SetAt(k, k, beta)
		for r := 0; r <= k; r++ {
			a2.SetAt(r, k, x[r])
		}
		tau[k] = tk
		if tk == 0 {
			continue
		}
		// Apply Hᴴ to trailing columns of the pair.
		for j := k + 1; j < n; j++ {
			w := a1.At(k, j)
			for r := 0; r <= k; r++ {
				w += conjOf(a2.At(r, k)) * a2.At(r, j)
			}
			w *= conjOf(tk)
			a1.SetAt(k, j, a1.At(k, j)-w)
			for r := 0; r <= k; r++ {
				a2.SetAt(r, j, a2.At(r, j)-a2.At(r, k)*w)
			}
		}
	}
	// T factor: diagonal is tau; above, the forward recurrence with the
	// implicit identity top block (distinct top rows never overlap).
	for k := 0; k < n; k++ {
		t.SetAt(k, k, tau[k])
		for i := 0; i < k; i++ {
			var w T
			for r := 0; r <= min(i, k); r++ {
				w += conjOf(a2.At(r, i)) * a2.At(r, k)
			}
			t.SetAt(i, k, w)
		}
		for i := 0; i < k; i++ {
			var sum T
			for r := i; r < k; r++ {
				sum += t.At(i, r) * t.At(r, k)
			}
			t.SetAt(i, k, sum)
		}
		for i := 0; i < k; i++ {
			t.SetAt(i, k, -tau[k]*t.At(i, k))
		}
	}
}

// Ttmqr applies the Ttqrt reflectors to the stacked row pair [C1; C2]:
// Qᴴ for trans true (ascending), Q for trans false (descending). Only the
// diagonal of t (tau) drives the unblocked application.
func (Ref[T]) Ttmqr(trans bool, a2, t, c1, c2 tile.Tile[T]) {
	n := a2.Nb()
	ncols := c1.Nb()
	apply := func(k int) {
		tk := t.At(k, k)
		if tk == 0 {
			return
		}
		if trans {
			tk = conjOf(tk)
		}
		for j := 0; j < ncols; j++ {
			w := c1.At(k, j)
			for r := 0; r <= k; r++ {
				w += conjOf(a2.At(r, k)) * c2.At(r, j)
			}
			w *= tk
			c1.SetAt(k, j, c1.At(k, j)-w)
			for r := 0; r <= k; r++ {
				c2.SetAt(r, j, c2.At(r, j)-a2.At(r, k)*w)
			}
		}
	}
	if trans {
		for k := 0; k < n; k++ {
			apply(k)
		}
	} else {
		for k := n - 1; k >= 0; k-- {
			apply(k)
		}
	}
}
