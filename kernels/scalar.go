// Package kernels: generic scalar arithmetic shared by the reference
// kernels. The type switches monomorphise away per instantiation.

package kernels

import (
	"math"

	"github.com/tilemesh/tilemesh/tile"
)

// conjOf returns the conjugate; real types pass through.
func conjOf[T tile.Scalar](v T) T { return tile.Conj(v) }

// realOf returns the real part as float64.
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

// fromFloat converts a real value into T with zero imaginary part.
func fromFloat[T tile.Scalar](x float64) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(float32(x)).(T)
	case float64:
		return any(x).(T)
	case complex64:
		return any(complex(float32(x), 0)).(T)
	case complex128:
		return any(complex(x, 0)).(T)
	default:
		return zero
	}
}

// absSq returns |v|² as float64.
func absSq[T tile.Scalar](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		return float64(x) * float64(x)
	case float64:
		return x * x
	case complex64:
		return float64(real(x))*float64(real(x)) + float64(imag(x))*float64(imag(x))
	case complex128:
		return real(x)*real(x) + imag(x)*imag(x)
	default:
		return 0
	}
}

// sqrt aliases math.Sqrt.
func sqrt(x float64) float64 { return math.Sqrt(x) }

// norm2 returns the Euclidean norm of v.
func norm2[T tile.Scalar](v []T) float64 {
	sum := 0.0
	for _, x := range v {
		sum += absSq(x)
	}
	return math.Sqrt(sum)
}
