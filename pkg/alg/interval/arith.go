package interval

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Bounds returns the smallest and largest values of K.
func Bounds[K constraints.Signed]() (lo, hi K) {
	var zero K

	half := K(1) << (unsafe.Sizeof(zero)*8 - 2)
	hi = half - 1 + half

	return -hi - 1, hi
}

// Sub returns a-b, clamped to the range of K instead of wrapping.
func Sub[K constraints.Signed](a, b K) K {
	d := a - b

	switch {
	case b > 0 && d > a:
		lo, _ := Bounds[K]()

		return lo
	case b < 0 && d < a:
		_, hi := Bounds[K]()

		return hi
	default:
		return d
	}
}

// Midpoint returns floor((a+b)/2) without overflow.
func Midpoint[K constraints.Signed](a, b K) K {
	return a>>1 + b>>1 + a&b&1
}
