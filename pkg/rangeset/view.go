package rangeset

import "iter"

// View is a logical concatenation of segment slices. It shares memory with
// the segments it was built from; segments are immutable, so a view stays
// valid after the set changes but does not observe later additions.
type View[T any] struct {
	chunks [][]T
	n      int
}

func (v *View[T]) append(chunk []T) {
	if len(chunk) == 0 {
		return
	}

	v.chunks = append(v.chunks, chunk)
	v.n += len(chunk)
}

// Len returns the number of records.
func (v View[T]) Len() int { return v.n }

// SegmentCount returns the number of underlying slices.
func (v View[T]) SegmentCount() int { return len(v.chunks) }

// All yields the records in key order. Each call starts a new traversal.
func (v View[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, chunk := range v.chunks {
			for _, r := range chunk {
				if !yield(r) {
					return
				}
			}
		}
	}
}

// Chunks yields the underlying slices. Callers must not modify them.
func (v View[T]) Chunks() iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		for _, chunk := range v.chunks {
			if !yield(chunk) {
				return
			}
		}
	}
}

// Collect copies the records into a new slice.
func (v View[T]) Collect() []T {
	out := make([]T, 0, v.n)
	for _, chunk := range v.chunks {
		out = append(out, chunk...)
	}

	return out
}
