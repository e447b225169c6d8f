// Package segment implements immutable, strictly ascending runs of keyed
// records and the k-way merge that combines overlapping runs.
package segment

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/exp/constraints"

	"github.com/Sumatoshi-tech/seriescache/pkg/alg/interval"
)

// Sentinel errors.
var (
	// ErrEmptySegment is returned when a segment would hold no records.
	ErrEmptySegment = errors.New("segment: no records")
	// ErrUnsorted is returned when input keys are not strictly ascending.
	ErrUnsorted = errors.New("segment: keys are not strictly ascending")
	// ErrDuplicateKey is matched by every *DuplicateKeyError.
	ErrDuplicateKey = errors.New("segment: duplicate key")
	// ErrUnknownMode is returned for an OverwriteMode outside the defined set.
	ErrUnknownMode = errors.New("segment: unknown overwrite mode")
)

// KeyFunc extracts the ordering key of a record. It must be pure.
type KeyFunc[T any, K constraints.Signed] func(T) K

// DuplicateKeyError reports a key present in more than one merge input
// under OverwriteError.
type DuplicateKeyError[K constraints.Signed] struct {
	Key K
}

// Error implements error.
func (e *DuplicateKeyError[K]) Error() string {
	return fmt.Sprintf("segment: duplicate key %d", e.Key)
}

// Unwrap returns ErrDuplicateKey.
func (e *DuplicateKeyError[K]) Unwrap() error {
	return ErrDuplicateKey
}

// Segment is an immutable run of records with strictly ascending keys.
type Segment[T any, K constraints.Signed] struct {
	records []T
	keyOf   KeyFunc[T, K]
	min     K
	max     K
}

// New builds a segment from a copy of records, which must be non-empty and
// strictly ascending by key.
func New[T any, K constraints.Signed](records []T, keyOf KeyFunc[T, K]) (*Segment[T, K], error) {
	if len(records) == 0 {
		return nil, ErrEmptySegment
	}

	prev := keyOf(records[0])

	for i := 1; i < len(records); i++ {
		key := keyOf(records[i])
		if key <= prev {
			return nil, fmt.Errorf("%w: key %d at position %d follows %d", ErrUnsorted, key, i, prev)
		}

		prev = key
	}

	return fromSorted(slices.Clone(records), keyOf), nil
}

func fromSorted[T any, K constraints.Signed](records []T, keyOf KeyFunc[T, K]) *Segment[T, K] {
	return &Segment[T, K]{
		records: records,
		keyOf:   keyOf,
		min:     keyOf(records[0]),
		max:     keyOf(records[len(records)-1]),
	}
}

// Min returns the first key.
func (s *Segment[T, K]) Min() K { return s.min }

// Max returns the last key.
func (s *Segment[T, K]) Max() K { return s.max }

// Center returns floor((min+max)/2) without overflow.
func (s *Segment[T, K]) Center() K { return interval.Midpoint(s.min, s.max) }

// Len returns the number of records.
func (s *Segment[T, K]) Len() int { return len(s.records) }

// At returns the i-th record.
func (s *Segment[T, K]) At(i int) T { return s.records[i] }

// KeyOf returns the key function the segment was built with.
func (s *Segment[T, K]) KeyOf() KeyFunc[T, K] { return s.keyOf }

// Records returns the backing records. Callers must not modify them.
func (s *Segment[T, K]) Records() []T {
	return s.records[:len(s.records):len(s.records)]
}

// Slice returns records[from:to] without copying. Callers must not modify it.
func (s *Segment[T, K]) Slice(from, to int) []T {
	return s.records[from:to:to]
}

// Relation classifies the segment bounds against [low, high].
func (s *Segment[T, K]) Relation(low, high K) interval.Relation[K] {
	return interval.Classify(s.min, s.max, low, high)
}

// Lookup is the outcome of PositionOf.
type Lookup int

// Lookup outcomes.
const (
	// OutOfRange means the key lies outside [Min, Max].
	OutOfRange Lookup = iota
	// Missing means the key lies within bounds but no record carries it.
	Missing
	// Found means a record with the key exists.
	Found
)

// PositionOf locates key. For Found the index is the record position, for
// Missing it is the position where the key would be inserted, and for
// OutOfRange it is -1.
func (s *Segment[T, K]) PositionOf(key K) (int, Lookup) {
	if interval.Locate(key, s.min, s.max) != interval.Within {
		return -1, OutOfRange
	}

	idx, found := slices.BinarySearchFunc(s.records, key, func(r T, k K) int {
		return cmp.Compare(s.keyOf(r), k)
	})
	if found {
		return idx, Found
	}

	return idx, Missing
}

// Merge combines s with newer. Duplicates are resolved by mode, with s as
// the older input.
func (s *Segment[T, K]) Merge(newer *Segment[T, K], mode OverwriteMode) (*Segment[T, K], error) {
	return Merge(mode, s.keyOf, s.records, newer.records)
}
