// Package interval classifies the relationship between two closed integer
// intervals [min1, max1] and [min2, max2] and measures the gap between them
// when they are disjoint.
//
// All functions require min <= max for both intervals. The precondition is
// only checked in binaries built with the "intervaldebug" build tag, where a
// violation panics with ErrInvertedInterval. Release builds skip the check and
// return an unspecified Relation for inverted input.
package interval

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// ErrInvertedInterval is the panic value raised by debug builds when an
// interval has min > max.
var ErrInvertedInterval = errors.New("interval min is greater than max")

// Kind is the relationship of interval 1 relative to interval 2.
// Every intersecting kind compares greater than or equal to IntersectLow.
type Kind int

// Relationship kinds.
const (
	// Below means interval 1 ends before interval 2 starts.
	Below Kind = iota
	// Above means interval 1 starts after interval 2 ends.
	Above
	// IntersectLow means interval 1 starts below interval 2 and ends inside it.
	IntersectLow
	// IntersectHigh means interval 1 starts inside interval 2 and ends above it.
	IntersectHigh
	// Inside means interval 1 lies within interval 2, boundaries inclusive.
	Inside
	// Outside means interval 2 lies within interval 1.
	Outside
)

var kindNames = [...]string{
	Below:         "below",
	Above:         "above",
	IntersectLow:  "intersect_low",
	IntersectHigh: "intersect_high",
	Inside:        "inside",
	Outside:       "outside",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}

	return kindNames[k]
}

// Relation is the result of Classify. Distance is the gap between the nearer
// pair of endpoints for Below and Above, and zero otherwise. A gap wider than
// K can hold is reported as the largest K.
type Relation[K constraints.Signed] struct {
	Kind     Kind
	Distance K
}

// IsIntersection reports whether the intervals share at least one point.
func (r Relation[K]) IsIntersection() bool {
	return r.Kind >= IntersectLow
}

// Within reports whether the intervals intersect or are separated by no more
// than mergeDistance.
func (r Relation[K]) Within(mergeDistance K) bool {
	return r.IsIntersection() || r.Distance <= mergeDistance
}

// Classify returns the relationship of [min1, max1] to [min2, max2].
// Identical intervals classify as Inside.
func Classify[K constraints.Signed](min1, max1, min2, max2 K) Relation[K] {
	checkOrdered(min1, max1)
	checkOrdered(min2, max2)

	if min1 < min2 {
		switch {
		case max1 < min2:
			return Relation[K]{Kind: Below, Distance: Sub(min2, max1)}
		case max1 < max2:
			return Relation[K]{Kind: IntersectLow}
		default:
			return Relation[K]{Kind: Outside}
		}
	}

	switch {
	case min1 > max2:
		return Relation[K]{Kind: Above, Distance: Sub(min1, max2)}
	case max1 > max2:
		return Relation[K]{Kind: IntersectHigh}
	default:
		return Relation[K]{Kind: Inside}
	}
}

// Position is the location of a key relative to an interval.
type Position int

// Key positions.
const (
	Before Position = iota - 1
	Within
	After
)

// Locate returns where key lies relative to [low, high].
func Locate[K constraints.Signed](key, low, high K) Position {
	checkOrdered(low, high)

	switch {
	case key < low:
		return Before
	case key > high:
		return After
	default:
		return Within
	}
}

func checkOrdered[K constraints.Signed](low, high K) {
	if debugChecks && low > high {
		panic(fmt.Errorf("%w: [%d, %d]", ErrInvertedInterval, low, high))
	}
}
