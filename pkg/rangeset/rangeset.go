// Package rangeset maintains a coalescing set of non-overlapping segments.
//
// Segments are kept in an AVL tree ordered by their center key. Adding
// records absorbs every stored segment that intersects the new one or lies
// within the merge distance of it, so at any time no two stored segments
// overlap or sit closer than the distance used when they were added.
package rangeset

import (
	"cmp"
	"errors"
	"fmt"
	"iter"

	"golang.org/x/exp/constraints"

	"github.com/Sumatoshi-tech/seriescache/pkg/alg/avl"
	"github.com/Sumatoshi-tech/seriescache/pkg/alg/interval"
	"github.com/Sumatoshi-tech/seriescache/pkg/segment"
)

// Sentinel errors.
var (
	// ErrInvalidRange is returned when start > end.
	ErrInvalidRange = errors.New("rangeset: start is greater than end")
	// ErrEmptySet is returned by reads on a set with no segments.
	ErrEmptySet = errors.New("rangeset: set is empty")
)

// Gap is a closed key interval not covered by any segment.
type Gap[K constraints.Signed] struct {
	Start K `json:"start"`
	End   K `json:"end"`
}

// Settings carries the duplicate resolution policy.
type Settings struct {
	Overwrite segment.OverwriteMode
}

// Option configures a Set.
type Option func(*Settings)

// WithOverwriteMode sets how records with keys already stored are resolved.
// The default is segment.OverwriteError.
func WithOverwriteMode(mode segment.OverwriteMode) Option {
	return func(s *Settings) {
		s.Overwrite = mode
	}
}

// Set is a coalescing set of segments. It is not safe for concurrent use.
type Set[T any, K constraints.Signed] struct {
	tree     *avl.Tree[*segment.Segment[T, K], K]
	keyOf    segment.KeyFunc[T, K]
	settings Settings
	min      K
	max      K
	records  int
}

// New creates an empty set.
func New[T any, K constraints.Signed](keyOf segment.KeyFunc[T, K], opts ...Option) *Set[T, K] {
	s := &Set[T, K]{
		tree: avl.New(func(a, b *segment.Segment[T, K]) K {
			return K(cmp.Compare(a.Center(), b.Center()))
		}),
		keyOf: keyOf,
	}

	for _, opt := range opts {
		opt(&s.settings)
	}

	return s
}

// Settings returns the set configuration.
func (s *Set[T, K]) Settings() Settings { return s.settings }

// Len returns the number of segments.
func (s *Set[T, K]) Len() int { return s.tree.Len() }

// Records returns the number of stored records.
func (s *Set[T, K]) Records() int { return s.records }

// IsEmpty reports whether the set holds no segments.
func (s *Set[T, K]) IsEmpty() bool { return s.tree.Len() == 0 }

// Min returns the smallest stored key. Meaningless when the set is empty.
func (s *Set[T, K]) Min() K { return s.min }

// Max returns the largest stored key. Meaningless when the set is empty.
func (s *Set[T, K]) Max() K { return s.max }

// Segments yields stored segments in key order.
func (s *Set[T, K]) Segments() iter.Seq[*segment.Segment[T, K]] {
	return s.tree.All()
}

// Clear removes every segment.
func (s *Set[T, K]) Clear() {
	s.tree.Clear()
	s.min, s.max = 0, 0
	s.records = 0
}

// AddRange stores records, which must be strictly ascending by key. Stored
// segments intersecting the new records or separated from them by at most
// mergeDistance are merged with them into one segment; for duplicate keys
// the new records count as newest. Empty input is a no-op. On error the set
// is unchanged.
func (s *Set[T, K]) AddRange(records []T, mergeDistance K) error {
	if len(records) == 0 {
		return nil
	}

	added, err := segment.New(records, s.keyOf)
	if err != nil {
		return fmt.Errorf("add range: %w", err)
	}

	if s.tree.Len() == 0 {
		s.tree.Insert(added)
		s.min, s.max = added.Min(), added.Max()
		s.records = added.Len()

		return nil
	}

	var (
		absorbed []*avl.Node[*segment.Segment[T, K], K]
		inputs   [][]T
	)

	for n := s.firstReaching(interval.Sub(added.Min(), mergeDistance)); n != nil; n = n.Next() {
		rel := n.Value().Relation(added.Min(), added.Max())
		if !rel.Within(mergeDistance) {
			if rel.Kind == interval.Above {
				break
			}

			continue
		}

		absorbed = append(absorbed, n)
		inputs = append(inputs, n.Value().Records())
	}

	merged := added

	if len(absorbed) > 0 {
		merged, err = segment.Merge(s.settings.Overwrite, s.keyOf, append(inputs, added.Records())...)
		if err != nil {
			return fmt.Errorf("add range [%d, %d]: %w", added.Min(), added.Max(), err)
		}
	}

	for _, n := range absorbed {
		seg, removeErr := s.tree.Remove(n)
		if removeErr != nil {
			return fmt.Errorf("add range: %w", removeErr)
		}

		s.records -= seg.Len()
	}

	s.tree.Insert(merged)
	s.records += merged.Len()
	s.min = min(s.min, merged.Min())
	s.max = max(s.max, merged.Max())

	return nil
}

// GetGaps returns the ascending, minimal list of closed intervals within
// [start, end] not covered by any segment.
func (s *Set[T, K]) GetGaps(start, end K) ([]Gap[K], error) {
	if start > end {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}

	if s.IsEmpty() || end < s.min || start > s.max {
		return []Gap[K]{{Start: start, End: end}}, nil
	}

	var gaps []Gap[K]

	next := start

	for n := s.firstReaching(start); n != nil; n = n.Next() {
		seg := n.Value()
		if seg.Min() > end {
			break
		}

		if seg.Min() > next {
			gaps = append(gaps, Gap[K]{Start: next, End: seg.Min() - 1})
		}

		if seg.Max() >= end {
			return gaps, nil
		}

		next = seg.Max() + 1
	}

	return append(gaps, Gap[K]{Start: next, End: end}), nil
}

// GetRange returns a zero-copy view of the stored records with keys in
// [start, end].
func (s *Set[T, K]) GetRange(start, end K) (View[T], error) {
	if start > end {
		return View[T]{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}

	if s.IsEmpty() {
		return View[T]{}, ErrEmptySet
	}

	var view View[T]

	for n := s.firstReaching(start); n != nil; n = n.Next() {
		seg := n.Value()
		if seg.Min() > end {
			break
		}

		from := 0
		if seg.Min() < start {
			from, _ = seg.PositionOf(start)
		}

		to := seg.Len()

		if seg.Max() > end {
			idx, lookup := seg.PositionOf(end)

			to = idx
			if lookup == segment.Found {
				to++
			}
		}

		view.append(seg.Slice(from, to))
	}

	return view, nil
}

// firstReaching returns the first segment in order whose max is at least
// key, or nil. The nearest segment by center is only a starting point: a
// wide segment further left may still reach key.
func (s *Set[T, K]) firstReaching(key K) *avl.Node[*segment.Segment[T, K], K] {
	n, err := s.tree.FindNearest(func(seg *segment.Segment[T, K]) K {
		return interval.Sub(key, seg.Center())
	})
	if err != nil {
		return nil
	}

	for p := n.Prev(); p != nil && p.Value().Max() >= key; p = p.Prev() {
		n = p
	}

	for n != nil && n.Value().Max() < key {
		n = n.Next()
	}

	return n
}
