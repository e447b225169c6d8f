package source

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
)

const btreeDegree = 32

// Memory is an in-process source backed by a B-tree ordered by index.
type Memory struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[series.Point]
}

// NewMemory creates an empty memory source.
func NewMemory() *Memory {
	return &Memory{
		tree: btree.NewG(btreeDegree, func(a, b series.Point) bool { return a.Index < b.Index }),
	}
}

// Seed implements Seeder. Points replace stored points with the same index.
func (m *Memory) Seed(_ context.Context, points []series.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		m.tree.ReplaceOrInsert(p)
	}

	return nil
}

// Len returns the number of stored points.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tree.Len()
}

// Fetch implements Source.
func (m *Memory) Fetch(_ context.Context, start, end int64) ([]series.Point, error) {
	err := checkRange(start, end)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var points []series.Point

	m.tree.AscendGreaterOrEqual(series.Point{Index: start}, func(p series.Point) bool {
		if p.Index > end {
			return false
		}

		points = append(points, p)

		return true
	})

	return points, nil
}

// Bounds implements Source.
func (m *Memory) Bounds(context.Context) (lo, hi int64, ok bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	first, ok := m.tree.Min()
	if !ok {
		return 0, 0, false, nil
	}

	last, _ := m.tree.Max()

	return first.Index, last.Index, true, nil
}

// Close implements Source.
func (m *Memory) Close() error { return nil }
