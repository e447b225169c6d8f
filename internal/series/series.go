// Package series defines the indexed point record served by the cache and
// its snapshot codec.
package series

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Sumatoshi-tech/seriescache/pkg/keyof"
	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

// PointSize is the encoded size of one Point.
const PointSize = 16

const maxPrealloc = 4096

// Point is one sample of a series.
type Point struct {
	Index int64   `json:"index" series:"key" yaml:"index"`
	Value float64 `json:"value" yaml:"value"`
}

// Key returns the index of a point.
var Key = keyof.Must(keyof.Register[Point, int64](keyof.Default, ""))

// Cache is a point cache.
type Cache = seriescache.Cache[Point, int64]

// NewCache creates a point cache over fetch.
func NewCache(fetch seriescache.FetchFunc[Point, int64], opts ...seriescache.Option) *Cache {
	return seriescache.New(fetch, Key, opts...)
}

// WritePoint encodes p as little-endian int64 index and float64 bits.
func WritePoint(w io.Writer, p Point) error {
	var buf [PointSize]byte

	binary.LittleEndian.PutUint64(buf[:8], uint64(p.Index))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Value))

	_, err := w.Write(buf[:])
	if err != nil {
		return fmt.Errorf("write point %d: %w", p.Index, err)
	}

	return nil
}

// ReadPoints decodes count points written by WritePoint. The result grows as
// points arrive, so a corrupt count fails on EOF instead of allocating.
func ReadPoints(r io.Reader, count int) ([]Point, error) {
	points := make([]Point, 0, min(count, maxPrealloc))

	var buf [PointSize]byte

	for i := range count {
		_, err := io.ReadFull(r, buf[:])
		if err != nil {
			return nil, fmt.Errorf("read point %d of %d: %w", i, count, err)
		}

		points = append(points, Point{
			Index: int64(binary.LittleEndian.Uint64(buf[:8])),
			Value: math.Float64frombits(binary.LittleEndian.Uint64(buf[8:])),
		})
	}

	return points, nil
}
