package seriescache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
	"github.com/Sumatoshi-tech/seriescache/pkg/safeconv"
)

// ErrCorruptSnapshot is returned when a snapshot header is out of range.
var ErrCorruptSnapshot = errors.New("seriescache: corrupt snapshot")

// RecordWriter encodes one record.
type RecordWriter[T any] func(w io.Writer, record T) error

// RecordReader decodes count records. count comes from the snapshot and may
// be corrupt, so readers should grow their result as records arrive.
type RecordReader[T any] func(r io.Reader, count int) ([]T, error)

// Save writes the cached segments as
//
//	int32 segment count
//	per segment: int32 record count, then the records via write
//
// Integers are little endian. The writer is not closed.
func (c *Cache[T, K]) Save(w io.Writer, write RecordWriter[T]) error {
	count, err := safeconv.IntToInt32(c.set.Len())
	if err != nil {
		return fmt.Errorf("save segment count: %w", err)
	}

	err = binary.Write(w, binary.LittleEndian, count)
	if err != nil {
		return fmt.Errorf("save segment count: %w", err)
	}

	for seg := range c.set.Segments() {
		n, convErr := safeconv.IntToInt32(seg.Len())
		if convErr != nil {
			return fmt.Errorf("save segment [%d, %d]: %w", seg.Min(), seg.Max(), convErr)
		}

		err = binary.Write(w, binary.LittleEndian, n)
		if err != nil {
			return fmt.Errorf("save segment [%d, %d]: %w", seg.Min(), seg.Max(), err)
		}

		for _, record := range seg.Records() {
			err = write(w, record)
			if err != nil {
				return fmt.Errorf("save segment [%d, %d]: %w", seg.Min(), seg.Max(), err)
			}
		}
	}

	return nil
}

// Load replaces the cache contents with a snapshot written by Save. On error
// the cache is left unchanged. Counters are kept.
func (c *Cache[T, K]) Load(r io.Reader, read RecordReader[T]) error {
	var count int32

	err := binary.Read(r, binary.LittleEndian, &count)
	if err != nil {
		return fmt.Errorf("load segment count: %w", err)
	}

	if count < 0 {
		return fmt.Errorf("%w: segment count %d", ErrCorruptSnapshot, count)
	}

	set := rangeset.New(c.keyOf, rangeset.WithOverwriteMode(c.set.Settings().Overwrite))

	for i := range count {
		var n int32

		err = binary.Read(r, binary.LittleEndian, &n)
		if err != nil {
			return fmt.Errorf("load segment %d: %w", i, err)
		}

		if n < 0 {
			return fmt.Errorf("%w: segment %d record count %d", ErrCorruptSnapshot, i, n)
		}

		records, readErr := read(r, int(n))
		if readErr != nil {
			return fmt.Errorf("load segment %d: %w", i, readErr)
		}

		err = set.AddRange(records, 0)
		if err != nil {
			return fmt.Errorf("load segment %d: %w", i, err)
		}
	}

	c.set = set

	return nil
}
