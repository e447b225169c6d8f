package segment

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/constraints"
)

// OverwriteMode selects how a key present in several merge inputs is resolved.
type OverwriteMode int

// Overwrite modes.
const (
	// OverwriteError fails the merge.
	OverwriteError OverwriteMode = iota
	// OverwriteSkip keeps the record of the oldest (lowest index) input.
	OverwriteSkip
	// OverwriteReplace keeps the record of the newest (highest index) input.
	OverwriteReplace
)

var modeNames = map[OverwriteMode]string{
	OverwriteError:   "error",
	OverwriteSkip:    "skip",
	OverwriteReplace: "replace",
}

// String returns the lower-case mode name.
func (m OverwriteMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}

	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseOverwriteMode parses a mode name as produced by String.
func ParseOverwriteMode(name string) (OverwriteMode, error) {
	for mode, modeName := range modeNames {
		if strings.EqualFold(name, modeName) {
			return mode, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

type cursor[T any, K constraints.Signed] struct {
	records []T
	ord     int
	pos     int
	key     K
}

func (c *cursor[T, K]) done() bool {
	return c.pos >= len(c.records)
}

// advance moves past the current record and caches the next key.
func (c *cursor[T, K]) advance(keyOf KeyFunc[T, K]) error {
	c.pos++
	if c.done() {
		return nil
	}

	key := keyOf(c.records[c.pos])
	if key <= c.key {
		return fmt.Errorf("%w: input %d key %d at position %d follows %d", ErrUnsorted, c.ord, key, c.pos, c.key)
	}

	c.key = key

	return nil
}

// Merge combines independently sorted, possibly overlapping inputs into one
// segment. Inputs are ordered oldest first; a key present in several inputs
// is resolved by mode. Empty inputs are ignored. Each input must be strictly
// ascending, otherwise ErrUnsorted is returned. Inputs are never modified.
func Merge[T any, K constraints.Signed](mode OverwriteMode, keyOf KeyFunc[T, K], inputs ...[]T) (*Segment[T, K], error) {
	if _, ok := modeNames[mode]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}

	total := 0
	cursors := make([]*cursor[T, K], 0, len(inputs))

	for ord, in := range inputs {
		if len(in) == 0 {
			continue
		}

		total += len(in)
		cursors = append(cursors, &cursor[T, K]{records: in, ord: ord, key: keyOf(in[0])})
	}

	if len(cursors) == 0 {
		return nil, ErrEmptySegment
	}

	out := make([]T, 0, total)

	for len(cursors) > 1 {
		lowest, shared, next := scan(cursors)

		var err error
		if len(shared) > 1 {
			out, err = resolveDuplicate(out, shared, mode, keyOf)
		} else {
			out, err = copyRun(out, lowest, next, keyOf)
		}

		if err != nil {
			return nil, err
		}

		cursors = slices.DeleteFunc(cursors, (*cursor[T, K]).done)
	}

	tail := cursors[0]
	for !tail.done() {
		out = append(out, tail.records[tail.pos])

		err := tail.advance(keyOf)
		if err != nil {
			return nil, err
		}
	}

	return fromSorted(out, keyOf), nil
}

// scan returns the cursor with the smallest key, every cursor sharing that
// key in input order, and the smallest key among the remaining cursors.
func scan[T any, K constraints.Signed](cursors []*cursor[T, K]) (*cursor[T, K], []*cursor[T, K], K) {
	lowest := cursors[0]
	for _, c := range cursors[1:] {
		if c.key < lowest.key {
			lowest = c
		}
	}

	var (
		shared  []*cursor[T, K]
		next    K
		hasNext bool
	)

	for _, c := range cursors {
		if c.key == lowest.key {
			shared = append(shared, c)

			continue
		}

		if !hasNext || c.key < next {
			next = c.key
			hasNext = true
		}
	}

	return lowest, shared, next
}

// copyRun appends records of c whose keys are below next.
func copyRun[T any, K constraints.Signed](out []T, c *cursor[T, K], next K, keyOf KeyFunc[T, K]) ([]T, error) {
	for !c.done() && c.key < next {
		out = append(out, c.records[c.pos])

		err := c.advance(keyOf)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// resolveDuplicate appends the record chosen by mode among cursors sharing
// the same key and advances all of them.
func resolveDuplicate[T any, K constraints.Signed](
	out []T, shared []*cursor[T, K], mode OverwriteMode, keyOf KeyFunc[T, K],
) ([]T, error) {
	var chosen *cursor[T, K]

	switch mode {
	case OverwriteSkip:
		chosen = shared[0]
	case OverwriteReplace:
		chosen = shared[len(shared)-1]
	default:
		return nil, &DuplicateKeyError[K]{Key: shared[0].key}
	}

	out = append(out, chosen.records[chosen.pos])

	for _, c := range shared {
		err := c.advance(keyOf)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}
