// Package safeconv provides integer narrowing conversions that report overflow.
package safeconv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("safeconv: value out of range")

// IntToInt32 converts int to int32, failing on overflow.
func IntToInt32(v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d does not fit int32", ErrOverflow, v)
	}

	return int32(v), nil
}
