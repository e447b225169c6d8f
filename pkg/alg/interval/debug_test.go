//go:build intervaldebug

package interval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/seriescache/pkg/alg/interval"
)

// TestClassify_InvertedPanics verifies debug builds reject min > max.
func TestClassify_InvertedPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { interval.Classify(10, 0, 20, 30) })
	assert.Panics(t, func() { interval.Classify(0, 10, 30, 20) })
	assert.Panics(t, func() { interval.Locate(1, 5, 0) })
}
