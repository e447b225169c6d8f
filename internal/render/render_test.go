package render_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/seriescache/internal/render"
	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/persist"
	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

var testStats = seriescache.Stats{
	Segments: 3, Records: 12500, Min: -5, Max: 20000,
	Hits: 3, Misses: 1, Fetches: 4, FetchedRecords: 12500,
}

// TestParseFormat verifies format names.
func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := render.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, render.FormatJSON, f)

	_, err = render.ParseFormat("xml")
	require.ErrorIs(t, err, render.ErrUnknownFormat)
}

// TestStats verifies every format.
func TestStats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Stats(&buf, render.FormatTable, testStats))
	assert.Contains(t, buf.String(), "12,500")
	assert.Contains(t, buf.String(), "75.00%")

	buf.Reset()
	require.NoError(t, render.Stats(&buf, render.FormatJSON, testStats))

	var fromJSON seriescache.Stats

	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, testStats, fromJSON)

	buf.Reset()
	require.NoError(t, render.Stats(&buf, render.FormatYAML, testStats))
	assert.Contains(t, buf.String(), "fetched_records: 12500")

	var fromYAML seriescache.Stats

	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, testStats, fromYAML)
}

// TestRange verifies the status line and point rows.
func TestRange(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	res := service.RangeResult{
		Start: 1, End: 2,
		Gaps:   []rangeset.Gap[int64]{{Start: 1, End: 2}},
		Points: []series.Point{{Index: 1, Value: 0.5}, {Index: 2, Value: -3}},
	}

	require.NoError(t, render.Range(&buf, render.FormatTable, res))
	assert.Contains(t, buf.String(), "fetched 1 gap(s)")
	assert.Contains(t, buf.String(), "0.5")
	assert.Contains(t, buf.String(), "-3")

	buf.Reset()
	res.Cached = true
	require.NoError(t, render.Range(&buf, render.FormatTable, res))
	assert.Contains(t, buf.String(), "served from cache")
}

// TestGaps verifies gap tables and the fully cached message.
func TestGaps(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Gaps(&buf, render.FormatTable, nil))
	assert.Contains(t, buf.String(), "fully cached")

	buf.Reset()
	require.NoError(t, render.Gaps(&buf, render.FormatTable, []rangeset.Gap[int64]{{Start: 0, End: 999}, {Start: 2000, End: 2999}}))
	assert.Contains(t, buf.String(), "2,000")

	buf.Reset()
	require.NoError(t, render.Gaps(&buf, render.FormatJSON, []rangeset.Gap[int64]{{Start: 4, End: 6}}))
	assert.JSONEq(t, `[{"start":4,"end":6}]`, buf.String())
}

// TestManifest verifies the snapshot summary.
func TestManifest(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	m := persist.Manifest{Compression: persist.CompressionLZ4, Segments: 2, Records: 1500, CreatedAt: time.Now()}

	require.NoError(t, render.Manifest(&buf, render.FormatTable, "saved", m, 2048))
	assert.Contains(t, buf.String(), "snapshot saved: 2 segments, 1,500 records, 2.0 kB (lz4)")
	assert.Contains(t, buf.String(), "created")
}

// TestChart verifies an HTML page with the series is produced.
func TestChart(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, render.Chart(&buf, "points 0-2", []series.Point{{Index: 0, Value: 1}, {Index: 2, Value: 3}}))
	assert.Contains(t, buf.String(), "<html")
	assert.Contains(t, buf.String(), "points 0-2")
	assert.Contains(t, buf.String(), "echarts")
}
