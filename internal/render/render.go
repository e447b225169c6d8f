// Package render formats cache results for the terminal and for files.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/persist"
	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

// ErrUnknownFormat is returned for unsupported output formats.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is an output format.
type Format string

// Output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

const percent = 100

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

func encode(w io.Writer, format Format, value any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(value)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()

		return enc.Encode(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)

	return tbl
}

// Range writes a range read: a status line and the points.
func Range(w io.Writer, format Format, res service.RangeResult) error {
	if format != FormatTable {
		return encode(w, format, res)
	}

	if res.Cached {
		color.New(color.FgGreen).Fprintf(w, "[%d, %d] served from cache\n", res.Start, res.End)
	} else {
		color.New(color.FgYellow).Fprintf(w, "[%d, %d] fetched %d gap(s)\n", res.Start, res.End, len(res.Gaps))
	}

	return Points(w, format, res.Points)
}

// Points writes points.
func Points(w io.Writer, format Format, points []series.Point) error {
	if format != FormatTable {
		return encode(w, format, points)
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Index", "Value"})
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
	})

	for _, p := range points {
		tbl.AppendRow(table.Row{p.Index, strconv.FormatFloat(p.Value, 'f', -1, 64)})
	}

	tbl.AppendFooter(table.Row{"Points", humanize.Comma(int64(len(points)))})
	tbl.Render()

	return nil
}

// Gaps writes uncached sub-ranges.
func Gaps(w io.Writer, format Format, gaps []rangeset.Gap[int64]) error {
	if format != FormatTable {
		return encode(w, format, gaps)
	}

	if len(gaps) == 0 {
		color.New(color.FgGreen).Fprintln(w, "fully cached")

		return nil
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Start", "End", "Width"})

	var total int64

	for _, g := range gaps {
		width := g.End - g.Start + 1
		total += width

		tbl.AppendRow(table.Row{g.Start, g.End, humanize.Comma(width)})
	}

	tbl.AppendFooter(table.Row{"Gaps", len(gaps), humanize.Comma(total)})
	tbl.Render()

	return nil
}

// Stats writes cache statistics.
func Stats(w io.Writer, format Format, stats seriescache.Stats) error {
	if format != FormatTable {
		return encode(w, format, stats)
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Segments", humanize.Comma(int64(stats.Segments))},
		{"Records", humanize.Comma(int64(stats.Records))},
		{"Min", stats.Min},
		{"Max", stats.Max},
		{"Hits", humanize.Comma(stats.Hits)},
		{"Misses", humanize.Comma(stats.Misses)},
		{"Hit ratio", hitRatio(stats)},
		{"Fetches", humanize.Comma(stats.Fetches)},
		{"Fetched records", humanize.Comma(stats.FetchedRecords)},
	})
	tbl.Render()

	return nil
}

func hitRatio(stats seriescache.Stats) string {
	reads := stats.Hits + stats.Misses
	if reads == 0 {
		return "-"
	}

	return humanize.FormatFloat("#.##", float64(stats.Hits)*percent/float64(reads)) + "%"
}

// Manifest writes a snapshot summary. size is the payload size in bytes.
func Manifest(w io.Writer, format Format, action string, manifest persist.Manifest, size int64) error {
	if format != FormatTable {
		return encode(w, format, manifest)
	}

	color.New(color.FgGreen).Fprintf(w, "snapshot %s: %s segments, %s records, %s (%s)\n",
		action,
		humanize.Comma(int64(manifest.Segments)),
		humanize.Comma(int64(manifest.Records)),
		humanize.Bytes(uint64(max(size, 0))),
		manifest.Compression,
	)

	if !manifest.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created %s\n", humanize.Time(manifest.CreatedAt))
	}

	return nil
}
