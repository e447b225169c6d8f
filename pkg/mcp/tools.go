package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
)

// Tool name constants.
const (
	ToolNameRange = "series_range"
	ToolNameGaps  = "series_gaps"
	ToolNameStats = "series_stats"
)

// MaxPointsInline caps how many points a range result embeds as text.
const MaxPointsInline = 1000

// RangeInput is the input schema for the series_range and series_gaps tools.
type RangeInput struct {
	Start int64 `json:"start" jsonschema:"first index of the range (inclusive)"`
	End   int64 `json:"end"   jsonschema:"last index of the range (inclusive)"`
}

// StatsInput is the input schema for the series_stats tool.
type StatsInput struct{}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

type rangeSummary struct {
	Start     int64          `json:"start"`
	End       int64          `json:"end"`
	Cached    bool           `json:"cached"`
	Filled    int            `json:"filled_gaps"`
	Count     int            `json:"count"`
	Truncated bool           `json:"truncated,omitempty"`
	Points    []series.Point `json:"points"`
}

func (s *Server) handleRange(ctx context.Context, _ *mcpsdk.CallToolRequest, in RangeInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	res, err := s.svc.Range(ctx, in.Start, in.End)
	if err != nil {
		return errorResult(err)
	}

	summary := rangeSummary{
		Start:  res.Start,
		End:    res.End,
		Cached: res.Cached,
		Filled: len(res.Gaps),
		Count:  len(res.Points),
		Points: res.Points,
	}

	if len(summary.Points) > MaxPointsInline {
		summary.Points = summary.Points[:MaxPointsInline]
		summary.Truncated = true
	}

	return jsonResult(summary)
}

func (s *Server) handleGaps(_ context.Context, _ *mcpsdk.CallToolRequest, in RangeInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	gaps, err := s.svc.Gaps(in.Start, in.End)
	if err != nil {
		return errorResult(err)
	}

	if gaps == nil {
		gaps = []rangeset.Gap[int64]{}
	}

	return jsonResult(map[string]any{"gaps": gaps})
}

func (s *Server) handleStats(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatsInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return jsonResult(s.svc.Stats())
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
