package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/seriescache/internal/series"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/internal/source"
	"github.com/Sumatoshi-tech/seriescache/pkg/mcp"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
)

const testMaxSpan = 5000

func newService() *service.Service {
	src := source.NewSynthetic(1)

	return service.New(src, series.NewCache(src.Fetch), service.Options{MaxSpan: testMaxSpan, MaxBatch: 1})
}

// connect runs srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func call(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	content, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return content.Text
}

func TestNewServer_ToolsRegistered(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(newService(), mcp.ServerDeps{})

	assert.Equal(t, []string{mcp.ToolNameGaps, mcp.ToolNameRange, mcp.ToolNameStats}, srv.ListToolNames())
}

func TestServer_Run_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(newService(), mcp.ServerDeps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, srv.Run(ctx))
}

func TestMCPServer_ToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(newService(), mcp.ServerDeps{}))

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 3)

	for _, tool := range tools.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
}

func TestMCPServer_RangeThenGaps(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(newService(), mcp.ServerDeps{}))

	gaps := call(t, session, mcp.ToolNameGaps, map[string]any{"start": 0, "end": 9})
	assert.False(t, gaps.IsError)
	assert.JSONEq(t, `{"gaps":[{"start":0,"end":9}]}`, text(t, gaps))

	rng := call(t, session, mcp.ToolNameRange, map[string]any{"start": 0, "end": 9})
	require.False(t, rng.IsError)

	var summary struct {
		Cached bool           `json:"cached"`
		Filled int            `json:"filled_gaps"`
		Count  int            `json:"count"`
		Points []series.Point `json:"points"`
	}

	require.NoError(t, json.Unmarshal([]byte(text(t, rng)), &summary))
	assert.False(t, summary.Cached)
	assert.Equal(t, 1, summary.Filled)
	assert.Equal(t, 10, summary.Count)
	assert.Equal(t, int64(9), summary.Points[9].Index)

	gaps = call(t, session, mcp.ToolNameGaps, map[string]any{"start": 0, "end": 9})
	assert.JSONEq(t, `{"gaps":[]}`, text(t, gaps))

	stats := call(t, session, mcp.ToolNameStats, map[string]any{})
	assert.Contains(t, text(t, stats), `"records": 10`)
}

func TestMCPServer_RangeTruncated(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(newService(), mcp.ServerDeps{}))

	rng := call(t, session, mcp.ToolNameRange, map[string]any{"start": 0, "end": mcp.MaxPointsInline + 10})
	require.False(t, rng.IsError)

	var summary struct {
		Count     int               `json:"count"`
		Truncated bool              `json:"truncated"`
		Points    []json.RawMessage `json:"points"`
	}

	require.NoError(t, json.Unmarshal([]byte(text(t, rng)), &summary))
	assert.Equal(t, mcp.MaxPointsInline+11, summary.Count)
	assert.True(t, summary.Truncated)
	assert.Len(t, summary.Points, mcp.MaxPointsInline)
}

func TestMCPServer_InvalidRange(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.NewServer(newService(), mcp.ServerDeps{}))

	result := call(t, session, mcp.ToolNameRange, map[string]any{"start": 9, "end": 0})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), service.ErrInvalidRange.Error())

	result = call(t, session, mcp.ToolNameRange, map[string]any{"start": 0, "end": testMaxSpan})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), service.ErrSpanTooLarge.Error())

	result = call(t, session, mcp.ToolNameGaps, map[string]any{"start": 1, "end": 0})
	assert.True(t, result.IsError)
}

func TestMCPServer_Instrumented(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	session := connect(t, mcp.NewServer(newService(), mcp.ServerDeps{Metrics: red, Tracer: tracer}))

	result := call(t, session, mcp.ToolNameStats, map[string]any{})
	require.Len(t, result.Content, 2)

	traceID, ok := result.Content[1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, traceID.Text, "trace_id=")

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "mcp."+mcp.ToolNameStats, spans[len(spans)-1].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}

	assert.True(t, names["seriescache.requests.total"])
}
