package observability

import (
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Sumatoshi-tech/seriescache/pkg/seriescache"
)

// Attribute keys set by the hosting surfaces.
const (
	AttrSourceKind = attribute.Key("source.kind")
	AttrMCPTool    = attribute.Key("mcp.tool")
	AttrHTTPTarget = attribute.Key("http.target")
	AttrAppMode    = attribute.Key("app.mode")
)

// exportedKeys is every span attribute allowed to leave the process.
var exportedKeys = map[attribute.Key]bool{
	seriescache.AttrStart:             true,
	seriescache.AttrEnd:               true,
	seriescache.AttrGaps:              true,
	seriescache.AttrRecords:           true,
	AttrSourceKind:                    true,
	AttrMCPTool:                       true,
	AttrHTTPTarget:                    true,
	semconv.HTTPRequestMethodKey:      true,
	semconv.HTTPResponseStatusCodeKey: true,
}
