package distance

import (
	"context"
	"encoding/json"
	"time"
)

// Method records which algorithm produced a distance.
type Method string

const (
	MethodHaversine         Method = "haversine"
	MethodRoutingProvider   Method = "routing_provider"
	MethodHaversineFallback Method = "haversine_fallback"
)

// Accuracy tags describe how much a distance can be trusted.
const (
	AccuracyStraightLine = "straight_line"
	AccuracyRoadNetwork  = "road_network"
	AccuracyEstimated    = "estimated_fallback"
)

// Point is one ordered coordinate fed to the engine.
type Point struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats describes how a result was computed.
type Stats struct {
	InputPoints    int     `json:"input_points"`
	UsedPoints     int     `json:"used_points"`
	Segments       int     `json:"segments"`
	CacheHit       bool    `json:"cache_hit,omitempty"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
	ProviderMillis int64   `json:"provider_ms,omitempty"`
	MaxSegmentKm   float64 `json:"max_segment_km,omitempty"`
}

// Result is the output of ComputeRoute.
type Result struct {
	DistanceKm      float64
	DurationMinutes *float64
	Method          Method
	AccuracyTag     string
	Stats           Stats
	// Geometry is provider-specific route geometry, when available.
	Geometry json.RawMessage
}

// IsFallback reports whether the routing provider was bypassed.
func (r Result) IsFallback() bool {
	return r.Method == MethodHaversineFallback
}

// Metadata is the opaque blob persisted next to a session.
func (r Result) Metadata() ([]byte, error) {
	return json.Marshal(struct {
		Method   Method          `json:"method"`
		Accuracy string          `json:"accuracy"`
		Stats    Stats           `json:"stats"`
		Geometry json.RawMessage `json:"geometry,omitempty"`
	}{r.Method, r.AccuracyTag, r.Stats, r.Geometry})
}

// Calculator turns an ordered coordinate sequence into a distance estimate.
// Implementations never fail; 0 or 1 points yield a zero distance.
type Calculator interface {
	ComputeRoute(ctx context.Context, points []Point) Result
}

// Options configures NewCalculator.
type Options struct {
	RoutingEnabled bool
	Provider       Provider
	Cache          Cache
	Routing        RoutingOptions
}

// NewCalculator returns the routing calculator with its haversine fallback
// when a provider is configured, and plain haversine otherwise.
func NewCalculator(opts Options, deps Dependencies) Calculator {
	if !opts.RoutingEnabled || opts.Provider == nil {
		return Haversine{}
	}
	return NewRoutingCalculator(opts.Provider, opts.Cache, opts.Routing, deps)
}
