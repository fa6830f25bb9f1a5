package distance

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Hari1275/sdp-sub000/pkg/breaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	routeCalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distance_route_calculations_total",
			Help: "Route calculations by method",
		},
		[]string{"method"},
	)

	routeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distance_routing_fallbacks_total",
			Help: "Routing provider failures absorbed by the haversine fallback",
		},
		[]string{"reason"},
	)

	providerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distance_routing_provider_seconds",
			Help:    "Latency of routing provider calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// ErrMalformedResponse is returned by providers for unusable bodies.
var ErrMalformedResponse = errors.New("routing provider returned a malformed response")

// ProviderRoute is a road-network estimate from an external provider.
type ProviderRoute struct {
	DistanceKm      float64         `json:"distance_km"`
	DurationMinutes float64         `json:"duration_minutes"`
	Geometry        json.RawMessage `json:"geometry,omitempty"`
}

// Provider fetches a road-network route for ordered points.
type Provider interface {
	Route(ctx context.Context, points []Point) (*ProviderRoute, error)
}

// Cache stores serialized provider routes.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RoutingOptions bounds how the provider is used.
type RoutingOptions struct {
	Timeout   time.Duration
	MaxPoints int
	CacheTTL  time.Duration
}

// Dependencies carries the ambient collaborators.
type Dependencies struct {
	Logger  *zap.Logger
	Breaker *breaker.CircuitBreaker
}

// RoutingCalculator asks a provider for road distance and falls back to
// haversine on any failure.
type RoutingCalculator struct {
	provider Provider
	cache    Cache
	opts     RoutingOptions
	breaker  *breaker.CircuitBreaker
	logger   *zap.Logger
}

func NewRoutingCalculator(provider Provider, cache Cache, opts RoutingOptions, deps Dependencies) *RoutingCalculator {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxPoints < 2 {
		opts.MaxPoints = 100
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := deps.Breaker
	if cb == nil {
		cb = breaker.New(breaker.Config{Name: "routing_provider"}, logger)
	}
	return &RoutingCalculator{
		provider: provider,
		cache:    cache,
		opts:     opts,
		breaker:  cb,
		logger:   logger,
	}
}

func (c *RoutingCalculator) ComputeRoute(ctx context.Context, points []Point) Result {
	if len(points) < 2 {
		res := haversineResult(points, MethodRoutingProvider, AccuracyRoadNetwork)
		routeCalculations.WithLabelValues(string(res.Method)).Inc()
		return res
	}

	used := Downsample(points, c.opts.MaxPoints)
	key := CacheKey(used)

	if route, ok := c.cached(ctx, key); ok {
		res := c.result(points, used, route)
		res.Stats.CacheHit = true
		routeCalculations.WithLabelValues(string(res.Method)).Inc()
		return res
	}

	if err := c.breaker.Allow(); err != nil {
		return c.fallback(points, "circuit_open", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	route, err := c.provider.Route(callCtx, used)
	elapsed := time.Since(start)
	providerLatency.Observe(elapsed.Seconds())

	if err == nil {
		err = validateRoute(route)
	}
	if err != nil {
		c.breaker.Record(false)
		return c.fallback(points, classify(callCtx, err), err)
	}
	c.breaker.Record(true)

	c.store(ctx, key, route)

	res := c.result(points, used, route)
	res.Stats.ProviderMillis = elapsed.Milliseconds()
	routeCalculations.WithLabelValues(string(res.Method)).Inc()
	return res
}

func (c *RoutingCalculator) result(points, used []Point, route *ProviderRoute) Result {
	duration := route.DurationMinutes
	return Result{
		DistanceKm:      route.DistanceKm,
		DurationMinutes: &duration,
		Method:          MethodRoutingProvider,
		AccuracyTag:     AccuracyRoadNetwork,
		Geometry:        route.Geometry,
		Stats: Stats{
			InputPoints: len(points),
			UsedPoints:  len(used),
			Segments:    len(used) - 1,
		},
	}
}

func (c *RoutingCalculator) fallback(points []Point, reason string, err error) Result {
	c.logger.Warn("Routing provider unavailable, using haversine fallback",
		zap.String("reason", reason),
		zap.Int("points", len(points)),
		zap.Error(err))
	routeFallbacks.WithLabelValues(reason).Inc()

	res := haversineResult(points, MethodHaversineFallback, AccuracyEstimated)
	res.Stats.FallbackReason = reason
	routeCalculations.WithLabelValues(string(res.Method)).Inc()
	return res
}

func (c *RoutingCalculator) cached(ctx context.Context, key string) (*ProviderRoute, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var route ProviderRoute
	if err := json.Unmarshal([]byte(raw), &route); err != nil {
		c.logger.Debug("Discarding unreadable cached route", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if validateRoute(&route) != nil {
		return nil, false
	}
	return &route, true
}

func (c *RoutingCalculator) store(ctx context.Context, key string, route *ProviderRoute) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(route)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, string(data), c.opts.CacheTTL); err != nil {
		c.logger.Debug("Failed to cache route", zap.String("key", key), zap.Error(err))
	}
}

func validateRoute(route *ProviderRoute) error {
	if route == nil {
		return ErrMalformedResponse
	}
	if route.DistanceKm < 0 || route.DurationMinutes < 0 {
		return fmt.Errorf("%w: negative distance or duration", ErrMalformedResponse)
	}
	return nil
}

func classify(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	default:
		return "provider_error"
	}
}

// Downsample keeps at most max points, always including the first and the
// last, picking evenly spaced points in between.
func Downsample(points []Point, max int) []Point {
	if max < 2 || len(points) <= max {
		return points
	}
	out := make([]Point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max-1; i++ {
		out = append(out, points[int(float64(i)*step+0.5)])
	}
	return append(out, points[len(points)-1])
}

// CacheKey identifies a route by its coordinates rounded to ~1 m.
func CacheKey(points []Point) string {
	h := sha1.New()
	for _, p := range points {
		h.Write([]byte(strconv.FormatFloat(p.Lat, 'f', 5, 64)))
		h.Write([]byte{','})
		h.Write([]byte(strconv.FormatFloat(p.Lon, 'f', 5, 64)))
		h.Write([]byte{';'})
	}
	return "route:" + hex.EncodeToString(h.Sum(nil))
}
