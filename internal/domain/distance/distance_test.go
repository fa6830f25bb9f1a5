package distance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Hari1275/sdp-sub000/pkg/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	route *ProviderRoute
	err   error
	delay time.Duration
}

func (f *fakeProvider) Route(ctx context.Context, points []Point) (*ProviderRoute, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.route, f.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]string)}
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (m *memoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func samplePath() []Point {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return []Point{
		{Lat: 12.3400, Lon: 56.7800, Timestamp: start},
		{Lat: 12.3409, Lon: 56.7800, Timestamp: start.Add(time.Minute)},
		{Lat: 12.3418, Lon: 56.7800, Timestamp: start.Add(2 * time.Minute)},
		{Lat: 12.3427, Lon: 56.7800, Timestamp: start.Add(3 * time.Minute)},
	}
}

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
	}{
		{"same point", Point{Lat: 10, Lon: 10}, Point{Lat: 10, Lon: 10}, 0},
		{"one degree of latitude", Point{Lat: 0, Lon: 0}, Point{Lat: 1, Lon: 0}, 111.195},
		{"paris to london", Point{Lat: 48.8566, Lon: 2.3522}, Point{Lat: 51.5074, Lon: -0.1278}, 343.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HaversineKm(tt.a, tt.b), 0.5)
		})
	}
}

func TestHaversineSymmetric(t *testing.T) {
	pairs := [][2]Point{
		{{Lat: 12.34, Lon: 56.78}, {Lat: 12.35, Lon: 56.79}},
		{{Lat: -33.86, Lon: 151.2}, {Lat: 40.71, Lon: -74.0}},
		{{Lat: 89.9, Lon: 0}, {Lat: -89.9, Lon: 179.9}},
	}
	for _, p := range pairs {
		assert.Equal(t, HaversineKm(p[0], p[1]), HaversineKm(p[1], p[0]))
	}
}

func TestComputeRouteDegenerateInputs(t *testing.T) {
	calculators := map[string]Calculator{
		"haversine": Haversine{},
		"routing":   NewRoutingCalculator(&fakeProvider{err: errors.New("boom")}, nil, RoutingOptions{}, Dependencies{}),
	}
	for name, calc := range calculators {
		t.Run(name, func(t *testing.T) {
			assert.Zero(t, calc.ComputeRoute(context.Background(), nil).DistanceKm)
			assert.Zero(t, calc.ComputeRoute(context.Background(), []Point{{Lat: 1, Lon: 1}}).DistanceKm)
		})
	}
}

func TestHaversineComputeRoute(t *testing.T) {
	path := samplePath()
	res := Haversine{}.ComputeRoute(context.Background(), path)

	assert.Equal(t, MethodHaversine, res.Method)
	assert.Equal(t, AccuracyStraightLine, res.AccuracyTag)
	assert.InDelta(t, PathKm(path), res.DistanceKm, 1e-9)
	assert.InDelta(t, 0.3, res.DistanceKm, 0.01)
	require.NotNil(t, res.DurationMinutes)
	assert.InDelta(t, 3.0, *res.DurationMinutes, 1e-9)
	assert.Equal(t, 3, res.Stats.Segments)
}

func TestRoutingCalculatorUsesProviderAndCache(t *testing.T) {
	provider := &fakeProvider{route: &ProviderRoute{DistanceKm: 0.42, DurationMinutes: 2.5}}
	cache := newMemoryCache()
	calc := NewRoutingCalculator(provider, cache, RoutingOptions{Timeout: time.Second}, Dependencies{})

	first := calc.ComputeRoute(context.Background(), samplePath())
	assert.Equal(t, MethodRoutingProvider, first.Method)
	assert.Equal(t, 0.42, first.DistanceKm)
	assert.False(t, first.Stats.CacheHit)

	second := calc.ComputeRoute(context.Background(), samplePath())
	assert.True(t, second.Stats.CacheHit)
	assert.Equal(t, 0.42, second.DistanceKm)
	assert.Equal(t, 1, provider.calls)
}

func TestRoutingCalculatorFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		reason   string
	}{
		{"provider error", &fakeProvider{err: errors.New("connection refused")}, "provider_error"},
		{"quota", &fakeProvider{err: ErrQuotaExceeded}, "quota"},
		{"malformed", &fakeProvider{route: &ProviderRoute{DistanceKm: -1}}, "malformed_response"},
		{"nil route", &fakeProvider{}, "malformed_response"},
		{"timeout", &fakeProvider{route: &ProviderRoute{DistanceKm: 1}, delay: time.Second}, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewRoutingCalculator(tt.provider, nil, RoutingOptions{Timeout: 20 * time.Millisecond}, Dependencies{})
			path := samplePath()

			res := calc.ComputeRoute(context.Background(), path)

			assert.Equal(t, MethodHaversineFallback, res.Method)
			assert.True(t, res.IsFallback())
			assert.Equal(t, tt.reason, res.Stats.FallbackReason)
			assert.InDelta(t, PathKm(path), res.DistanceKm, 1e-9)
		})
	}
}

func TestRoutingCalculatorOpenBreakerSkipsProvider(t *testing.T) {
	provider := &fakeProvider{err: errors.New("down")}
	cb := breaker.New(breaker.Config{FailureThreshold: 1, Timeout: time.Hour}, nil)
	calc := NewRoutingCalculator(provider, nil, RoutingOptions{}, Dependencies{Breaker: cb})

	calc.ComputeRoute(context.Background(), samplePath())
	res := calc.ComputeRoute(context.Background(), samplePath())

	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, "circuit_open", res.Stats.FallbackReason)
}

func TestDownsample(t *testing.T) {
	points := make([]Point, 1000)
	for i := range points {
		points[i] = Point{Lat: float64(i) / 1000, Lon: 0}
	}

	out := Downsample(points, 50)
	require.Len(t, out, 50)
	assert.Equal(t, points[0], out[0])
	assert.Equal(t, points[999], out[49])
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].Lat, out[i-1].Lat)
	}

	assert.Len(t, Downsample(points[:10], 50), 10)
}

func TestCacheKeyIgnoresSubMetreNoise(t *testing.T) {
	a := []Point{{Lat: 12.340001, Lon: 56.780001}, {Lat: 12.35, Lon: 56.79}}
	b := []Point{{Lat: 12.340002, Lon: 56.780002}, {Lat: 12.35, Lon: 56.79}}
	c := []Point{{Lat: 12.35, Lon: 56.79}, {Lat: 12.34, Lon: 56.78}}
	assert.Equal(t, CacheKey(a), CacheKey(b))
	assert.NotEqual(t, CacheKey(a), CacheKey(c))
}

func TestOSRMProvider(t *testing.T) {
	t.Run("parses route", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/56.780000,12.340000;"))
			fmt.Fprint(w, `{"code":"Ok","routes":[{"distance":1500,"duration":300,"geometry":{"type":"LineString","coordinates":[]}}]}`)
		}))
		defer srv.Close()

		route, err := NewOSRMProvider(srv.URL, "", time.Second).Route(context.Background(), samplePath())
		require.NoError(t, err)
		assert.Equal(t, 1.5, route.DistanceKm)
		assert.Equal(t, 5.0, route.DurationMinutes)
		assert.NotEmpty(t, route.Geometry)
	})

	t.Run("quota", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewOSRMProvider(srv.URL, "driving", time.Second).Route(context.Background(), samplePath())
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("no route", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":"NoRoute","message":"Impossible route"}`)
		}))
		defer srv.Close()

		_, err := NewOSRMProvider(srv.URL, "driving", time.Second).Route(context.Background(), samplePath())
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestNewCalculator(t *testing.T) {
	_, ok := NewCalculator(Options{}, Dependencies{}).(Haversine)
	assert.True(t, ok)

	_, ok = NewCalculator(Options{RoutingEnabled: true, Provider: &fakeProvider{}}, Dependencies{}).(*RoutingCalculator)
	assert.True(t, ok)
}
