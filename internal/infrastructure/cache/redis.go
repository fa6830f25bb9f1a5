package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hari1275/sdp-sub000/pkg/config"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	ErrCacheNotFound   = errors.New("cache: key not found")
	ErrCacheConnection = errors.New("cache: connection error")
	ErrInvalidConfig   = errors.New("cache: invalid configuration")
)

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cache_requests_total",
	Help: "Cache lookups by cache type and result",
}, []string{"type", "result"})

// Config holds the configuration for the Redis client.
type Config struct {
	Addr             string
	Password         string
	DB               int
	PoolSize         int
	MinIdleConns     int
	MaxRetries       int
	ConnTimeout      time.Duration
	OperationTimeout time.Duration
	UseCompression   bool
	DefaultTTL       time.Duration
	MaxKeyLength     int
	KeyPrefix        string
	HealthInterval   time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		PoolSize:         50,
		MinIdleConns:     5,
		MaxRetries:       3,
		ConnTimeout:      5 * time.Second,
		OperationTimeout: 2 * time.Second,
		DefaultTTL:       30 * time.Minute,
		MaxKeyLength:     256,
		KeyPrefix:        "fieldtrack:",
		HealthInterval:   10 * time.Second,
	}
}

// NewConfigFromEnv builds the client config from project configuration.
// Route geometries can be large, so values are compressed.
func NewConfigFromEnv(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Addr = fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	c.Password = cfg.Redis.Password
	c.DB = cfg.Redis.DB
	c.UseCompression = true
	if cfg.Routing.Timeout > 0 {
		c.OperationTimeout = cfg.Routing.Timeout
	}
	return c
}

// CacheMetrics tracks hit/miss statistics.
type CacheMetrics struct {
	hits   atomic.Int64
	misses atomic.Int64
	byType sync.Map // map[string]*TypeMetrics
}

type TypeMetrics struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// RedisClient wraps go-redis with key prefixing, compression, health
// tracking and metrics.
type RedisClient struct {
	client    *redis.Client
	metrics   *CacheMetrics
	config    *Config
	logger    *zap.Logger
	closeOnce sync.Once
	done      chan struct{}
	health    atomic.Bool
}

func NewRedisClient(cfg *Config, logger *zap.Logger) (*RedisClient, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnTimeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r := &RedisClient{
		client:  client,
		config:  cfg,
		logger:  logger,
		metrics: &CacheMetrics{},
		done:    make(chan struct{}),
	}
	r.health.Store(true)

	if cfg.HealthInterval > 0 {
		go r.healthCheckLoop()
	}
	return r, nil
}

func (r *RedisClient) healthCheckLoop() {
	ticker := time.NewTicker(r.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.config.OperationTimeout)
			err := r.HealthCheck(ctx)
			cancel()
			if err != nil {
				if r.health.Swap(false) {
					r.logger.Error("Redis health check failed", zap.Error(err))
				}
				continue
			}
			if !r.health.Swap(true) {
				r.logger.Info("Redis is healthy again")
			}
		}
	}
}

// IsHealthy reports the result of the last health check.
func (r *RedisClient) IsHealthy() bool {
	return r.health.Load()
}

func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// withContext applies the operation timeout when ctx has no deadline.
func (r *RedisClient) withContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, r.config.OperationTimeout)
	}
	return ctx, func() {}
}

func (r *RedisClient) validateKey(key string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidConfig)
	}
	if len(key) > r.config.MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidConfig, r.config.MaxKeyLength)
	}
	return nil
}

func (r *RedisClient) prefixKey(key string) string {
	return r.config.KeyPrefix + key
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	if err := r.validateKey(key); err != nil {
		return "", err
	}
	if !r.IsHealthy() {
		return "", ErrCacheConnection
	}

	ctx, cancel := r.withContext(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, r.prefixKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.trackCacheEvent(false, cacheType(key))
			return "", fmt.Errorf("%w: %s", ErrCacheNotFound, key)
		}
		return "", fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	r.trackCacheEvent(true, cacheType(key))

	if r.config.UseCompression {
		return decompress(val)
	}
	return val, nil
}

func (r *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.validateKey(key); err != nil {
		return err
	}
	if !r.IsHealthy() {
		return ErrCacheConnection
	}
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	ctx, cancel := r.withContext(ctx)
	defer cancel()

	if r.config.UseCompression {
		compressed, err := compress(value)
		if err != nil {
			return fmt.Errorf("compression failed: %w", err)
		}
		value = compressed
	}
	return r.client.Set(ctx, r.prefixKey(key), value, ttl).Err()
}

// ClearByPattern removes every key matching pattern under the prefix.
func (r *RedisClient) ClearByPattern(ctx context.Context, pattern string) error {
	if !r.IsHealthy() {
		return ErrCacheConnection
	}

	ctx, cancel := r.withContext(ctx)
	defer cancel()

	iter := r.client.Scan(ctx, 0, r.prefixKey(pattern), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func compress(data string) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(data)); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func decompress(data string) (string, error) {
	gr, err := gzip.NewReader(strings.NewReader(data))
	if err != nil {
		return "", err
	}
	defer gr.Close()

	out, err := io.ReadAll(gr)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// cacheType is the first segment of a key, e.g. "route" for "route:ab12".
func cacheType(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}

func (r *RedisClient) trackCacheEvent(hit bool, kind string) {
	value, _ := r.metrics.byType.LoadOrStore(kind, &TypeMetrics{})
	tm := value.(*TypeMetrics)
	if hit {
		r.metrics.hits.Add(1)
		tm.hits.Add(1)
		cacheRequests.WithLabelValues(kind, "hit").Inc()
		return
	}
	r.metrics.misses.Add(1)
	tm.misses.Add(1)
	cacheRequests.WithLabelValues(kind, "miss").Inc()
}

// GetMetrics returns hit/miss counters, health and pool statistics.
func (r *RedisClient) GetMetrics() map[string]interface{} {
	byType := make(map[string]interface{})
	r.metrics.byType.Range(func(key, value interface{}) bool {
		tm := value.(*TypeMetrics)
		byType[key.(string)] = map[string]interface{}{
			"hits":   tm.hits.Load(),
			"misses": tm.misses.Load(),
		}
		return true
	})

	hits, misses := r.metrics.hits.Load(), r.metrics.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"hits":     hits,
		"misses":   misses,
		"hit_rate": hitRate,
		"by_type":  byType,
		"health":   r.IsHealthy(),
		"pool_stats": map[string]interface{}{
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"stale_conns": stats.StaleConns,
		},
		"config": map[string]interface{}{
			"compression": r.config.UseCompression,
			"prefix":      r.config.KeyPrefix,
			"max_retries": r.config.MaxRetries,
		},
	}
}

// GetClient exposes the underlying client for rate limiting and pub/sub.
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

func (r *RedisClient) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.client.Close()
	})
	return err
}
