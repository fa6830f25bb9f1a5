package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/Hari1275/sdp-sub000/internal/api/routes"
	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/distance"
	"github.com/Hari1275/sdp-sub000/internal/domain/errorlog"
	"github.com/Hari1275/sdp-sub000/internal/domain/monitoring"
	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/Hari1275/sdp-sub000/internal/domain/user"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/cache"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/connection"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/migrations"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/scheduler"
	"github.com/Hari1275/sdp-sub000/pkg/breaker"
	"github.com/Hari1275/sdp-sub000/pkg/config"
	"github.com/Hari1275/sdp-sub000/pkg/logger"
	"github.com/Hari1275/sdp-sub000/pkg/security/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer log.Sync()

	log.Info("Configuration loaded successfully", zap.String("mode", cfg.Server.Mode))

	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	location, err := time.LoadLocation(cfg.Tracking.Timezone)
	if err != nil {
		log.Fatal("Invalid tracking timezone", zap.Error(err))
	}

	db, err := connection.NewDatabase(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.AutoMigrate(db, log.Logger); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Redis backs the response cache, the route cache, the rate limiter and
	// the live feed. Without it the API still serves, just without those.
	var (
		redisClient   *cache.RedisClient
		liveFeed      *cache.LiveFeed
		routeCache    distance.Cache
		responseCache middleware.ResponseCache
		rateLimiter   auth.RateLimiter
		cacheStatus   routes.CacheStatus
	)
	redisClient, err = cache.NewRedisClient(cache.NewConfigFromEnv(cfg), log.Logger)
	if err != nil {
		log.Warn("Redis unavailable, running without cache, rate limiting and live feed", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		liveFeed = cache.NewLiveFeed(redisClient, log.Logger)
		routeCache = redisClient
		responseCache = redisClient
		rateLimiter = auth.NewRedisRateLimiter(redisClient.GetClient(), time.Minute, cfg.Auth.RateLimit)
		cacheStatus = redisClient
	}

	eventSystem, err := SetupEventSystem(cfg, liveFeed)
	if err != nil {
		log.Fatal("Failed to initialize event system", zap.Error(err))
	}
	defer eventSystem.Shutdown()

	var provider distance.Provider
	if cfg.Routing.Enabled {
		provider = distance.NewOSRMProvider(cfg.Routing.BaseURL, cfg.Routing.Profile, cfg.Routing.Timeout)
	}
	calculator := distance.NewCalculator(distance.Options{
		RoutingEnabled: cfg.Routing.Enabled,
		Provider:       provider,
		Cache:          routeCache,
		Routing: distance.RoutingOptions{
			Timeout:   cfg.Routing.Timeout,
			MaxPoints: cfg.Routing.MaxPoints,
			CacheTTL:  cfg.Routing.CacheTTL,
		},
	}, distance.Dependencies{
		Logger: log.Logger,
		Breaker: breaker.New(breaker.Config{
			Name:             "routing_provider",
			FailureThreshold: cfg.Routing.FailureThreshold,
			Timeout:          cfg.Routing.Cooldown,
		}, log.Logger),
	})

	userRepo := user.NewRepository(db)
	trackingRepo := tracking.NewRepository(db)
	summaryRepo := summary.NewRepository(db)
	errorRepo := errorlog.NewRepository(db, eventSystem.Logger)

	resolver := access.NewResolver(userRepo)
	userService := user.NewService(userRepo, log.Logger)
	summaryService := summary.NewService(summaryRepo, location, log.Logger)
	trackingService := tracking.NewService(trackingRepo, calculator, summaryService, resolver, eventSystem.Publisher, tracking.Config{
		MaxBatchSize:      cfg.Tracking.MaxBatchSize,
		AccuracyThreshold: cfg.Tracking.AccuracyThreshold,
		BestNFallback:     cfg.Tracking.BestNFallback,
		Location:          location,
		StaleReviewAfter:  cfg.Tracking.StaleSessionReviewAfter,
	}, log.Logger)
	monitoringService := monitoring.NewService(trackingRepo, resolver, eventSystem.Publisher, monitoring.Config{
		Thresholds: monitoring.Thresholds{
			MovementWindow:      cfg.Monitoring.MovementWindow,
			FreshnessWindow:     cfg.Monitoring.FreshnessWindow,
			SpeedThresholdKmh:   cfg.Monitoring.SpeedThresholdKmh,
			DistanceThresholdKm: cfg.Monitoring.DistanceThresholdKm,
		},
		TrailSize:        cfg.Monitoring.TrailSize,
		LongRunningAfter: cfg.Monitoring.LongRunningAfter,
	}, log.Logger)
	errorService := errorlog.NewService(errorlog.ServiceConfig{
		Repository: errorRepo,
		Resolver:   resolver,
		Publisher:  eventSystem.Publisher,
		Logger:     eventSystem.Logger,
	})

	jobs := scheduler.NewScheduler(trackingService, monitoringService, scheduler.Config{
		RecalculationEnabled: cfg.Recalculation.Enabled,
		RecalculationHour:    cfg.Recalculation.Hour,
		Recalculation: tracking.RecalculateOptions{
			Limit:     cfg.Recalculation.Limit,
			ItemDelay: cfg.Recalculation.ItemDelay,
		},
		SweepInterval: cfg.Monitoring.SweepInterval,
		Location:      location,
	}, log)
	jobs.Start(context.Background())
	defer jobs.Stop()
	log.Info("Background jobs started")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceRequest(log.Logger))
	router.Use(middleware.CollectMetrics())
	router.Use(cors.New(corsConfig(cfg.CORS)))

	deps := routes.Dependencies{
		Tracking:   trackingService,
		Monitoring: monitoringService,
		Summaries:  summaryService,
		ErrorLog:   errorService,
		Scopes:     resolver,
		Tokens:     auth.NewJWTService(cfg),
		Callers:    userService,
		Breaker: breaker.New(breaker.Config{
			Name:             "api",
			FailureThreshold: 20,
			Timeout:          30 * time.Second,
		}, log.Logger),
		Cache:       responseCache,
		RateLimiter: rateLimiter,
		Health: routes.HealthChecks{
			Database: func(context.Context) error { return db.Healthy() },
			Cache:    cacheStatus,
		},
		Location: location,
		Logger:   log.Logger,
	}
	if liveFeed != nil {
		deps.LiveFeed = liveFeed
	}
	routes.Register(router, deps)

	for _, route := range router.Routes() {
		log.Debug("Route registered",
			zap.String("method", route.Method),
			zap.String("path", route.Path))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.Int("port", cfg.Server.Port), zap.Bool("https", cfg.Server.UseHTTPS))

		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.HTTPSCertFile, cfg.Server.HTTPSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	log.Info("Shutting down server...")
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited properly")
}

func corsConfig(c config.CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods: c.AllowedMethods,
		AllowHeaders: append(c.AllowedHeaders,
			"Accept-Encoding",
			"Content-Type",
			"Authorization",
		),
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Encoding",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"X-Cache",
		},
		AllowCredentials: c.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
	} else {
		cc.AllowOrigins = c.AllowedOrigins
	}
	if len(cc.AllowMethods) == 0 {
		cc.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	return cc
}
