package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Broker        BrokerConfig        `mapstructure:"broker"`
	Auth          AuthConfig          `mapstructure:"auth"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Tracking      TrackingConfig      `mapstructure:"tracking"`
	Routing       RoutingConfig       `mapstructure:"routing"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Recalculation RecalculationConfig `mapstructure:"recalculation"`
}

type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UseHTTPS      bool          `mapstructure:"use_https"`
	HTTPSCertFile string        `mapstructure:"https_cert_file"`
	HTTPSKeyFile  string        `mapstructure:"https_key_file"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Timezone        string        `mapstructure:"timezone"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrokerConfig selects where domain events go. Driver is "memory" or "rabbitmq".
type BrokerConfig struct {
	Driver    string         `mapstructure:"driver"`
	QueueSize int            `mapstructure:"queue_size"`
	RabbitMQ  RabbitMQConfig `mapstructure:"rabbitmq"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	JWTExpiryHours int    `mapstructure:"jwt_expiry_hours"`
	JWTIssuer      string `mapstructure:"jwt_issuer"`
	RateLimit      int64  `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig holds ingestion and lifecycle policy.
type TrackingConfig struct {
	MaxBatchSize            int           `mapstructure:"max_batch_size"`
	AccuracyThreshold       float64       `mapstructure:"accuracy_threshold"`
	BestNFallback           int           `mapstructure:"best_n_fallback"`
	Timezone                string        `mapstructure:"timezone"`
	StaleSessionReviewAfter time.Duration `mapstructure:"stale_session_review_after"`
}

// RoutingConfig configures the road-network distance provider.
type RoutingConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BaseURL          string        `mapstructure:"base_url"`
	Profile          string        `mapstructure:"profile"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxPoints        int           `mapstructure:"max_points"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

type MonitoringConfig struct {
	MovementWindow      time.Duration `mapstructure:"movement_window"`
	FreshnessWindow     time.Duration `mapstructure:"freshness_window"`
	TrailSize           int           `mapstructure:"trail_size"`
	SpeedThresholdKmh   float64       `mapstructure:"speed_threshold_kmh"`
	DistanceThresholdKm float64       `mapstructure:"distance_threshold_km"`
	LongRunningAfter    time.Duration `mapstructure:"long_running_after"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
}

type RecalculationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Hour      int           `mapstructure:"hour"`
	Limit     int           `mapstructure:"limit"`
	ItemDelay time.Duration `mapstructure:"item_delay"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.timeout", 30*time.Second)

	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.retry_attempts", 5)
	v.SetDefault("database.retry_delay", 2*time.Second)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("broker.driver", "memory")
	v.SetDefault("broker.queue_size", 1000)
	v.SetDefault("broker.rabbitmq.port", 5672)
	v.SetDefault("broker.rabbitmq.exchange", "fieldtrack_events")
	v.SetDefault("broker.rabbitmq.queue", "fieldtrack_alerts")

	v.SetDefault("auth.jwt_expiry_hours", 24)
	v.SetDefault("auth.jwt_issuer", "fieldtrack")
	v.SetDefault("auth.rate_limit", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracking.max_batch_size", 5000)
	v.SetDefault("tracking.accuracy_threshold", 50.0)
	v.SetDefault("tracking.best_n_fallback", 3)
	v.SetDefault("tracking.timezone", "UTC")
	v.SetDefault("tracking.stale_session_review_after", 12*time.Hour)

	v.SetDefault("routing.enabled", false)
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.timeout", 5*time.Second)
	v.SetDefault("routing.max_points", 100)
	v.SetDefault("routing.cache_ttl", 24*time.Hour)
	v.SetDefault("routing.failure_threshold", 5)
	v.SetDefault("routing.cooldown", time.Minute)

	v.SetDefault("monitoring.movement_window", 5*time.Minute)
	v.SetDefault("monitoring.freshness_window", 10*time.Minute)
	v.SetDefault("monitoring.trail_size", 20)
	v.SetDefault("monitoring.speed_threshold_kmh", 1.0)
	v.SetDefault("monitoring.distance_threshold_km", 0.05)
	v.SetDefault("monitoring.long_running_after", 10*time.Hour)
	v.SetDefault("monitoring.sweep_interval", 5*time.Minute)

	v.SetDefault("recalculation.enabled", true)
	v.SetDefault("recalculation.hour", 2)
	v.SetDefault("recalculation.limit", 500)
	v.SetDefault("recalculation.item_delay", 250*time.Millisecond)
}

// envVars maps config keys to the environment variables that override them.
var envVars = map[string]string{
	"server.port":                 "PORT",
	"server.mode":                 "SERVER_MODE",
	"server.timeout":              "SERVER_TIMEOUT",
	"database.host":               "DB_HOST",
	"database.port":               "DB_PORT",
	"database.user":               "DB_USER",
	"database.password":           "DB_PASSWORD",
	"database.name":               "DB_NAME",
	"database.sslmode":            "DB_SSLMODE",
	"redis.host":                  "REDIS_HOST",
	"redis.port":                  "REDIS_PORT",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"broker.driver":               "BROKER_DRIVER",
	"broker.rabbitmq.host":        "RABBITMQ_HOST",
	"broker.rabbitmq.port":        "RABBITMQ_PORT",
	"broker.rabbitmq.user":        "RABBITMQ_USER",
	"broker.rabbitmq.password":    "RABBITMQ_PASSWORD",
	"auth.jwt_secret":             "JWT_SECRET",
	"auth.jwt_issuer":             "JWT_ISSUER",
	"auth.jwt_expiry_hours":       "JWT_EXPIRY_HOURS",
	"logging.level":               "LOG_LEVEL",
	"logging.format":              "LOG_FORMAT",
	"tracking.max_batch_size":     "TRACKING_MAX_BATCH_SIZE",
	"tracking.accuracy_threshold": "TRACKING_ACCURACY_THRESHOLD",
	"routing.enabled":             "ROUTING_ENABLED",
	"routing.base_url":            "ROUTING_BASE_URL",
	"routing.timeout":             "ROUTING_TIMEOUT",
	"monitoring.freshness_window": "MONITORING_FRESHNESS_WINDOW",
	"recalculation.enabled":       "RECALCULATION_ENABLED",
}

func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if envConfigFile := os.Getenv("CONFIG_FILE"); envConfigFile != "" {
		configPath = envConfigFile
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		dir := filepath.Dir(configPath)
		file := filepath.Base(configPath)
		name := strings.TrimSuffix(file, filepath.Ext(file))

		v.AddConfigPath(dir)
		v.SetConfigName(name)
	} else {
		_, filename, _, _ := runtime.Caller(0)
		pkgConfigDir := filepath.Dir(filename)
		projectRoot := filepath.Join(pkgConfigDir, "..", "..")

		v.AddConfigPath(pkgConfigDir)
		v.AddConfigPath(projectRoot)
		v.AddConfigPath(filepath.Join(projectRoot, "pkg", "config"))
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error loading config file: %v", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for configKey, envVar := range envVars {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		switch envVar {
		case "PORT", "DB_PORT", "REDIS_PORT", "REDIS_DB", "RABBITMQ_PORT", "JWT_EXPIRY_HOURS", "TRACKING_MAX_BATCH_SIZE":
			if intVal, err := strconv.Atoi(value); err == nil {
				v.Set(configKey, intVal)
			}
		case "TRACKING_ACCURACY_THRESHOLD":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				v.Set(configKey, f)
			}
		case "SERVER_TIMEOUT", "ROUTING_TIMEOUT", "MONITORING_FRESHNESS_WINDOW":
			if d, err := time.ParseDuration(value); err == nil {
				v.Set(configKey, d)
			}
		case "ROUTING_ENABLED", "RECALCULATION_ENABLED":
			if b, err := strconv.ParseBool(value); err == nil {
				v.Set(configKey, b)
			}
		default:
			v.Set(configKey, value)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the tracking core cannot run with.
func (c *Config) Validate() error {
	if c.Tracking.MaxBatchSize <= 0 {
		return fmt.Errorf("tracking.max_batch_size must be positive, got %d", c.Tracking.MaxBatchSize)
	}
	if c.Tracking.AccuracyThreshold <= 0 {
		return fmt.Errorf("tracking.accuracy_threshold must be positive, got %v", c.Tracking.AccuracyThreshold)
	}
	if c.Tracking.BestNFallback <= 0 {
		return fmt.Errorf("tracking.best_n_fallback must be positive, got %d", c.Tracking.BestNFallback)
	}
	if _, err := time.LoadLocation(c.Tracking.Timezone); err != nil {
		return fmt.Errorf("tracking.timezone: %w", err)
	}
	if c.Routing.Enabled && c.Routing.BaseURL == "" {
		return errors.New("routing.base_url is required when routing is enabled")
	}
	if c.Broker.Driver != "memory" && c.Broker.Driver != "rabbitmq" {
		return fmt.Errorf("broker.driver must be memory or rabbitmq, got %q", c.Broker.Driver)
	}
	return nil
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.Timezone)
}
