package connection

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Hari1275/sdp-sub000/pkg/config"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	*gorm.DB
	dsn string
}

// Wrap adapts an already opened gorm handle, e.g. an in-memory sqlite
// database in tests.
func Wrap(db *gorm.DB) *Database {
	return &Database{DB: db}
}

// NewDatabase opens the Postgres pool, retrying while the server comes up.
func NewDatabase(cfg *config.Config, log *zap.Logger) (*Database, error) {
	dsn := cfg.Database.DSN()

	attempts := cfg.Database.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = ping(dsn); lastErr == nil {
			break
		}
		log.Warn("Database not reachable yet",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr))
		if i < attempts {
			time.Sleep(cfg.Database.RetryDelay)
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}

	gormConfig := &gorm.Config{
		Logger:      logger.Default.LogMode(gormLogLevel(cfg.Logging.Level)),
		PrepareStmt: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database with GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	maxIdleConns := 10
	maxOpenConns := 100
	if cfg.Database.MaxIdleConns > 0 {
		maxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.MaxOpenConns > 0 {
		maxOpenConns = cfg.Database.MaxOpenConns
	}
	lifetime := time.Hour
	if cfg.Database.ConnMaxLifetime > 0 {
		lifetime = cfg.Database.ConnMaxLifetime
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping connection pool: %w", err)
	}

	return &Database{
		DB:  db,
		dsn: dsn,
	}, nil
}

// ping verifies connectivity with a plain lib/pq connection so Postgres
// errors surface with their SQLSTATE.
func ping(dsn string) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to create sql.DB: %w", err)
	}
	defer sqlDB.Close()

	sqlDB.SetConnMaxLifetime(10 * time.Second)
	if err := sqlDB.Ping(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("postgres error: code=%s, message=%s, detail=%s", pqErr.Code, pqErr.Message, pqErr.Detail)
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Healthy reports whether the pool can reach the server.
func (db *Database) Healthy() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// IsPostgres reports whether the handle talks to Postgres. Row locks and
// extensions are only issued there.
func (db *Database) IsPostgres() bool {
	return db.Dialector.Name() == "postgres"
}

// Close releases the pool.
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}
