package migrations

import (
	"errors"
	"fmt"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/errorlog"
	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/Hari1275/sdp-sub000/internal/domain/user"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/connection"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrationRecord tracks the migration history
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"not null;unique"`
	Version   int       `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Models lists the tables in migration order. Users come first since
// sessions, summaries and error reports reference them.
func Models() []interface{} {
	return []interface{}{
		&user.User{},
		&tracking.TrackingSession{},
		&tracking.LocationSample{},
		&summary.DailySummary{},
		&errorlog.ErrorReport{},
	}
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *connection.Database, logger *zap.Logger) error {
	logger.Info("Starting automatic database migration...")

	if db.IsPostgres() {
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
			logger.Error("Failed to create UUID extension", zap.Error(err))
			return fmt.Errorf("failed to create UUID extension: %w", err)
		}
	}

	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		logger.Error("Failed to create migrations table", zap.Error(err))
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var lastVersion int
		if err := tx.Model(&MigrationRecord{}).Select("COALESCE(MAX(version), 0)").Scan(&lastVersion).Error; err != nil {
			return fmt.Errorf("failed to get last version: %w", err)
		}

		applied := 0
		for _, model := range Models() {
			modelName := fmt.Sprintf("%T", model)

			var record MigrationRecord
			err := tx.Where("name = ?", modelName).First(&record).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to read migration record for %s: %w", modelName, err)
			}
			isNewMigration := errors.Is(err, gorm.ErrRecordNotFound)

			if err := tx.AutoMigrate(model); err != nil {
				logger.Error("Failed to migrate model",
					zap.String("model", modelName),
					zap.Error(err),
				)
				return fmt.Errorf("failed to migrate %s: %w", modelName, err)
			}

			if !isNewMigration {
				continue
			}
			applied++
			record = MigrationRecord{
				Name:      modelName,
				Version:   lastVersion + applied,
				AppliedAt: time.Now(),
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to record migration for %s: %w", modelName, err)
			}
			logger.Info("Applied new migration",
				zap.String("model", modelName),
				zap.Int("version", record.Version),
			)
		}

		// One open session per user is enforced by a partial unique index.
		if err := tracking.EnsureIndexes(tx); err != nil {
			return fmt.Errorf("failed to create tracking indexes: %w", err)
		}

		logger.Info("Database migration completed successfully", zap.Int("applied", applied))
		return nil
	})
}

// GetMigrationHistory returns the history of applied migrations
func GetMigrationHistory(db *connection.Database) ([]MigrationRecord, error) {
	var records []MigrationRecord
	err := db.Order("version ASC").Find(&records).Error
	return records, err
}
