package errorlog

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, report *ErrorReport) error
	List(ctx context.Context, scope access.Scope, filter Filter) ([]ErrorReport, error)
	Stats(ctx context.Context, scope access.Scope, filter Filter) (*Stats, error)
	Resolve(ctx context.Context, ids []uuid.UUID, by uuid.UUID, at time.Time) (int64, error)
}

type postgresRepository struct {
	db     *connection.Database
	logger *logrus.Logger
}

func NewRepository(db *connection.Database, logger *logrus.Logger) Repository {
	return &postgresRepository{db: db, logger: logger}
}

// withRetry runs fn once more when the first attempt lost its connection.
// The pool replaces broken connections on its own.
func (r *postgresRepository) withRetry(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	err := fn(r.db.WithContext(ctx))
	if err == nil {
		return nil
	}

	r.logger.WithError(err).WithField("operation", operation).Error("Database operation failed")
	if !isConnectionError(err) || ctx.Err() != nil {
		return err
	}

	r.logger.WithField("operation", operation).Warn("Database connection error, retrying operation")
	if retryErr := fn(r.db.WithContext(ctx)); retryErr != nil {
		r.logger.WithError(retryErr).Error("Operation failed after retry")
		return retryErr
	}
	return nil
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset by peer", "broken pipe", "connection closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (r *postgresRepository) Create(ctx context.Context, report *ErrorReport) error {
	return r.withRetry(ctx, "Create", func(tx *gorm.DB) error {
		return tx.Create(report).Error
	})
}

func filtered(tx *gorm.DB, scope access.Scope, filter Filter) *gorm.DB {
	q := tx.Model(&ErrorReport{}).Scopes(scope.Filter("user_id"))
	if filter.Resolved != nil {
		q = q.Where("resolved = ?", *filter.Resolved)
	}
	if filter.ErrorType != "" {
		q = q.Where("error_type = ?", filter.ErrorType)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", *filter.Since)
	}
	return q
}

func (r *postgresRepository) List(ctx context.Context, scope access.Scope, filter Filter) ([]ErrorReport, error) {
	var reports []ErrorReport
	err := r.withRetry(ctx, "List", func(tx *gorm.DB) error {
		q := filtered(tx, scope, filter).Order("created_at DESC")
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
		return q.Find(&reports).Error
	})
	return reports, err
}

func (r *postgresRepository) Stats(ctx context.Context, scope access.Scope, filter Filter) (*Stats, error) {
	type typeCount struct {
		ErrorType string
		Resolved  bool
		Count     int64
	}
	var rows []typeCount

	// Resolved state is part of the grouping, so the filter must not pin it.
	filter.Resolved = nil
	err := r.withRetry(ctx, "Stats", func(tx *gorm.DB) error {
		return filtered(tx, scope, filter).
			Select("error_type, resolved, COUNT(*) AS count").
			Group("error_type, resolved").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByType: make(map[string]int64)}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByType[row.ErrorType] += row.Count
		if !row.Resolved {
			stats.Unresolved += row.Count
		}
	}
	return stats, nil
}

func (r *postgresRepository) Resolve(ctx context.Context, ids []uuid.UUID, by uuid.UUID, at time.Time) (int64, error) {
	var affected int64
	err := r.withRetry(ctx, "Resolve", func(tx *gorm.DB) error {
		result := tx.Model(&ErrorReport{}).
			Where("id IN ? AND resolved = ?", ids, false).
			Updates(map[string]interface{}{
				"resolved":    true,
				"resolved_at": at,
				"resolved_by": by,
			})
		affected = result.RowsAffected
		return result.Error
	})
	return affected, err
}
