package summary

import (
	"context"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	// Increment adds delta to the (userID, day) row, creating it if absent,
	// in a single statement.
	Increment(ctx context.Context, userID uuid.UUID, day time.Time, delta Delta) error
	Get(ctx context.Context, userID uuid.UUID, day time.Time) (*DailySummary, error)
	List(ctx context.Context, scope access.Scope, from, to time.Time) ([]DailySummary, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Increment(ctx context.Context, userID uuid.UUID, day time.Time, delta Delta) error {
	row := DailySummary{
		ID:              uuid.New(),
		UserID:          userID,
		Day:             day,
		TotalDistanceKm: delta.DistanceKm,
		TotalHours:      delta.Hours,
		VisitCount:      delta.Visits,
		BusinessCount:   delta.Business,
		CheckInCount:    delta.CheckIns,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_distance_km": gorm.Expr("daily_summaries.total_distance_km + excluded.total_distance_km"),
			"total_hours":       gorm.Expr("daily_summaries.total_hours + excluded.total_hours"),
			"visit_count":       gorm.Expr("daily_summaries.visit_count + excluded.visit_count"),
			"business_count":    gorm.Expr("daily_summaries.business_count + excluded.business_count"),
			"check_in_count":    gorm.Expr("daily_summaries.check_in_count + excluded.check_in_count"),
			"updated_at":        gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
}

func (r *repository) Get(ctx context.Context, userID uuid.UUID, day time.Time) (*DailySummary, error) {
	var s DailySummary
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) List(ctx context.Context, scope access.Scope, from, to time.Time) ([]DailySummary, error) {
	var rows []DailySummary
	err := r.db.WithContext(ctx).
		Scopes(scope.Filter("user_id")).
		Where("day >= ? AND day <= ?", from, to).
		Order("day DESC, user_id").
		Find(&rows).Error
	return rows, err
}
