package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sampleInsertBatch bounds the rows per INSERT statement.
const sampleInsertBatch = 500

type Repository interface {
	// Transaction runs fn against a repository bound to one database
	// transaction.
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	CreateSession(ctx context.Context, session *TrackingSession) error
	SaveSession(ctx context.Context, session *TrackingSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*TrackingSession, error)
	// FindByIDForUpdate also takes a row lock where the database supports it.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*TrackingSession, error)
	FindOpenByUser(ctx context.Context, userID uuid.UUID) (*TrackingSession, error)
	AddDistance(ctx context.Context, id uuid.UUID, deltaKm float64) error
	ListOpen(ctx context.Context, scope access.Scope) ([]TrackingSession, error)
	ListForRecalculation(ctx context.Context, force bool, limit int) ([]uuid.UUID, error)

	InsertSamples(ctx context.Context, samples []LocationSample) error
	LastSample(ctx context.Context, sessionID uuid.UUID) (*LocationSample, error)
	ListSamples(ctx context.Context, sessionID uuid.UUID) ([]LocationSample, error)
	RecentSamples(ctx context.Context, sessionID uuid.UUID, limit int) ([]LocationSample, error)
	// SamplesSince returns the samples recorded at or after since, oldest
	// first.
	SamplesSince(ctx context.Context, sessionID uuid.UUID, since time.Time) ([]LocationSample, error)
	// SamplesAround returns the stored stretch of path that a batch spanning
	// from..to will be inserted into: the last sample before from, every
	// sample within [from, to] and the first sample after to, oldest first.
	SamplesAround(ctx context.Context, sessionID uuid.UUID, from, to time.Time) ([]LocationSample, error)
	CountSamples(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: connection.Wrap(tx)})
	})
}

func (r *repository) CreateSession(ctx context.Context, session *TrackingSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) SaveSession(ctx context.Context, session *TrackingSession) error {
	result := r.db.WithContext(ctx).Save(session)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*TrackingSession, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*TrackingSession, error) {
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if r.db.IsPostgres() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(q)
}

func (r *repository) FindOpenByUser(ctx context.Context, userID uuid.UUID) (*TrackingSession, error) {
	return r.first(r.db.WithContext(ctx).
		Where("user_id = ? AND check_out IS NULL", userID).
		Order("check_in DESC"))
}

func (r *repository) first(q *gorm.DB) (*TrackingSession, error) {
	var session TrackingSession
	if err := q.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) AddDistance(ctx context.Context, id uuid.UUID, deltaKm float64) error {
	return r.db.WithContext(ctx).Model(&TrackingSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_distance_km": gorm.Expr("total_distance_km + ?", deltaKm),
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *repository) ListOpen(ctx context.Context, scope access.Scope) ([]TrackingSession, error) {
	var sessions []TrackingSession
	err := r.db.WithContext(ctx).
		Scopes(scope.Filter("user_id")).
		Where("check_out IS NULL").
		Order("check_in ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *repository) ListForRecalculation(ctx context.Context, force bool, limit int) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).Model(&TrackingSession{}).
		Where("check_out IS NOT NULL")
	if !force {
		q = q.Where("total_distance_km IS NULL OR total_distance_km <= 0")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var ids []uuid.UUID
	err := q.Order("check_out DESC").Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) InsertSamples(ctx context.Context, samples []LocationSample) error {
	if len(samples) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(samples, sampleInsertBatch).Error
}

func (r *repository) LastSample(ctx context.Context, sessionID uuid.UUID) (*LocationSample, error) {
	var sample LocationSample
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at DESC").
		Order("created_at DESC").
		First(&sample).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}

func (r *repository) ListSamples(ctx context.Context, sessionID uuid.UUID) ([]LocationSample, error) {
	var samples []LocationSample
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at ASC").
		Order("created_at ASC").
		Find(&samples).Error
	return samples, err
}

// RecentSamples returns the newest limit samples in chronological order.
func (r *repository) RecentSamples(ctx context.Context, sessionID uuid.UUID, limit int) ([]LocationSample, error) {
	var samples []LocationSample
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&samples).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

func (r *repository) SamplesSince(ctx context.Context, sessionID uuid.UUID, since time.Time) ([]LocationSample, error) {
	var samples []LocationSample
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND recorded_at >= ?", sessionID, since.UTC()).
		Order("recorded_at ASC").
		Order("created_at ASC").
		Find(&samples).Error
	return samples, err
}

func (r *repository) SamplesAround(ctx context.Context, sessionID uuid.UUID, from, to time.Time) ([]LocationSample, error) {
	from, to = from.UTC(), to.UTC()

	var before []LocationSample
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND recorded_at < ?", sessionID, from).
		Order("recorded_at DESC").
		Order("created_at DESC").
		Limit(1).
		Find(&before).Error
	if err != nil {
		return nil, err
	}

	var within []LocationSample
	err = r.db.WithContext(ctx).
		Where("session_id = ? AND recorded_at >= ? AND recorded_at <= ?", sessionID, from, to).
		Order("recorded_at ASC").
		Order("created_at ASC").
		Find(&within).Error
	if err != nil {
		return nil, err
	}

	var after []LocationSample
	err = r.db.WithContext(ctx).
		Where("session_id = ? AND recorded_at > ?", sessionID, to).
		Order("recorded_at ASC").
		Order("created_at ASC").
		Limit(1).
		Find(&after).Error
	if err != nil {
		return nil, err
	}

	out := make([]LocationSample, 0, len(before)+len(within)+len(after))
	out = append(out, before...)
	out = append(out, within...)
	return append(out, after...), nil
}

func (r *repository) CountSamples(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&LocationSample{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
