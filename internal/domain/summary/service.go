package summary

import (
	"context"
	"errors"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var ErrInvalidRange = errors.New("invalid date range")

var incrementFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "daily_summary_increment_failures_total",
	Help: "Daily summary increments that failed and were dropped",
})

// maxRangeDays caps List queries.
const maxRangeDays = 366

type Service interface {
	// Increment applies delta to the user's day. Failures are logged and
	// dropped: the primary write that produced the delta has already committed.
	Increment(ctx context.Context, userID uuid.UUID, at time.Time, delta Delta)
	List(ctx context.Context, scope access.Scope, from, to time.Time) ([]DailySummary, error)
}

type service struct {
	repo     Repository
	location *time.Location
	logger   *zap.Logger
}

func NewService(repo Repository, location *time.Location, logger *zap.Logger) Service {
	if location == nil {
		location = time.UTC
	}
	return &service{repo: repo, location: location, logger: logger}
}

func (s *service) Increment(ctx context.Context, userID uuid.UUID, at time.Time, delta Delta) {
	if delta.IsZero() {
		return
	}
	day := DayOf(at, s.location)

	if err := s.repo.Increment(ctx, userID, day, delta); err != nil {
		incrementFailures.Inc()
		s.logger.Error("Failed to increment daily summary",
			zap.String("user_id", userID.String()),
			zap.Time("day", day),
			zap.Float64("distance_km", delta.DistanceKm),
			zap.Float64("hours", delta.Hours),
			zap.Error(err))
	}
}

func (s *service) List(ctx context.Context, scope access.Scope, from, to time.Time) ([]DailySummary, error) {
	from, to = DayOf(from, s.location), DayOf(to, s.location)
	if to.Before(from) || to.Sub(from) > maxRangeDays*24*time.Hour {
		return nil, ErrInvalidRange
	}
	return s.repo.List(ctx, scope, from, to)
}
