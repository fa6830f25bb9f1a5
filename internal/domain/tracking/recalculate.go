package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errTooFewSamples = errors.New("session has fewer than two samples")

type RecalculateOptions struct {
	// Force recomputes every closed session instead of only those without a
	// distance.
	Force     bool
	Limit     int
	ItemDelay time.Duration
}

type RecalculateItem struct {
	SessionID   uuid.UUID `json:"session_id"`
	SampleCount int       `json:"sample_count"`
	PreviousKm  float64   `json:"previous_km"`
	DistanceKm  float64   `json:"distance_km"`
	Method      string    `json:"method,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type RecalculateReport struct {
	Candidates int               `json:"candidates"`
	Updated    int               `json:"updated"`
	Failed     int               `json:"failed"`
	Cancelled  bool              `json:"cancelled"`
	Items      []RecalculateItem `json:"items"`
}

// Recalculate recomputes closed sessions one at a time. It stops between
// sessions when ctx is done and reports how far it got.
func (s *service) Recalculate(ctx context.Context, opts RecalculateOptions) (*RecalculateReport, error) {
	ids, err := s.repo.ListForRecalculation(ctx, opts.Force, opts.Limit)
	if err != nil {
		return nil, err
	}

	report := &RecalculateReport{Candidates: len(ids), Items: make([]RecalculateItem, 0, len(ids))}
	for i, id := range ids {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if i > 0 && opts.ItemDelay > 0 {
			select {
			case <-ctx.Done():
				report.Cancelled = true
			case <-time.After(opts.ItemDelay):
			}
			if report.Cancelled {
				break
			}
		}

		item := s.recalculateOne(ctx, id)
		if item.Error != "" {
			report.Failed++
			recalculatedSessions.WithLabelValues("failed").Inc()
		} else {
			report.Updated++
			recalculatedSessions.WithLabelValues("updated").Inc()
		}
		report.Items = append(report.Items, item)
	}

	s.logger.Info("Distance recalculation finished",
		zap.Bool("force", opts.Force),
		zap.Int("candidates", report.Candidates),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Bool("cancelled", report.Cancelled))
	return report, nil
}

func (s *service) recalculateOne(ctx context.Context, id uuid.UUID) RecalculateItem {
	item := RecalculateItem{SessionID: id}

	unlock := s.sessionLocks.Lock(id)
	defer unlock()

	var (
		userID   uuid.UUID
		closedAt time.Time
	)
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		session, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		samples, err := repo.ListSamples(ctx, id)
		if err != nil {
			return err
		}
		item.SampleCount = len(samples)
		item.PreviousKm = session.TotalDistanceKm
		if len(samples) < 2 {
			return errTooFewSamples
		}

		result := s.calculator.ComputeRoute(ctx, Points(samples))
		if err := applyResult(session, result); err != nil {
			return err
		}
		item.DistanceKm = result.DistanceKm
		item.Method = string(result.Method)
		userID = session.UserID
		if session.CheckOut != nil {
			closedAt = *session.CheckOut
		}
		return repo.SaveSession(ctx, session)
	})
	if err != nil {
		item.Error = err.Error()
		s.logger.Warn("Session recalculation failed", zap.String("session_id", id.String()), zap.Error(err))
		return item
	}

	// Keep the day the session closed on consistent with its new distance.
	s.summaries.Increment(ctx, userID, closedAt, summary.Delta{DistanceKm: item.DistanceKm - item.PreviousKm})
	return item
}
