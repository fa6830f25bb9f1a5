package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/distance"
	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestResult reports what happened to one batch. Processed, Filtered and
// AccuracyFiltered always add up to the number of readings received.
type IngestResult struct {
	Processed        int             `json:"processed"`
	Filtered         int             `json:"filtered"`
	AccuracyFiltered int             `json:"accuracyFiltered"`
	DistanceAddedKm  float64         `json:"distanceAdded"`
	TotalDistanceKm  float64         `json:"total_distance_km"`
	Method           distance.Method `json:"method"`
	Warnings         []string        `json:"warnings"`
}

func (s *service) IngestBatch(ctx context.Context, userID, sessionID uuid.UUID, readings []RawReading) (*IngestResult, error) {
	if userID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	if sessionID == uuid.Nil {
		return nil, ErrSessionIDRequired
	}
	if len(readings) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(readings) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d readings, limit %d", ErrBatchTooLarge, len(readings), s.cfg.MaxBatchSize)
	}
	batchSize.Observe(float64(len(readings)))

	receivedAt := s.now()
	sanitized, dropped := sanitize(readings, receivedAt)
	kept, inaccurate, fellBack := filterAccuracy(sanitized, s.cfg.AccuracyThreshold, s.cfg.BestNFallback)

	out := &IngestResult{
		Processed:        len(kept),
		Filtered:         dropped,
		AccuracyFiltered: inaccurate,
		Method:           distance.MethodHaversine,
		Warnings:         []string{},
	}
	if fellBack {
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"all readings exceeded the %.0fm accuracy threshold; kept the %d most accurate",
			s.cfg.AccuracyThreshold, len(kept)))
	}

	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()

	var (
		result distance.Result
		added  float64
	)
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		session, err := repo.FindByIDForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.UserID != userID {
			return ErrNotSessionOwner
		}
		if !session.IsOpen() {
			return ErrSessionClosed
		}
		if len(kept) == 0 {
			return ErrNoValidCoordinates
		}

		samples := make([]LocationSample, len(kept))
		createdAt := time.Now().UTC()
		for i, r := range kept {
			samples[i] = r.sample(sessionID)
			samples[i].CreatedAt = createdAt.Add(time.Duration(i) * time.Microsecond)
		}

		around, err := repo.SamplesAround(ctx, sessionID, samples[0].RecordedAt, samples[len(samples)-1].RecordedAt)
		if err != nil {
			return err
		}
		if err := repo.InsertSamples(ctx, samples); err != nil {
			return err
		}

		// The batch may land anywhere in the path when a device uploads late,
		// so the distance added is how much longer the affected stretch got.
		result = s.calculator.ComputeRoute(ctx, Points(mergeByTime(around, samples)))
		added = result.DistanceKm
		if len(around) >= 2 {
			added -= s.calculator.ComputeRoute(ctx, Points(around)).DistanceKm
		}
		if added < 0 {
			added = 0
		}

		if added > 0 {
			if err := repo.AddDistance(ctx, sessionID, added); err != nil {
				return err
			}
		}
		out.TotalDistanceKm = session.TotalDistanceKm + added
		return nil
	})
	if err != nil {
		samplesIngested.WithLabelValues("rejected").Add(float64(len(readings)))
		return nil, err
	}

	samplesIngested.WithLabelValues("stored").Add(float64(out.Processed))
	samplesIngested.WithLabelValues("filtered").Add(float64(out.Filtered))
	samplesIngested.WithLabelValues("inaccurate").Add(float64(out.AccuracyFiltered))

	out.DistanceAddedKm = added
	out.Method = result.Method
	if result.IsFallback() {
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"routing provider unavailable (%s); distance estimated in a straight line",
			result.Stats.FallbackReason))
	}

	s.summaries.Increment(ctx, userID, receivedAt, summary.Delta{DistanceKm: added})

	latest := kept[len(kept)-1]
	s.publish(ctx, events.NewTrackingEvent(events.EventTypeSamplesIngested, userID, sessionID, events.LocationDetails{
		Latitude:        latest.lat,
		Longitude:       latest.lon,
		Processed:       out.Processed,
		DistanceAddedKm: out.DistanceAddedKm,
		TotalDistanceKm: out.TotalDistanceKm,
		Method:          string(out.Method),
	}))

	s.logger.Debug("Coordinate batch ingested",
		zap.String("session_id", sessionID.String()),
		zap.Int("received", len(readings)),
		zap.Int("processed", out.Processed),
		zap.Float64("distance_added_km", out.DistanceAddedKm))
	return out, nil
}

// mergeByTime interleaves batch into stored in the order ListSamples returns
// them: by recorded time, with already stored samples first on ties. Both
// inputs must be sorted by recorded time.
func mergeByTime(stored, batch []LocationSample) []LocationSample {
	out := make([]LocationSample, 0, len(stored)+len(batch))
	i, j := 0, 0
	for i < len(stored) && j < len(batch) {
		if !batch[j].RecordedAt.Before(stored[i].RecordedAt) {
			out = append(out, stored[i])
			i++
		} else {
			out = append(out, batch[j])
			j++
		}
	}
	out = append(out, stored[i:]...)
	return append(out, batch[j:]...)
}
