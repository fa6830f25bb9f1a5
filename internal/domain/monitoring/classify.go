package monitoring

import (
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/distance"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
)

// Movement is the coarse activity state of an open session.
type Movement string

const (
	MovementMoving Movement = "moving"
	MovementIdle   Movement = "idle"
	MovementStale  Movement = "stale"
)

// metersPerSecondToKmh converts device speeds, which are reported in m/s.
const metersPerSecondToKmh = 3.6

type Thresholds struct {
	MovementWindow      time.Duration
	FreshnessWindow     time.Duration
	SpeedThresholdKmh   float64
	DistanceThresholdKm float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MovementWindow:      5 * time.Minute,
		FreshnessWindow:     10 * time.Minute,
		SpeedThresholdKmh:   1,
		DistanceThresholdKm: 0.05,
	}
}

type Classification struct {
	Status          Movement   `json:"status"`
	WindowSamples   int        `json:"window_samples"`
	WindowKm        float64    `json:"window_km"`
	AvgSpeedKmh     float64    `json:"avg_speed_kmh"`
	LastSampleAt    *time.Time `json:"last_sample_at,omitempty"`
	MinutesSinceFix float64    `json:"minutes_since_fix"`
}

// Classify decides whether a session is moving from its chronologically
// ordered samples. Only samples inside the trailing movement window count
// toward movement; freshness is judged on the newest sample overall.
func Classify(samples []tracking.LocationSample, now time.Time, th Thresholds) Classification {
	var c Classification
	if len(samples) == 0 {
		c.Status = MovementStale
		return c
	}

	latest := samples[len(samples)-1].RecordedAt
	c.LastSampleAt = &latest
	if since := now.Sub(latest); since > 0 {
		c.MinutesSinceFix = since.Minutes()
	}

	cutoff := now.Add(-th.MovementWindow)
	var (
		window   []distance.Point
		speedSum float64
		speeds   int
	)
	for _, s := range samples {
		if s.RecordedAt.Before(cutoff) {
			continue
		}
		window = append(window, s.Point())
		if s.Speed != nil && *s.Speed > 0 {
			speedSum += *s.Speed * metersPerSecondToKmh
			speeds++
		}
	}
	c.WindowSamples = len(window)

	if len(window) >= 2 {
		c.WindowKm = distance.PathKm(window)
		if speeds > 0 {
			c.AvgSpeedKmh = speedSum / float64(speeds)
		}
		if c.AvgSpeedKmh > th.SpeedThresholdKmh || c.WindowKm > th.DistanceThresholdKm {
			c.Status = MovementMoving
			return c
		}
	}

	if now.Sub(latest) <= th.FreshnessWindow {
		c.Status = MovementIdle
	} else {
		c.Status = MovementStale
	}
	return c
}
