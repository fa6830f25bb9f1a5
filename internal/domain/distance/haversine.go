package distance

import (
	"context"
	"math"
)

// EarthRadiusKm is the mean Earth radius.
const EarthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// PathKm sums consecutive segments.
func PathKm(points []Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1], points[i])
	}
	return total
}

// Haversine is the deterministic baseline calculator.
type Haversine struct{}

func (Haversine) ComputeRoute(_ context.Context, points []Point) Result {
	return haversineResult(points, MethodHaversine, AccuracyStraightLine)
}

func haversineResult(points []Point, method Method, accuracy string) Result {
	res := Result{
		Method:      method,
		AccuracyTag: accuracy,
		Stats: Stats{
			InputPoints: len(points),
			UsedPoints:  len(points),
		},
	}
	if len(points) < 2 {
		return res
	}

	for i := 1; i < len(points); i++ {
		seg := HaversineKm(points[i-1], points[i])
		res.DistanceKm += seg
		if seg > res.Stats.MaxSegmentKm {
			res.Stats.MaxSegmentKm = seg
		}
	}
	res.Stats.Segments = len(points) - 1

	first, last := points[0].Timestamp, points[len(points)-1].Timestamp
	if !first.IsZero() && !last.IsZero() && last.After(first) {
		minutes := last.Sub(first).Minutes()
		res.DurationMinutes = &minutes
	}

	return res
}
