package tracking

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Numeric is a JSON number that may also arrive as a numeric string.
// Decoding never fails: unusable input is recorded as present but invalid so
// one bad reading cannot reject a whole batch.
type Numeric struct {
	Value   float64
	Present bool
	Valid   bool
}

// Num returns a valid Numeric.
func Num(v float64) Numeric {
	return Numeric{Value: v, Present: true, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

func (n *Numeric) UnmarshalJSON(b []byte) error {
	*n = Numeric{}
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			n.Present = true
			return nil
		}
		s = strings.TrimSpace(unquoted)
		if s == "" {
			return nil
		}
	}
	n.Present = true

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n.Value = f
	n.Valid = true
	return nil
}

func (n Numeric) MarshalJSON() ([]byte, error) {
	if !n.Present || !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// ptr returns the value when usable.
func (n Numeric) ptr() *float64 {
	if !n.Present || !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// FlexTime accepts RFC3339 strings or epoch timestamps in seconds or
// milliseconds. Unparseable values decode to the zero time.
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	s := string(bytes.TrimSpace(b))
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, unquoted); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		s = unquoted
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		// anything below 1e11 cannot be epoch milliseconds after 1973
		if f < 1e11 {
			f *= 1000
		}
		t.Time = time.UnixMilli(int64(f)).UTC()
	}
	return nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// RawReading is one coordinate as received from a device.
type RawReading struct {
	Latitude  Numeric  `json:"latitude"`
	Longitude Numeric  `json:"longitude"`
	Timestamp FlexTime `json:"timestamp"`
	Accuracy  Numeric  `json:"accuracy"`
	Speed     Numeric  `json:"speed"`
	Altitude  Numeric  `json:"altitude"`
}

// reading is a sanitized RawReading.
type reading struct {
	lat, lon   float64
	recordedAt time.Time
	accuracy   *float64
	speed      *float64
	altitude   *float64
	order      int
}

func (r reading) sample(sessionID uuid.UUID) LocationSample {
	return LocationSample{
		SessionID:  sessionID,
		Latitude:   r.lat,
		Longitude:  r.lon,
		RecordedAt: r.recordedAt,
		Accuracy:   r.accuracy,
		Speed:      r.speed,
		Altitude:   r.altitude,
	}
}

// ValidCoordinate reports whether lat/lon are finite and in range.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// sanitize drops readings without a usable coordinate. Missing timestamps
// take receivedAt. The result is ordered by timestamp, then input order.
func sanitize(raw []RawReading, receivedAt time.Time) (kept []reading, dropped int) {
	kept = make([]reading, 0, len(raw))
	for i, r := range raw {
		if !r.Latitude.Valid || !r.Longitude.Valid || !ValidCoordinate(r.Latitude.Value, r.Longitude.Value) {
			dropped++
			continue
		}
		ts := r.Timestamp.Time
		if ts.IsZero() {
			ts = receivedAt
		}
		kept = append(kept, reading{
			lat:        r.Latitude.Value,
			lon:        r.Longitude.Value,
			recordedAt: ts.UTC(),
			accuracy:   r.Accuracy.ptr(),
			speed:      r.Speed.ptr(),
			altitude:   r.Altitude.ptr(),
			order:      i,
		})
	}
	sortReadings(kept)
	return kept, dropped
}

// filterAccuracy drops readings whose reported accuracy exceeds threshold.
// Readings without accuracy pass. When every reading would be dropped, the
// bestN most accurate are kept instead and fellBack is set.
func filterAccuracy(in []reading, threshold float64, bestN int) (kept []reading, dropped int, fellBack bool) {
	if threshold <= 0 || len(in) == 0 {
		return in, 0, false
	}

	kept = make([]reading, 0, len(in))
	for _, r := range in {
		if r.accuracy != nil && *r.accuracy > threshold {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) > 0 {
		return kept, len(in) - len(kept), false
	}

	if bestN <= 0 {
		bestN = 1
	}
	ranked := make([]reading, len(in))
	copy(ranked, in)
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].accuracy < *ranked[j].accuracy
	})
	if bestN > len(ranked) {
		bestN = len(ranked)
	}
	kept = ranked[:bestN]
	sortReadings(kept)
	return kept, len(in) - len(kept), true
}

func sortReadings(rs []reading) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].recordedAt.Equal(rs[j].recordedAt) {
			return rs[i].order < rs[j].order
		}
		return rs[i].recordedAt.Before(rs[j].recordedAt)
	})
}
