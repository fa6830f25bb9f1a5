package tracking

import (
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/distance"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TrackingSession is one bounded work interval for one user.
type TrackingSession struct {
	ID                       uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	UserID                   uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index:idx_tracking_session_user"`
	CheckIn                  time.Time      `json:"check_in" gorm:"not null;index:idx_tracking_session_check_in"`
	CheckOut                 *time.Time     `json:"check_out,omitempty" gorm:"index:idx_tracking_session_check_out"`
	StartLatitude            float64        `json:"start_latitude" gorm:"not null"`
	StartLongitude           float64        `json:"start_longitude" gorm:"not null"`
	EndLatitude              *float64       `json:"end_latitude,omitempty"`
	EndLongitude             *float64       `json:"end_longitude,omitempty"`
	TotalDistanceKm          float64        `json:"total_distance_km" gorm:"not null;default:0"`
	CalculationMethod        string         `json:"calculation_method" gorm:"type:varchar(32);not null;default:'haversine'"`
	RouteAccuracy            string         `json:"route_accuracy" gorm:"type:varchar(32)"`
	RouteMetadata            datatypes.JSON `json:"route_metadata,omitempty"`
	EstimatedDurationMinutes *float64       `json:"estimated_duration_minutes,omitempty"`
	AutoClosed               bool           `json:"auto_closed" gorm:"default:false"`
	NeedsReview              bool           `json:"needs_review" gorm:"default:false;index:idx_tracking_session_review"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

func (s *TrackingSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (TrackingSession) TableName() string {
	return "tracking_sessions"
}

// IsOpen reports whether the session has not been checked out.
func (s *TrackingSession) IsOpen() bool {
	return s.CheckOut == nil
}

// Duration is the elapsed time up to checkout, or up to now while open.
func (s *TrackingSession) Duration(now time.Time) time.Duration {
	end := now
	if s.CheckOut != nil {
		end = *s.CheckOut
	}
	if end.Before(s.CheckIn) {
		return 0
	}
	return end.Sub(s.CheckIn)
}

// LocationSample is one immutable reading that belongs to a session.
type LocationSample struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	SessionID  uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index:idx_location_sample_session_time,priority:1"`
	Latitude   float64   `json:"latitude" gorm:"not null"`
	Longitude  float64   `json:"longitude" gorm:"not null"`
	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index:idx_location_sample_session_time,priority:2"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (l *LocationSample) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (LocationSample) TableName() string {
	return "location_samples"
}

// Point converts the sample for the distance engine.
func (l LocationSample) Point() distance.Point {
	return distance.Point{Lat: l.Latitude, Lon: l.Longitude, Timestamp: l.RecordedAt}
}

// Points converts samples in order.
func Points(samples []LocationSample) []distance.Point {
	points := make([]distance.Point, len(samples))
	for i, s := range samples {
		points[i] = s.Point()
	}
	return points
}

// EnsureIndexes creates indexes gorm tags cannot express. The partial unique
// index guarantees a user never holds two open sessions, whatever the caller.
func EnsureIndexes(db *gorm.DB) error {
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_tracking_session_one_open
		ON tracking_sessions (user_id) WHERE check_out IS NULL`).Error
}
