package summary

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DailySummary is the per-user, per-day rollup. Rows are only ever changed
// by Repository.Increment.
type DailySummary struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	UserID          uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_daily_summary_user_day,priority:1"`
	Day             time.Time `json:"day" gorm:"type:date;not null;uniqueIndex:idx_daily_summary_user_day,priority:2"`
	TotalDistanceKm float64   `json:"total_distance_km" gorm:"not null;default:0"`
	TotalHours      float64   `json:"total_hours" gorm:"not null;default:0"`
	VisitCount      int       `json:"visit_count" gorm:"not null;default:0"`
	BusinessCount   int       `json:"business_count" gorm:"not null;default:0"`
	CheckInCount    int       `json:"check_in_count" gorm:"not null;default:0"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *DailySummary) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (DailySummary) TableName() string {
	return "daily_summaries"
}

// Delta is an additive contribution to one day.
type Delta struct {
	DistanceKm float64
	Hours      float64
	Visits     int
	Business   int
	CheckIns   int
}

// IsZero reports whether applying d would change nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// DayOf truncates t to its calendar day in loc, returned as midnight UTC so
// the same day always maps to the same key.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
