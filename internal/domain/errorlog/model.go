package errorlog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Severity grades a client-side error report.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps s to a known severity, defaulting to medium.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s)
	}
	return SeverityMedium
}

// ErrorReport is an error a field device reported about tracking.
type ErrorReport struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	UserID       uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index"`
	ErrorType    string         `json:"error_type" gorm:"type:varchar(64);not null;index"`
	ErrorMessage string         `json:"error_message" gorm:"type:text;not null"`
	Severity     Severity       `json:"severity" gorm:"type:varchar(16);not null;default:'medium'"`
	Context      datatypes.JSON `json:"context,omitempty"`
	DeviceInfo   string         `json:"device_info,omitempty" gorm:"type:varchar(255)"`
	AppVersion   string         `json:"app_version,omitempty" gorm:"type:varchar(32)"`
	Resolved     bool           `json:"resolved" gorm:"not null;default:false;index"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy   *uuid.UUID     `json:"resolved_by,omitempty" gorm:"type:uuid"`
	CreatedAt    time.Time      `json:"created_at" gorm:"index"`
}

func (r *ErrorReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (ErrorReport) TableName() string {
	return "error_reports"
}

// Filter narrows List results.
type Filter struct {
	Resolved  *bool
	ErrorType string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Stats summarizes the reports visible to a caller.
type Stats struct {
	Total      int64            `json:"total"`
	Unresolved int64            `json:"unresolved"`
	ByType     map[string]int64 `json:"by_type"`
}
