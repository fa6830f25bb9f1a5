package dto

import (
	"time"

	"github.com/google/uuid"
)

type ReportErrorRequest struct {
	ErrorType    string                 `json:"error_type" validate:"required,not_empty,max=64"`
	ErrorMessage string                 `json:"error_message" validate:"required,not_empty"`
	Severity     string                 `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Context      map[string]interface{} `json:"context,omitempty"`
	DeviceInfo   string                 `json:"device_info,omitempty" validate:"max=255"`
	AppVersion   string                 `json:"app_version,omitempty" validate:"max=32"`
}

type ResolveErrorsRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
}

// ErrorLogQuery is bound from the query string of GET /api/errors.
type ErrorLogQuery struct {
	Resolved  *bool      `form:"resolved"`
	ErrorType string     `form:"error_type" validate:"max=64"`
	Since     *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset    int        `form:"offset" validate:"omitempty,min=0"`
}

type ResolveErrorsResponse struct {
	Resolved int64 `json:"resolved"`
}
