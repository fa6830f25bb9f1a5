package dto

import (
	"encoding/json"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/google/uuid"
)

// CheckInRequest opens a session at the given position.
type CheckInRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
}

// CheckOutRequest closes a session. SessionID is checked by the handler so a
// missing id maps to the session-id error rather than a generic one.
type CheckOutRequest struct {
	SessionID string   `json:"sessionId"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
}

// CoordinateBatchRequest carries raw device readings. Readings are decoded
// leniently; the ingestion pipeline decides what survives.
type CoordinateBatchRequest struct {
	SessionID   string                `json:"sessionId"`
	Coordinates []tracking.RawReading `json:"coordinates"`
}

// RecalculateRequest triggers a batch distance recalculation.
type RecalculateRequest struct {
	Force       bool `json:"force"`
	Limit       int  `json:"limit" validate:"omitempty,min=1,max=10000"`
	ItemDelayMs int  `json:"item_delay_ms" validate:"omitempty,min=0,max=60000"`
}

type SessionResponse struct {
	ID                       uuid.UUID       `json:"id"`
	UserID                   uuid.UUID       `json:"user_id"`
	CheckIn                  time.Time       `json:"check_in"`
	CheckOut                 *time.Time      `json:"check_out,omitempty"`
	StartLatitude            float64         `json:"start_latitude"`
	StartLongitude           float64         `json:"start_longitude"`
	EndLatitude              *float64        `json:"end_latitude,omitempty"`
	EndLongitude             *float64        `json:"end_longitude,omitempty"`
	TotalDistanceKm          float64         `json:"total_distance_km"`
	CalculationMethod        string          `json:"calculation_method"`
	RouteAccuracy            string          `json:"route_accuracy,omitempty"`
	EstimatedDurationMinutes *float64        `json:"estimated_duration_minutes,omitempty"`
	AutoClosed               bool            `json:"auto_closed"`
	NeedsReview              bool            `json:"needs_review"`
	Status                   string          `json:"status"`
	RouteMetadata            json.RawMessage `json:"route_metadata,omitempty"`
}

type CheckInResponse struct {
	Session             *SessionResponse `json:"session"`
	AutoClosedSessionID *uuid.UUID       `json:"auto_closed_session_id,omitempty"`
}

type CheckOutResponse struct {
	Session         *SessionResponse `json:"session"`
	DurationMinutes float64          `json:"duration_minutes"`
	DistanceKm      float64          `json:"distance_km"`
	DistanceDeltaKm float64          `json:"distance_delta_km"`
	Method          string           `json:"method"`
	FallbackReason  string           `json:"fallback_reason,omitempty"`
}

type SampleResponse struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
}

type StatusResponse struct {
	Session         *SessionResponse `json:"session"`
	DurationMinutes float64          `json:"duration_minutes"`
	DistanceKm      float64          `json:"distance_km"`
	SampleCount     int64            `json:"sample_count"`
	LastLocation    *SampleResponse  `json:"last_location,omitempty"`
}

// RouteResponse is what a map renderer needs to draw one session.
type RouteResponse struct {
	Session  *SessionResponse `json:"session"`
	Points   []SampleResponse `json:"points"`
	Metadata json.RawMessage  `json:"metadata,omitempty"`
}

func ToSessionResponse(s *tracking.TrackingSession) *SessionResponse {
	if s == nil {
		return nil
	}
	status := "open"
	if !s.IsOpen() {
		status = "closed"
	}
	var metadata json.RawMessage
	if len(s.RouteMetadata) > 0 {
		metadata = json.RawMessage(s.RouteMetadata)
	}
	return &SessionResponse{
		ID:                       s.ID,
		UserID:                   s.UserID,
		CheckIn:                  s.CheckIn,
		CheckOut:                 s.CheckOut,
		StartLatitude:            s.StartLatitude,
		StartLongitude:           s.StartLongitude,
		EndLatitude:              s.EndLatitude,
		EndLongitude:             s.EndLongitude,
		TotalDistanceKm:          s.TotalDistanceKm,
		CalculationMethod:        s.CalculationMethod,
		RouteAccuracy:            s.RouteAccuracy,
		EstimatedDurationMinutes: s.EstimatedDurationMinutes,
		AutoClosed:               s.AutoClosed,
		NeedsReview:              s.NeedsReview,
		Status:                   status,
		RouteMetadata:            metadata,
	}
}

func ToSampleResponse(s *tracking.LocationSample) *SampleResponse {
	if s == nil {
		return nil
	}
	return &SampleResponse{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		RecordedAt: s.RecordedAt,
		Accuracy:   s.Accuracy,
		Speed:      s.Speed,
		Altitude:   s.Altitude,
	}
}

func ToStatusResponse(s *tracking.Status) *StatusResponse {
	if s == nil {
		return nil
	}
	return &StatusResponse{
		Session:         ToSessionResponse(s.Session),
		DurationMinutes: s.DurationMinutes,
		DistanceKm:      s.DistanceKm,
		SampleCount:     s.SampleCount,
		LastLocation:    ToSampleResponse(s.LastLocation),
	}
}

func ToRouteResponse(r *tracking.Route) *RouteResponse {
	points := make([]SampleResponse, len(r.Samples))
	for i := range r.Samples {
		points[i] = *ToSampleResponse(&r.Samples[i])
	}
	session := ToSessionResponse(r.Session)
	session.RouteMetadata = nil
	return &RouteResponse{
		Session:  session,
		Points:   points,
		Metadata: r.Metadata,
	}
}
