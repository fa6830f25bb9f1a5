package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tracking event types. They double as broker topics.
const (
	EventTypeSessionOpened   = "tracking.session.opened"
	EventTypeSessionClosed   = "tracking.session.closed"
	EventTypeSamplesIngested = "tracking.samples.ingested"
	EventTypeMonitoringAlert = "monitoring.alert"
	EventTypeErrorReported   = "errorlog.reported"
)

// LiveChannel is the Redis pub/sub channel carrying live tracking updates.
const LiveChannel = "tracking:live"

// TrackingEvent is published whenever a session changes.
type TrackingEvent struct {
	EventType string      `json:"event_type"`
	UserID    uuid.UUID   `json:"user_id"`
	SessionID uuid.UUID   `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Details   interface{} `json:"details,omitempty"`
}

// LocationDetails accompanies samples-ingested events.
type LocationDetails struct {
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Processed       int     `json:"processed"`
	DistanceAddedKm float64 `json:"distance_added_km"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	Method          string  `json:"method"`
}

// AlertDetails accompanies monitoring alerts.
type AlertDetails struct {
	Kind            string  `json:"kind"`
	DurationMinutes float64 `json:"duration_minutes"`
	MinutesSinceFix float64 `json:"minutes_since_fix,omitempty"`
}

// NewTrackingEvent stamps an event with the current UTC time.
func NewTrackingEvent(eventType string, userID, sessionID uuid.UUID, details interface{}) TrackingEvent {
	return TrackingEvent{
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

// Payload encodes the event for a broker.
func (e TrackingEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// Attributes are broker headers used for routing and filtering.
func (e TrackingEvent) Attributes() map[string]string {
	return map[string]string{
		"type":    e.EventType,
		"user":    e.UserID.String(),
		"session": e.SessionID.String(),
	}
}
