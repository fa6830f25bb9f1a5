package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	AlertLongRunning = "long_running"
	AlertNoUpdate    = "no_update"
)

var activeSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "monitoring_active_sessions",
	Help: "Open tracking sessions by movement status, as of the last sweep",
}, []string{"status"})

// SessionReader is the read side of tracking storage that monitoring needs.
type SessionReader interface {
	ListOpen(ctx context.Context, scope access.Scope) ([]tracking.TrackingSession, error)
	RecentSamples(ctx context.Context, sessionID uuid.UUID, limit int) ([]tracking.LocationSample, error)
	SamplesSince(ctx context.Context, sessionID uuid.UUID, since time.Time) ([]tracking.LocationSample, error)
}

type Config struct {
	Thresholds       Thresholds
	TrailSize        int
	LongRunningAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Thresholds:       DefaultThresholds(),
		TrailSize:        20,
		LongRunningAfter: 10 * time.Hour,
	}
}

type TrailPoint struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

type LiveSession struct {
	SessionID       uuid.UUID      `json:"session_id"`
	UserID          uuid.UUID      `json:"user_id"`
	CheckIn         time.Time      `json:"check_in"`
	DurationMinutes float64        `json:"duration_minutes"`
	DistanceKm      float64        `json:"distance_km"`
	LastLocation    *TrailPoint    `json:"last_location,omitempty"`
	Trail           []TrailPoint   `json:"trail"`
	Movement        Classification `json:"movement"`
	LongRunning     bool           `json:"long_running"`
	NoUpdate        bool           `json:"no_update"`
}

type Summary struct {
	Total           int         `json:"total"`
	Moving          int         `json:"moving"`
	Idle            int         `json:"idle"`
	Stale           int         `json:"stale"`
	TotalDistanceKm float64     `json:"total_distance_km"`
	LongRunning     []uuid.UUID `json:"long_running"`
	NoUpdate        []uuid.UUID `json:"no_update"`
}

type LiveView struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Sessions    []LiveSession `json:"sessions"`
	Summary     Summary       `json:"summary"`
}

type Service interface {
	// Live returns the open sessions visible to caller.
	Live(ctx context.Context, caller access.Caller) (*LiveView, error)
	// Sweep builds the unrestricted view and publishes an alert the first
	// time a session becomes long-running or goes quiet.
	Sweep(ctx context.Context) (*Summary, error)
}

type service struct {
	reader    SessionReader
	resolver  *access.Resolver
	publisher events.Publisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	alerted map[alertKey]struct{}
}

type alertKey struct {
	session uuid.UUID
	kind    string
}

func NewService(reader SessionReader, resolver *access.Resolver, publisher events.Publisher, cfg Config, logger *zap.Logger) Service {
	if cfg.TrailSize <= 0 {
		cfg.TrailSize = DefaultConfig().TrailSize
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &service{
		reader:    reader,
		resolver:  resolver,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		alerted:   make(map[alertKey]struct{}),
	}
}

func (s *service) Live(ctx context.Context, caller access.Caller) (*LiveView, error) {
	if caller.ID == uuid.Nil {
		return nil, tracking.ErrAuthenticationRequired
	}
	scope, err := s.resolver.ScopeFor(ctx, caller, access.PurposeListing)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, scope)
}

func (s *service) view(ctx context.Context, scope access.Scope) (*LiveView, error) {
	sessions, err := s.reader.ListOpen(ctx, scope)
	if err != nil {
		return nil, err
	}

	now := s.now()
	view := &LiveView{
		GeneratedAt: now,
		Sessions:    make([]LiveSession, 0, len(sessions)),
		Summary:     Summary{LongRunning: []uuid.UUID{}, NoUpdate: []uuid.UUID{}},
	}
	for i := range sessions {
		session := &sessions[i]
		trail, err := s.reader.RecentSamples(ctx, session.ID, s.cfg.TrailSize)
		if err != nil {
			return nil, err
		}
		window, err := s.reader.SamplesSince(ctx, session.ID, now.Add(-s.cfg.Thresholds.MovementWindow))
		if err != nil {
			return nil, err
		}
		// An empty window still needs the newest fix to tell idle from stale.
		if len(window) == 0 {
			window = trail
		}
		live := s.describe(session, trail, window, now)
		view.Sessions = append(view.Sessions, live)
		view.Summary.add(live)
	}
	return view, nil
}

func (s *service) describe(session *tracking.TrackingSession, trail, window []tracking.LocationSample, now time.Time) LiveSession {
	live := LiveSession{
		SessionID:       session.ID,
		UserID:          session.UserID,
		CheckIn:         session.CheckIn,
		DurationMinutes: session.Duration(now).Minutes(),
		DistanceKm:      session.TotalDistanceKm,
		Trail:           make([]TrailPoint, len(trail)),
		Movement:        Classify(window, now, s.cfg.Thresholds),
	}
	for i, sample := range trail {
		live.Trail[i] = TrailPoint{Latitude: sample.Latitude, Longitude: sample.Longitude, RecordedAt: sample.RecordedAt}
	}
	if n := len(live.Trail); n > 0 {
		last := live.Trail[n-1]
		live.LastLocation = &last
	}

	live.LongRunning = s.cfg.LongRunningAfter > 0 && session.Duration(now) > s.cfg.LongRunningAfter
	live.NoUpdate = live.Movement.LastSampleAt == nil ||
		now.Sub(*live.Movement.LastSampleAt) > s.cfg.Thresholds.FreshnessWindow
	return live
}

func (sum *Summary) add(live LiveSession) {
	sum.Total++
	sum.TotalDistanceKm += live.DistanceKm
	switch live.Movement.Status {
	case MovementMoving:
		sum.Moving++
	case MovementIdle:
		sum.Idle++
	default:
		sum.Stale++
	}
	if live.LongRunning {
		sum.LongRunning = append(sum.LongRunning, live.SessionID)
	}
	if live.NoUpdate {
		sum.NoUpdate = append(sum.NoUpdate, live.SessionID)
	}
}

func (s *service) Sweep(ctx context.Context) (*Summary, error) {
	view, err := s.view(ctx, access.Unrestricted())
	if err != nil {
		return nil, err
	}

	activeSessions.WithLabelValues(string(MovementMoving)).Set(float64(view.Summary.Moving))
	activeSessions.WithLabelValues(string(MovementIdle)).Set(float64(view.Summary.Idle))
	activeSessions.WithLabelValues(string(MovementStale)).Set(float64(view.Summary.Stale))

	current := make(map[alertKey]struct{})
	var fresh []events.TrackingEvent
	for _, live := range view.Sessions {
		if live.LongRunning {
			current[alertKey{live.SessionID, AlertLongRunning}] = struct{}{}
		}
		if live.NoUpdate {
			current[alertKey{live.SessionID, AlertNoUpdate}] = struct{}{}
		}
	}

	s.mu.Lock()
	for _, live := range view.Sessions {
		for _, kind := range []string{AlertLongRunning, AlertNoUpdate} {
			key := alertKey{live.SessionID, kind}
			if _, active := current[key]; !active {
				continue
			}
			if _, seen := s.alerted[key]; seen {
				continue
			}
			fresh = append(fresh, events.NewTrackingEvent(events.EventTypeMonitoringAlert, live.UserID, live.SessionID, events.AlertDetails{
				Kind:            kind,
				DurationMinutes: live.DurationMinutes,
				MinutesSinceFix: live.Movement.MinutesSinceFix,
			}))
		}
	}
	// Sessions that recovered or closed may alert again later.
	s.alerted = current
	s.mu.Unlock()

	for _, event := range fresh {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish monitoring alert",
				zap.String("session_id", event.SessionID.String()),
				zap.Error(err))
		}
	}

	s.logger.Debug("Monitoring sweep finished",
		zap.Int("open_sessions", view.Summary.Total),
		zap.Int("alerts", len(fresh)))
	return &view.Summary, nil
}
