package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/distance"
	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Config holds the ingestion and lifecycle knobs.
type Config struct {
	MaxBatchSize      int
	AccuracyThreshold float64
	BestNFallback     int
	Location          *time.Location
	// StaleReviewAfter flags auto-closed sessions that were open longer than
	// this for manual review.
	StaleReviewAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBatchSize:      5000,
		AccuracyThreshold: 50,
		BestNFallback:     3,
		Location:          time.UTC,
		StaleReviewAfter:  12 * time.Hour,
	}
}

type CheckInInput struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

type CheckOutInput struct {
	SessionID uuid.UUID
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

type CheckInResult struct {
	Session *TrackingSession `json:"session"`
	// AutoClosedSessionID is set when a forgotten open session was closed.
	AutoClosedSessionID *uuid.UUID `json:"auto_closed_session_id,omitempty"`
}

type CheckOutResult struct {
	Session         *TrackingSession `json:"session"`
	DurationMinutes float64          `json:"duration_minutes"`
	DistanceDeltaKm float64          `json:"distance_delta_km"`
	Method          distance.Method  `json:"method"`
	FallbackReason  string           `json:"fallback_reason,omitempty"`
}

// Status is the live view of the caller's open session.
type Status struct {
	Session         *TrackingSession `json:"session"`
	DurationMinutes float64          `json:"duration_minutes"`
	DistanceKm      float64          `json:"distance_km"`
	SampleCount     int64            `json:"sample_count"`
	LastLocation    *LocationSample  `json:"last_location,omitempty"`
}

// Route is what a map renderer needs to draw one session.
type Route struct {
	Session  *TrackingSession `json:"session"`
	Samples  []LocationSample `json:"samples"`
	Metadata json.RawMessage  `json:"metadata,omitempty"`
}

type Service interface {
	CheckIn(ctx context.Context, userID uuid.UUID, input CheckInInput) (*CheckInResult, error)
	CheckOut(ctx context.Context, userID uuid.UUID, input CheckOutInput) (*CheckOutResult, error)
	// GetStatus returns nil without error when the user has no open session.
	GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error)
	GetRoute(ctx context.Context, caller access.Caller, sessionID uuid.UUID) (*Route, error)
	IngestBatch(ctx context.Context, userID, sessionID uuid.UUID, readings []RawReading) (*IngestResult, error)
	Recalculate(ctx context.Context, opts RecalculateOptions) (*RecalculateReport, error)
}

type service struct {
	repo       Repository
	calculator distance.Calculator
	summaries  summary.Service
	resolver   *access.Resolver
	publisher  events.Publisher
	cfg        Config
	logger     *zap.Logger

	userLocks    *keyedMutex
	sessionLocks *keyedMutex
	now          func() time.Time
}

func NewService(
	repo Repository,
	calculator distance.Calculator,
	summaries summary.Service,
	resolver *access.Resolver,
	publisher events.Publisher,
	cfg Config,
	logger *zap.Logger,
) Service {
	defaults := DefaultConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaults.MaxBatchSize
	}
	if cfg.BestNFallback <= 0 {
		cfg.BestNFallback = defaults.BestNFallback
	}
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &service{
		repo:         repo,
		calculator:   calculator,
		summaries:    summaries,
		resolver:     resolver,
		publisher:    publisher,
		cfg:          cfg,
		logger:       logger,
		userLocks:    newKeyedMutex(),
		sessionLocks: newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// closing is a session that was closed inside a transaction and still needs
// its after-commit side effects.
type closing struct {
	session *TrackingSession
	delta   summary.Delta
	result  distance.Result
	auto    bool
}

func (s *service) CheckIn(ctx context.Context, userID uuid.UUID, input CheckInInput) (*CheckInResult, error) {
	if userID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	if !ValidCoordinate(input.Latitude, input.Longitude) {
		return nil, ErrInvalidCoordinate
	}

	unlockUser := s.userLocks.Lock(userID)
	defer unlockUser()

	// Session locks are always taken before a transaction begins.
	var previous *uuid.UUID
	if open, err := s.repo.FindOpenByUser(ctx, userID); err == nil {
		unlockSession := s.sessionLocks.Lock(open.ID)
		defer unlockSession()
		previous = &open.ID
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	now := s.now()
	session := &TrackingSession{
		UserID:            userID,
		CheckIn:           now,
		StartLatitude:     input.Latitude,
		StartLongitude:    input.Longitude,
		CalculationMethod: string(distance.MethodHaversine),
		RouteAccuracy:     distance.AccuracyStraightLine,
	}

	var closed *closing
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		if previous != nil {
			open, err := repo.FindByIDForUpdate(ctx, *previous)
			if err != nil {
				return err
			}
			if open.IsOpen() {
				closed, err = s.close(ctx, repo, open, now, nil, true)
				if err != nil {
					return fmt.Errorf("auto-close session %s: %w", open.ID, err)
				}
			}
		}

		if err := repo.CreateSession(ctx, session); err != nil {
			return err
		}
		first := LocationSample{
			SessionID:  session.ID,
			Latitude:   input.Latitude,
			Longitude:  input.Longitude,
			RecordedAt: now,
			Accuracy:   input.Accuracy,
		}
		return repo.InsertSamples(ctx, []LocationSample{first})
	})
	if err != nil {
		s.logger.Error("Check-in failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}

	result := &CheckInResult{Session: session}
	if closed != nil {
		s.afterClose(ctx, closed)
		result.AutoClosedSessionID = &closed.session.ID
	}

	sessionsOpened.Inc()
	s.publish(ctx, events.NewTrackingEvent(events.EventTypeSessionOpened, userID, session.ID, events.LocationDetails{
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Method:    session.CalculationMethod,
	}))

	s.logger.Info("Session checked in",
		zap.String("user_id", userID.String()),
		zap.String("session_id", session.ID.String()))
	return result, nil
}

func (s *service) CheckOut(ctx context.Context, userID uuid.UUID, input CheckOutInput) (*CheckOutResult, error) {
	if userID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	if input.SessionID == uuid.Nil {
		return nil, ErrSessionIDRequired
	}
	if !ValidCoordinate(input.Latitude, input.Longitude) {
		return nil, ErrInvalidCoordinate
	}

	unlock := s.sessionLocks.Lock(input.SessionID)
	defer unlock()

	var closed *closing
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		session, err := repo.FindByIDForUpdate(ctx, input.SessionID)
		if err != nil {
			return err
		}
		if session.UserID != userID {
			return ErrNotSessionOwner
		}
		if !session.IsOpen() {
			return ErrSessionClosed
		}

		final := &LocationSample{
			SessionID: session.ID,
			Latitude:  input.Latitude,
			Longitude: input.Longitude,
			Accuracy:  input.Accuracy,
		}
		closed, err = s.close(ctx, repo, session, s.now(), final, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterClose(ctx, closed)

	return &CheckOutResult{
		Session:         closed.session,
		DurationMinutes: closed.session.Duration(s.now()).Minutes(),
		DistanceDeltaKm: closed.delta.DistanceKm,
		Method:          closed.result.Method,
		FallbackReason:  closed.result.Stats.FallbackReason,
	}, nil
}

// close finalizes session at the given time: the optional final sample is
// stored, distance is recomputed over every sample and the row is saved.
func (s *service) close(ctx context.Context, repo Repository, session *TrackingSession, at time.Time, final *LocationSample, auto bool) (*closing, error) {
	if at.Before(session.CheckIn) {
		at = session.CheckIn
	}
	if final != nil {
		final.RecordedAt = at
		if err := repo.InsertSamples(ctx, []LocationSample{*final}); err != nil {
			return nil, err
		}
	}

	samples, err := repo.ListSamples(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	result := s.calculator.ComputeRoute(ctx, Points(samples))

	running := session.TotalDistanceKm
	if err := applyResult(session, result); err != nil {
		return nil, err
	}
	session.CheckOut = &at
	if n := len(samples); n > 0 {
		last := samples[n-1]
		session.EndLatitude = &last.Latitude
		session.EndLongitude = &last.Longitude
	}
	if auto {
		session.AutoClosed = true
		session.NeedsReview = s.cfg.StaleReviewAfter > 0 && at.Sub(session.CheckIn) > s.cfg.StaleReviewAfter
	}

	if err := repo.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	return &closing{
		session: session,
		result:  result,
		auto:    auto,
		delta: summary.Delta{
			DistanceKm: result.DistanceKm - running,
			Hours:      at.Sub(session.CheckIn).Hours(),
			Visits:     1,
			CheckIns:   1,
		},
	}, nil
}

func (s *service) afterClose(ctx context.Context, c *closing) {
	reason := "check_out"
	if c.auto {
		reason = "auto_closed"
	}
	sessionsClosed.WithLabelValues(reason).Inc()

	s.summaries.Increment(ctx, c.session.UserID, *c.session.CheckOut, c.delta)

	details := events.LocationDetails{
		TotalDistanceKm: c.session.TotalDistanceKm,
		DistanceAddedKm: c.delta.DistanceKm,
		Method:          c.session.CalculationMethod,
	}
	if c.session.EndLatitude != nil && c.session.EndLongitude != nil {
		details.Latitude = *c.session.EndLatitude
		details.Longitude = *c.session.EndLongitude
	}
	s.publish(ctx, events.NewTrackingEvent(events.EventTypeSessionClosed, c.session.UserID, c.session.ID, details))

	s.logger.Info("Session closed",
		zap.String("session_id", c.session.ID.String()),
		zap.String("user_id", c.session.UserID.String()),
		zap.String("reason", reason),
		zap.Bool("needs_review", c.session.NeedsReview),
		zap.Float64("distance_km", c.session.TotalDistanceKm),
		zap.String("method", c.session.CalculationMethod))
}

// applyResult copies an engine result onto the session.
func applyResult(session *TrackingSession, result distance.Result) error {
	meta, err := result.Metadata()
	if err != nil {
		return err
	}
	session.TotalDistanceKm = result.DistanceKm
	session.CalculationMethod = string(result.Method)
	session.RouteAccuracy = result.AccuracyTag
	session.RouteMetadata = datatypes.JSON(meta)
	session.EstimatedDurationMinutes = result.DurationMinutes
	return nil
}

func (s *service) GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error) {
	if userID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	session, err := s.repo.FindOpenByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	count, err := s.repo.CountSamples(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	last, err := s.repo.LastSample(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	return &Status{
		Session:         session,
		DurationMinutes: session.Duration(s.now()).Minutes(),
		DistanceKm:      session.TotalDistanceKm,
		SampleCount:     count,
		LastLocation:    last,
	}, nil
}

func (s *service) GetRoute(ctx context.Context, caller access.Caller, sessionID uuid.UUID) (*Route, error) {
	if caller.ID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	scope, err := s.resolver.ScopeFor(ctx, caller, access.PurposeListing)
	if err != nil {
		return nil, err
	}
	// Sessions outside the caller's scope are indistinguishable from missing ones.
	if !scope.Allows(session.UserID) {
		return nil, ErrSessionNotFound
	}

	samples, err := s.repo.ListSamples(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	route := &Route{Session: session, Samples: samples}
	if len(session.RouteMetadata) > 0 {
		route.Metadata = json.RawMessage(session.RouteMetadata)
	}
	return route, nil
}

func (s *service) publish(ctx context.Context, event events.TrackingEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish tracking event",
			zap.String("event_type", event.EventType),
			zap.String("session_id", event.SessionID.String()),
			zap.Error(err))
	}
}
