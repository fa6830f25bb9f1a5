package errorlog

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const maxListLimit = 200

type ReportInput struct {
	ErrorType    string
	ErrorMessage string
	Severity     string
	Context      map[string]interface{}
	DeviceInfo   string
	AppVersion   string
}

// Ack is returned to the reporting device.
type Ack struct {
	ID         uuid.UUID `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Guidance   []string  `json:"guidance"`
}

type ListResult struct {
	Reports []ErrorReport `json:"reports"`
	Stats   *Stats        `json:"stats"`
}

type Service interface {
	Report(ctx context.Context, userID uuid.UUID, input ReportInput) (*Ack, error)
	List(ctx context.Context, caller access.Caller, filter Filter) (*ListResult, error)
	// Resolve marks reports resolved. Only administrators may call it.
	Resolve(ctx context.Context, caller access.Caller, ids []uuid.UUID) (int64, error)
}

// ServiceConfig holds the collaborators of the error log service.
type ServiceConfig struct {
	Repository Repository
	Resolver   *access.Resolver
	Publisher  events.Publisher
	Logger     *logrus.Logger
}

type serviceImpl struct {
	repo      Repository
	resolver  *access.Resolver
	publisher events.Publisher
	logger    *logrus.Logger
}

func NewService(config ServiceConfig) Service {
	publisher := config.Publisher
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &serviceImpl{
		repo:      config.Repository,
		resolver:  config.Resolver,
		publisher: publisher,
		logger:    config.Logger,
	}
}

type reportedDetails struct {
	ErrorType string   `json:"error_type"`
	Severity  Severity `json:"severity"`
}

func (s *serviceImpl) Report(ctx context.Context, userID uuid.UUID, input ReportInput) (*Ack, error) {
	if userID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	errorType := strings.TrimSpace(input.ErrorType)
	message := strings.TrimSpace(input.ErrorMessage)
	if errorType == "" || message == "" {
		return nil, ErrInvalidReport
	}

	report := &ErrorReport{
		UserID:       userID,
		ErrorType:    errorType,
		ErrorMessage: message,
		Severity:     ParseSeverity(input.Severity),
		DeviceInfo:   input.DeviceInfo,
		AppVersion:   input.AppVersion,
	}
	if len(input.Context) > 0 {
		raw, err := json.Marshal(input.Context)
		if err != nil {
			return nil, ErrInvalidReport
		}
		report.Context = datatypes.JSON(raw)
	}

	if err := s.repo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"report_id":  report.ID,
		"user_id":    userID,
		"error_type": errorType,
		"severity":   report.Severity,
	}).Info("Error report received")

	event := events.NewTrackingEvent(events.EventTypeErrorReported, userID, uuid.Nil, reportedDetails{
		ErrorType: errorType,
		Severity:  report.Severity,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("report_id", report.ID).Warn("Failed to publish error report event")
	}

	return &Ack{
		ID:         report.ID,
		ReceivedAt: report.CreatedAt,
		Guidance:   Guidance(errorType),
	}, nil
}

func (s *serviceImpl) List(ctx context.Context, caller access.Caller, filter Filter) (*ListResult, error) {
	if caller.ID == uuid.Nil {
		return nil, ErrAuthenticationRequired
	}
	scope, err := s.resolver.ScopeFor(ctx, caller, access.PurposeListing)
	if err != nil {
		return nil, err
	}

	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	reports, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.Stats(ctx, scope, filter)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []ErrorReport{}
	}
	return &ListResult{Reports: reports, Stats: stats}, nil
}

func (s *serviceImpl) Resolve(ctx context.Context, caller access.Caller, ids []uuid.UUID) (int64, error) {
	if caller.ID == uuid.Nil {
		return 0, ErrAuthenticationRequired
	}
	if !caller.IsAdmin() {
		return 0, ErrForbidden
	}
	if len(ids) == 0 {
		return 0, ErrNoReports
	}

	n, err := s.repo.Resolve(ctx, ids, caller.ID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"resolved_by": caller.ID,
		"requested":   len(ids),
		"resolved":    n,
	}).Info("Error reports resolved")
	return n, nil
}

var guidance = []struct {
	keywords []string
	steps    []string
}{
	{
		keywords: []string{"permission"},
		steps: []string{
			"Allow location access for the app and choose \"Allow all the time\".",
			"Reopen the app and check in again.",
		},
	},
	{
		keywords: []string{"gps", "location", "accuracy"},
		steps: []string{
			"Turn on high accuracy location mode.",
			"Move to an open area away from tall buildings and wait for a fix.",
		},
	},
	{
		keywords: []string{"network", "timeout", "offline", "sync"},
		steps: []string{
			"Check mobile data or Wi-Fi connectivity.",
			"Readings are kept on the device and will upload once the connection returns.",
		},
	},
	{
		keywords: []string{"battery", "background"},
		steps: []string{
			"Exclude the app from battery optimization.",
			"Keep background activity enabled while a session is open.",
		},
	},
}

// Guidance returns troubleshooting steps for errorType.
func Guidance(errorType string) []string {
	t := strings.ToLower(errorType)
	for _, g := range guidance {
		for _, k := range g.keywords {
			if strings.Contains(t, k) {
				return g.steps
			}
		}
	}
	return []string{
		"Restart the app and try again.",
		"If the problem continues, contact your team lead with the report id.",
	}
}
