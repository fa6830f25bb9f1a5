package errorlog

import (
	"context"
	"io"
	"testing"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"github.com/Hari1275/sdp-sub000/internal/testsupport"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directory struct {
	reports map[uuid.UUID][]access.Member
}

func (d directory) DirectReports(ctx context.Context, managerID uuid.UUID) ([]access.Member, error) {
	return d.reports[managerID], nil
}

func (d directory) RegionMembers(ctx context.Context, region string) ([]access.Member, error) {
	return nil, nil
}

type recorder struct {
	events []events.TrackingEvent
}

func (r *recorder) Publish(ctx context.Context, e events.TrackingEvent) error {
	r.events = append(r.events, e)
	return nil
}

func newService(t *testing.T, dir directory) (Service, *recorder) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db := testsupport.OpenSQLite(t, &ErrorReport{})
	rec := &recorder{}
	return NewService(ServiceConfig{
		Repository: NewRepository(db, logger),
		Resolver:   access.NewResolver(dir),
		Publisher:  rec,
		Logger:     logger,
	}), rec
}

func TestReportAcknowledgesWithGuidance(t *testing.T) {
	svc, rec := newService(t, directory{})
	ctx := context.Background()
	user := uuid.New()

	ack, err := svc.Report(ctx, user, ReportInput{
		ErrorType:    "gps_signal_lost",
		ErrorMessage: "no fix for 5 minutes",
		Severity:     "urgent",
		Context:      map[string]interface{}{"accuracy": 120},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ack.ID)
	assert.Equal(t, Guidance("gps"), ack.Guidance)

	require.Len(t, rec.events, 1)
	assert.Equal(t, events.EventTypeErrorReported, rec.events[0].EventType)

	res, err := svc.List(ctx, access.Caller{ID: user, Role: access.RoleIndividualContributor}, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, SeverityMedium, res.Reports[0].Severity, "unknown severities fall back to medium")
	assert.JSONEq(t, `{"accuracy":120}`, string(res.Reports[0].Context))
}

func TestReportValidation(t *testing.T) {
	svc, _ := newService(t, directory{})
	ctx := context.Background()

	_, err := svc.Report(ctx, uuid.Nil, ReportInput{ErrorType: "x", ErrorMessage: "y"})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)

	_, err = svc.Report(ctx, uuid.New(), ReportInput{ErrorType: "  ", ErrorMessage: "y"})
	assert.ErrorIs(t, err, ErrInvalidReport)
}

func TestGuidance(t *testing.T) {
	assert.Contains(t, Guidance("LOCATION_PERMISSION_DENIED")[0], "location access")
	assert.Contains(t, Guidance("network_timeout")[0], "connectivity")
	assert.Contains(t, Guidance("battery_saver")[0], "battery")
	assert.Contains(t, Guidance("something_else")[0], "Restart")
}

func TestListIsScopedAndCounted(t *testing.T) {
	lead, report, outsider := uuid.New(), uuid.New(), uuid.New()
	svc, _ := newService(t, directory{reports: map[uuid.UUID][]access.Member{
		lead: {{ID: report, ReportsTo: &lead}},
	}})
	ctx := context.Background()

	for _, u := range []uuid.UUID{lead, report, report, outsider} {
		_, err := svc.Report(ctx, u, ReportInput{ErrorType: "network", ErrorMessage: "offline"})
		require.NoError(t, err)
	}
	_, err := svc.Report(ctx, report, ReportInput{ErrorType: "gps", ErrorMessage: "drift"})
	require.NoError(t, err)

	res, err := svc.List(ctx, access.Caller{ID: lead, Role: access.RoleTeamLead}, Filter{})
	require.NoError(t, err)
	assert.Len(t, res.Reports, 4)
	for _, r := range res.Reports {
		assert.NotEqual(t, outsider, r.UserID)
	}
	assert.Equal(t, int64(4), res.Stats.Total)
	assert.Equal(t, int64(4), res.Stats.Unresolved)
	assert.Equal(t, map[string]int64{"network": 3, "gps": 1}, res.Stats.ByType)

	res, err = svc.List(ctx, access.Caller{ID: outsider, Role: access.RoleIndividualContributor}, Filter{ErrorType: "network"})
	require.NoError(t, err)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, outsider, res.Reports[0].UserID)
}

func TestResolveRequiresAdmin(t *testing.T) {
	svc, _ := newService(t, directory{})
	ctx := context.Background()
	user := uuid.New()

	ack, err := svc.Report(ctx, user, ReportInput{ErrorType: "sync", ErrorMessage: "stuck"})
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, access.Caller{ID: user, Role: access.RoleTeamLead}, []uuid.UUID{ack.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	admin := access.Caller{ID: uuid.New(), Role: access.RoleAdmin}
	_, err = svc.Resolve(ctx, admin, nil)
	assert.ErrorIs(t, err, ErrNoReports)

	n, err := svc.Resolve(ctx, admin, []uuid.UUID{ack.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.Resolve(ctx, admin, []uuid.UUID{ack.ID})
	require.NoError(t, err)
	assert.Zero(t, n, "already resolved")

	resolved := true
	res, err := svc.List(ctx, admin, Filter{Resolved: &resolved})
	require.NoError(t, err)
	require.Len(t, res.Reports, 1)
	require.NotNil(t, res.Reports[0].ResolvedBy)
	assert.Equal(t, admin.ID, *res.Reports[0].ResolvedBy)
	assert.Equal(t, int64(0), res.Stats.Unresolved)
	assert.Equal(t, int64(1), res.Stats.Total)
}
