package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/events"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sample(lat, lon float64, ago time.Duration, speed *float64) tracking.LocationSample {
	return tracking.LocationSample{Latitude: lat, Longitude: lon, RecordedAt: now.Add(-ago), Speed: speed}
}

func speed(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name    string
		samples []tracking.LocationSample
		want    Movement
	}{
		{
			name: "two samples three minutes apart covering 0.2 km",
			samples: []tracking.LocationSample{
				sample(12.34, 56.78, 4*time.Minute, nil),
				sample(12.3418, 56.78, time.Minute, nil),
			},
			want: MovementMoving,
		},
		{
			name:    "single fresh sample",
			samples: []tracking.LocationSample{sample(12.34, 56.78, time.Minute, nil)},
			want:    MovementIdle,
		},
		{
			name:    "single old sample",
			samples: []tracking.LocationSample{sample(12.34, 56.78, 30*time.Minute, nil)},
			want:    MovementStale,
		},
		{
			name: "stationary but fresh",
			samples: []tracking.LocationSample{
				sample(12.34, 56.78, 3*time.Minute, nil),
				sample(12.34001, 56.78, time.Minute, speed(0)),
			},
			want: MovementIdle,
		},
		{
			name: "reported speed alone is enough",
			samples: []tracking.LocationSample{
				sample(12.34, 56.78, 2*time.Minute, speed(0.5)),
				sample(12.34, 56.78, time.Minute, speed(-3)),
			},
			want: MovementMoving,
		},
		{
			name: "movement outside the window does not count",
			samples: []tracking.LocationSample{
				sample(12.30, 56.78, 20*time.Minute, nil),
				sample(12.34, 56.78, 8*time.Minute, nil),
			},
			want: MovementIdle,
		},
		{
			name: "nothing recorded",
			want: MovementStale,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.samples, now, th)
			assert.Equal(t, tc.want, got.Status)
		})
	}

	c := Classify([]tracking.LocationSample{
		sample(0, 0, 2*time.Minute, speed(2)),
		sample(0, 0, time.Minute, speed(4)),
	}, now, th)
	assert.InDelta(t, 10.8, c.AvgSpeedKmh, 1e-9, "m/s readings averaged in km/h")
	assert.Equal(t, 2, c.WindowSamples)
	assert.InDelta(t, 1.0, c.MinutesSinceFix, 1e-9)
}

type fakeReader struct {
	sessions []tracking.TrackingSession
	samples  map[uuid.UUID][]tracking.LocationSample
}

func (f *fakeReader) ListOpen(ctx context.Context, scope access.Scope) ([]tracking.TrackingSession, error) {
	var out []tracking.TrackingSession
	for _, s := range f.sessions {
		if scope.Allows(s.UserID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeReader) RecentSamples(ctx context.Context, sessionID uuid.UUID, limit int) ([]tracking.LocationSample, error) {
	all := f.samples[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (f *fakeReader) SamplesSince(ctx context.Context, sessionID uuid.UUID, since time.Time) ([]tracking.LocationSample, error) {
	var out []tracking.LocationSample
	for _, s := range f.samples[sessionID] {
		if !s.RecordedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

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

type world struct {
	lead, report, outsider uuid.UUID
	reader                 *fakeReader
	svc                    *service
	events                 *recorder
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{lead: uuid.New(), report: uuid.New(), outsider: uuid.New(), events: &recorder{}}

	open := func(user uuid.UUID, age time.Duration, km float64) tracking.TrackingSession {
		return tracking.TrackingSession{ID: uuid.New(), UserID: user, CheckIn: now.Add(-age), TotalDistanceKm: km}
	}
	leadSession := open(w.lead, time.Hour, 1)
	reportSession := open(w.report, 11*time.Hour, 4)
	outsiderSession := open(w.outsider, 2*time.Hour, 2)

	w.reader = &fakeReader{
		sessions: []tracking.TrackingSession{leadSession, reportSession, outsiderSession},
		samples: map[uuid.UUID][]tracking.LocationSample{
			leadSession.ID: {
				sample(1, 1, 4*time.Minute, nil),
				sample(1.002, 1, time.Minute, nil),
			},
			reportSession.ID: {sample(2, 2, 45*time.Minute, nil)},
			outsiderSession.ID: {
				sample(3, 3, 2*time.Minute, nil),
				sample(3, 3, time.Minute, nil),
			},
		},
	}

	lead := w.lead
	dir := directory{reports: map[uuid.UUID][]access.Member{
		w.lead: {{ID: w.report, ReportsTo: &lead}},
	}}
	w.svc = NewService(w.reader, access.NewResolver(dir), w.events, DefaultConfig(), zap.NewNop()).(*service)
	w.svc.now = func() time.Time { return now }
	return w
}

func users(view *LiveView) []uuid.UUID {
	var out []uuid.UUID
	for _, s := range view.Sessions {
		out = append(out, s.UserID)
	}
	return out
}

func TestLiveIsScoped(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	view, err := w.svc.Live(ctx, access.Caller{ID: w.lead, Role: access.RoleTeamLead})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{w.lead, w.report}, users(view))

	view, err = w.svc.Live(ctx, access.Caller{ID: w.report, Role: access.RoleIndividualContributor})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{w.report}, users(view))

	view, err = w.svc.Live(ctx, access.Caller{ID: uuid.New(), Role: access.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, view.Sessions, 3)

	_, err = w.svc.Live(ctx, access.Caller{})
	assert.ErrorIs(t, err, tracking.ErrAuthenticationRequired)
}

func TestLiveSummary(t *testing.T) {
	w := newWorld(t)

	view, err := w.svc.Live(context.Background(), access.Caller{ID: uuid.New(), Role: access.RoleAdmin})
	require.NoError(t, err)

	sum := view.Summary
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Moving)
	assert.Equal(t, 1, sum.Idle)
	assert.Equal(t, 1, sum.Stale)
	assert.InDelta(t, 7.0, sum.TotalDistanceKm, 1e-9)
	require.Len(t, sum.LongRunning, 1)
	require.Len(t, sum.NoUpdate, 1)
	assert.Equal(t, sum.LongRunning[0], sum.NoUpdate[0])

	for _, s := range view.Sessions {
		require.NotNil(t, s.LastLocation)
		assert.Equal(t, s.Trail[len(s.Trail)-1], *s.LastLocation)
	}
}

func TestSweepAlertsOncePerCondition(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	sum, err := w.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	require.Len(t, w.events.events, 2)

	kinds := []string{}
	for _, e := range w.events.events {
		assert.Equal(t, events.EventTypeMonitoringAlert, e.EventType)
		assert.Equal(t, w.report, e.UserID)
		kinds = append(kinds, e.Details.(events.AlertDetails).Kind)
	}
	assert.ElementsMatch(t, []string{AlertLongRunning, AlertNoUpdate}, kinds)

	_, err = w.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, w.events.events, 2, "no repeat while the condition holds")

	// the report sends a fix, then goes quiet again
	report := w.reader.sessions[1].ID
	w.reader.samples[report] = append(w.reader.samples[report], sample(2, 2, 0, nil))
	_, err = w.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, w.events.events, 2)

	w.reader.samples[report] = w.reader.samples[report][:1]
	_, err = w.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, w.events.events, 3)
}

func TestLiveClassifiesOverTheWholeWindow(t *testing.T) {
	w := newWorld(t)

	// a walker reporting at 1 Hz: 300 fixes covering about 0.33 km in five
	// minutes, but only a few metres across the last 20 of them
	walker := w.reader.sessions[0].ID
	fixes := make([]tracking.LocationSample, 0, 300)
	for i := 299; i >= 0; i-- {
		step := float64(299 - i)
		fixes = append(fixes, sample(1+step*0.0000099, 1, time.Duration(i)*time.Second, nil))
	}
	w.reader.samples[walker] = fixes

	trailOnly := Classify(fixes[len(fixes)-DefaultConfig().TrailSize:], now, DefaultThresholds())
	require.Equal(t, MovementIdle, trailOnly.Status)

	view, err := w.svc.Live(context.Background(), access.Caller{ID: w.lead, Role: access.RoleTeamLead})
	require.NoError(t, err)

	var live *LiveSession
	for i := range view.Sessions {
		if view.Sessions[i].SessionID == walker {
			live = &view.Sessions[i]
		}
	}
	require.NotNil(t, live)
	assert.Equal(t, MovementMoving, live.Movement.Status)
	assert.Equal(t, 300, live.Movement.WindowSamples)
	assert.InDelta(t, 0.33, live.Movement.WindowKm, 0.01)
	assert.Len(t, live.Trail, DefaultConfig().TrailSize)
	assert.Equal(t, fixes[len(fixes)-1].Latitude, live.LastLocation.Latitude)
}
