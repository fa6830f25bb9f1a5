package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/distance"
	"github.com/Hari1275/sdp-sub000/internal/domain/errorlog"
	"github.com/Hari1275/sdp-sub000/internal/domain/monitoring"
	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/Hari1275/sdp-sub000/internal/domain/user"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/cache"
	"github.com/Hari1275/sdp-sub000/internal/testsupport"
	"github.com/Hari1275/sdp-sub000/pkg/config"
	"github.com/Hari1275/sdp-sub000/pkg/security/auth"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiFixture struct {
	router *gin.Engine
	tokens map[string]string
	users  map[string]uuid.UUID
}

func newAPIFixture(t *testing.T, opts ...func(*Dependencies)) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testsupport.OpenSQLite(t,
		&user.User{}, &tracking.TrackingSession{}, &tracking.LocationSample{},
		&summary.DailySummary{}, &errorlog.ErrorReport{})
	require.NoError(t, tracking.EnsureIndexes(db.DB))

	users := user.NewRepository(db)
	lead := &user.User{Email: "lead@example.com", Name: "Lead", Role: string(access.RoleTeamLead), Region: "north", IsActive: true}
	require.NoError(t, users.Create(context.Background(), lead))
	seed := map[string]*user.User{
		"lead":  lead,
		"agent": {Email: "agent@example.com", Name: "Agent", Role: string(access.RoleIndividualContributor), Region: "north", ManagerID: &lead.ID, IsActive: true},
		"other": {Email: "other@example.com", Name: "Other", Role: string(access.RoleIndividualContributor), Region: "south", IsActive: true},
		"admin": {Email: "admin@example.com", Name: "Admin", Role: string(access.RoleAdmin), IsActive: true},
	}
	for name, u := range seed {
		if name != "lead" {
			require.NoError(t, users.Create(context.Background(), u))
		}
	}

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.JWTIssuer = "fieldtrack"
	cfg.Auth.JWTExpiryHours = 1
	jwt := auth.NewJWTService(cfg)

	log := zap.NewNop()
	resolver := access.NewResolver(users)
	trackingRepo := tracking.NewRepository(db)
	summaries := summary.NewService(summary.NewRepository(db), time.UTC, log)

	logrusLogger := logrus.New()
	logrusLogger.SetOutput(io.Discard)

	deps := Dependencies{
		Tracking:   tracking.NewService(trackingRepo, distance.Haversine{}, summaries, resolver, nil, tracking.DefaultConfig(), log),
		Monitoring: monitoring.NewService(trackingRepo, resolver, nil, monitoring.DefaultConfig(), log),
		Summaries:  summaries,
		ErrorLog: errorlog.NewService(errorlog.ServiceConfig{
			Repository: errorlog.NewRepository(db, logrusLogger),
			Resolver:   resolver,
			Logger:     logrusLogger,
		}),
		Scopes:   resolver,
		Tokens:   jwt,
		Callers:  user.NewService(users, log),
		Health:   HealthChecks{Database: func(ctx context.Context) error { return db.Healthy() }},
		Location: time.UTC,
		Logger:   log,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router := gin.New()
	Register(router, deps)

	f := &apiFixture{router: router, tokens: map[string]string{}, users: map[string]uuid.UUID{}}
	for name, u := range seed {
		token, err := jwt.GenerateToken(u.ID, u.Role, u.Region, u.ManagerID)
		require.NoError(t, err)
		f.tokens[name] = token
		f.users[name] = u.ID
	}
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, who string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[who])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Code
}

func (f *apiFixture) checkIn(t *testing.T, who string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/tracking/check-in", who, gin.H{"latitude": 12.34, "longitude": 56.78})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]interface{})
	return data["session"].(map[string]interface{})["id"].(string)
}

func TestRequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/tracking/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.CodeAuthenticationRequired, errorCode(t, w))

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/status", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTrackingLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/tracking/status", "agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["data"])

	w = f.do(t, http.MethodPost, "/api/tracking/check-in", "agent", gin.H{"latitude": 91.0, "longitude": 10.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.CodeValidation, errorCode(t, w))

	w = f.do(t, http.MethodPost, "/api/tracking/check-in", "agent", gin.H{"longitude": 10.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sessionID := f.checkIn(t, "agent")

	w = f.do(t, http.MethodPost, "/api/tracking/coordinates", "agent", gin.H{
		"sessionId": sessionID,
		"coordinates": []gin.H{
			{"latitude": "12.341", "longitude": 56.78},
			{"latitude": 12.342, "longitude": 56.78, "accuracy": 500},
			{"latitude": "abc", "longitude": 56.78},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, result["processed"])
	assert.EqualValues(t, 1, result["filtered"])
	assert.EqualValues(t, 1, result["accuracyFiltered"])
	assert.InDelta(t, 0.111, result["distanceAdded"], 0.001)

	w = f.do(t, http.MethodGet, "/api/tracking/status", "agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 2, status["sample_count"])

	w = f.do(t, http.MethodPost, "/api/tracking/check-out", "other", gin.H{"sessionId": sessionID, "latitude": 12.343, "longitude": 56.78})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, dto.CodeForbidden, errorCode(t, w))

	w = f.do(t, http.MethodPost, "/api/tracking/check-out", "agent", gin.H{"latitude": 12.343, "longitude": 56.78})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/tracking/check-out", "agent", gin.H{"sessionId": uuid.NewString(), "latitude": 12.343, "longitude": 56.78})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.CodeNotFound, errorCode(t, w))

	w = f.do(t, http.MethodPost, "/api/tracking/check-out", "agent", gin.H{"sessionId": sessionID, "latitude": 12.343, "longitude": 56.78})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := decode(t, w)["data"].(map[string]interface{})
	assert.InDelta(t, 0.3336, closed["distance_km"], 0.001)
	assert.Equal(t, "closed", closed["session"].(map[string]interface{})["status"])

	w = f.do(t, http.MethodPost, "/api/tracking/check-out", "agent", gin.H{"sessionId": sessionID, "latitude": 12.343, "longitude": 56.78})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, dto.CodeConflict, errorCode(t, w))

	w = f.do(t, http.MethodPost, "/api/tracking/coordinates", "agent", gin.H{
		"sessionId":   sessionID,
		"coordinates": []gin.H{{"latitude": 1, "longitude": 1}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/summaries", "agent", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rows := decode(t, w)["data"].([]interface{})
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.3336, rows[0].(map[string]interface{})["total_distance_km"], 0.001)
}

func TestTrackingRequestBodies(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.checkIn(t, "agent")

	batch := json.RawMessage(fmt.Sprintf(`{
		"sessionId": %q,
		"coordinates": [
			{"latitude": 12.341, "longitude": 56.78, "accuracy": 8},
			{"latitude": 12.342, "longitude": 56.78, "accuracy": 900}
		]
	}`, sessionID))
	w := f.do(t, http.MethodPost, "/api/tracking/coordinates", "agent", batch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)["data"].(map[string]interface{})
	for _, key := range []string{"processed", "filtered", "accuracyFiltered", "distanceAdded", "method"} {
		assert.Contains(t, result, key)
	}
	assert.EqualValues(t, 1, result["processed"])
	assert.EqualValues(t, 0, result["filtered"])
	assert.EqualValues(t, 1, result["accuracyFiltered"])
	assert.InDelta(t, 0.111, result["distanceAdded"], 0.001)
	assert.Equal(t, string(distance.MethodHaversine), result["method"])

	w = f.do(t, http.MethodPost, "/api/tracking/check-out", "agent",
		json.RawMessage(`{"session_id": "`+sessionID+`", "latitude": 12.341, "longitude": 56.78}`))
	assert.Equal(t, http.StatusBadRequest, w.Code, "snake_case session id is not part of the contract")

	w = f.do(t, http.MethodPost, "/api/tracking/check-out", "agent",
		json.RawMessage(`{"sessionId": "`+sessionID+`", "latitude": 12.341, "longitude": 56.78, "accuracy": 5}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, sessionID, closed["session"].(map[string]interface{})["id"])
	assert.InDelta(t, 0.111, closed["distance_km"], 0.001)
}

func TestSummariesRefreshAfterTrackingWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = mr.Addr()
	cacheCfg.HealthInterval = 0
	client, err := cache.NewRedisClient(cacheCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	f := newAPIFixture(t, func(d *Dependencies) { d.Cache = client })

	summaries := func() (string, []interface{}) {
		w := f.do(t, http.MethodGet, "/api/summaries", "agent", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		rows, _ := decode(t, w)["data"].([]interface{})
		return w.Header().Get("X-Cache"), rows
	}

	state, rows := summaries()
	assert.Equal(t, "MISS", state)
	assert.Empty(t, rows)
	state, _ = summaries()
	assert.Equal(t, "HIT", state)

	sessionID := f.checkIn(t, "agent")
	state, _ = summaries()
	assert.Equal(t, "MISS", state, "check-in clears cached summaries")

	w := f.do(t, http.MethodPost, "/api/tracking/coordinates", "agent", gin.H{
		"sessionId":   sessionID,
		"coordinates": []gin.H{{"latitude": 12.341, "longitude": 56.78}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	state, rows = summaries()
	assert.Equal(t, "MISS", state, "ingest clears cached summaries")
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.111, rows[0].(map[string]interface{})["total_distance_km"], 0.001)
}

func TestCoordinateBatchRejections(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.checkIn(t, "agent")

	w := f.do(t, http.MethodPost, "/api/tracking/coordinates", "agent", gin.H{"sessionId": sessionID, "coordinates": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/tracking/coordinates", "agent", gin.H{
		"sessionId":   sessionID,
		"coordinates": []gin.H{{"latitude": "x", "longitude": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := make([]gin.H, 5001)
	for i := range big {
		big[i] = gin.H{"latitude": 12.34, "longitude": 56.78}
	}
	w = f.do(t, http.MethodPost, "/api/tracking/coordinates", "agent", gin.H{"sessionId": sessionID, "coordinates": big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.CodePayloadTooLarge, errorCode(t, w))

	w = f.do(t, http.MethodGet, "/api/tracking/status", "agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["data"].(map[string]interface{})["sample_count"])
}

func TestRouteAndLiveAreScoped(t *testing.T) {
	f := newAPIFixture(t)
	sessionID := f.checkIn(t, "agent")
	f.checkIn(t, "other")

	path := fmt.Sprintf("/api/tracking/sessions/%s/route", sessionID)
	for who, want := range map[string]int{
		"agent": http.StatusOK,
		"lead":  http.StatusOK,
		"admin": http.StatusOK,
		"other": http.StatusNotFound,
	} {
		w := f.do(t, http.MethodGet, path, who, nil)
		assert.Equal(t, want, w.Code, who)
	}

	w := f.do(t, http.MethodGet, "/api/monitoring/live", "lead", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode(t, w)["data"].(map[string]interface{})
	sessions := view["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	assert.Equal(t, f.users["agent"].String(), sessions[0].(map[string]interface{})["user_id"])

	w = f.do(t, http.MethodGet, "/api/monitoring/live", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"].(map[string]interface{})["sessions"], 2)

	w = f.do(t, http.MethodGet, "/api/monitoring/live/ws", "lead", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminOnlyRoutes(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/tracking/recalculate", "agent", gin.H{})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/tracking/recalculate", "admin", gin.H{"force": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode(t, w)["data"].(map[string]interface{})["candidates"])
}

func TestErrorLogOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/errors", "agent", gin.H{"error_type": "gps_timeout", "error_message": "no fix"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ack := decode(t, w)["data"].(map[string]interface{})
	assert.NotEmpty(t, ack["guidance"])
	reportID := ack["id"].(string)

	w = f.do(t, http.MethodPost, "/api/errors", "agent", gin.H{"error_type": " ", "error_message": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/errors", "other", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["data"].(map[string]interface{})["reports"])

	w = f.do(t, http.MethodPatch, "/api/errors/resolve", "lead", gin.H{"ids": []string{reportID}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPatch, "/api/errors/resolve", "admin", gin.H{"ids": []string{reportID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["data"].(map[string]interface{})["resolved"])
}

func TestHealthRoutes(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/health", "/health/ready", "/health/cache", "/metrics"} {
		w := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := f.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.True(t, strings.Contains(w.Body.String(), `"cache":"disabled"`))
}
