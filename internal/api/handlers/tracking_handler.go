package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBatchBodyBytes bounds coordinate batch bodies before decoding.
const maxBatchBodyBytes = 16 << 20

// TrackingHandler handles session lifecycle and coordinate ingestion.
type TrackingHandler struct {
	service tracking.Service
	logger  *zap.Logger
}

func NewTrackingHandler(service tracking.Service, logger *zap.Logger) *TrackingHandler {
	return &TrackingHandler{service: service, logger: logger}
}

// CheckIn opens a session for the caller, auto-closing any open one.
// POST /api/tracking/check-in
func (h *TrackingHandler) CheckIn(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	req, ok := bindJSON[dto.CheckInRequest](c)
	if !ok {
		return
	}

	result, err := h.service.CheckIn(c.Request.Context(), caller.ID, tracking.CheckInInput{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": dto.CheckInResponse{
		Session:             dto.ToSessionResponse(result.Session),
		AutoClosedSessionID: result.AutoClosedSessionID,
	}})
}

// CheckOut closes the given session with a final position.
// POST /api/tracking/check-out
func (h *TrackingHandler) CheckOut(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	req, ok := bindJSON[dto.CheckOutRequest](c)
	if !ok {
		return
	}
	sessionID, ok := parseSessionID(c, req.SessionID)
	if !ok {
		return
	}

	result, err := h.service.CheckOut(c.Request.Context(), caller.ID, tracking.CheckOutInput{
		SessionID: sessionID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dto.CheckOutResponse{
		Session:         dto.ToSessionResponse(result.Session),
		DurationMinutes: result.DurationMinutes,
		DistanceKm:      result.Session.TotalDistanceKm,
		DistanceDeltaKm: result.DistanceDeltaKm,
		Method:          string(result.Method),
		FallbackReason:  result.FallbackReason,
	}})
}

// IngestCoordinates stores a batch of readings for an open session.
// POST /api/tracking/coordinates
func (h *TrackingHandler) IngestCoordinates(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBatchBodyBytes)
	var req dto.CoordinateBatchRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.AbortWithError(c, http.StatusRequestEntityTooLarge, dto.CodePayloadTooLarge, "request body too large")
			return
		}
		middleware.AbortWithError(c, http.StatusBadRequest, dto.CodeValidation, "invalid JSON body")
		return
	}
	sessionID, ok := parseSessionID(c, req.SessionID)
	if !ok {
		return
	}

	result, err := h.service.IngestBatch(c.Request.Context(), caller.ID, sessionID, req.Coordinates)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetStatus returns the caller's open session, or null.
// GET /api/tracking/status
func (h *TrackingHandler) GetStatus(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), caller.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dto.ToStatusResponse(status)})
}

// GetRoute returns a session's ordered points for map rendering.
// GET /api/tracking/sessions/:id/route
func (h *TrackingHandler) GetRoute(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, dto.CodeValidation, "invalid session ID")
		return
	}

	route, err := h.service.GetRoute(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dto.ToRouteResponse(route)})
}

// Recalculate recomputes distances of closed sessions. Admin only.
// POST /api/tracking/recalculate
func (h *TrackingHandler) Recalculate(c *gin.Context) {
	req, ok := bindJSON[dto.RecalculateRequest](c)
	if !ok {
		return
	}

	report, err := h.service.Recalculate(c.Request.Context(), tracking.RecalculateOptions{
		Force:     req.Force,
		Limit:     req.Limit,
		ItemDelay: time.Duration(req.ItemDelayMs) * time.Millisecond,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// parseSessionID maps an empty id to the session-id error and a malformed
// one to a validation error.
func parseSessionID(c *gin.Context, raw string) (uuid.UUID, bool) {
	if raw == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, dto.CodeValidation, tracking.ErrSessionIDRequired.Error())
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, dto.CodeValidation, "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}
