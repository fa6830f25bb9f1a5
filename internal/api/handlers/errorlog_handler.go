package handlers

import (
	"net/http"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/domain/errorlog"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorLogHandler receives device error reports.
type ErrorLogHandler struct {
	service errorlog.Service
	logger  *zap.Logger
}

func NewErrorLogHandler(service errorlog.Service, logger *zap.Logger) *ErrorLogHandler {
	return &ErrorLogHandler{service: service, logger: logger}
}

// Report stores an error and returns troubleshooting guidance.
// POST /api/errors
func (h *ErrorLogHandler) Report(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	req, ok := bindJSON[dto.ReportErrorRequest](c)
	if !ok {
		return
	}

	ack, err := h.service.Report(c.Request.Context(), caller.ID, errorlog.ReportInput{
		ErrorType:    req.ErrorType,
		ErrorMessage: req.ErrorMessage,
		Severity:     req.Severity,
		Context:      req.Context,
		DeviceInfo:   req.DeviceInfo,
		AppVersion:   req.AppVersion,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": ack})
}

// List returns reports visible to the caller with aggregate stats.
// GET /api/errors
func (h *ErrorLogHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	query, ok := bindQuery[dto.ErrorLogQuery](c)
	if !ok {
		return
	}

	result, err := h.service.List(c.Request.Context(), caller, errorlog.Filter{
		Resolved:  query.Resolved,
		ErrorType: query.ErrorType,
		Since:     query.Since,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// Resolve marks reports resolved. The service rejects non-admins.
// PATCH /api/errors/resolve
func (h *ErrorLogHandler) Resolve(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	req, ok := bindJSON[dto.ResolveErrorsRequest](c)
	if !ok {
		return
	}

	n, err := h.service.Resolve(c.Request.Context(), caller, req.IDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dto.ResolveErrorsResponse{Resolved: n}})
}
