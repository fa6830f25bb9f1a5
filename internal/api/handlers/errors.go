package handlers

import (
	"errors"
	"net/http"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/errorlog"
	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps domain errors to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, tracking.ErrAuthenticationRequired),
		errors.Is(err, errorlog.ErrAuthenticationRequired):
		return http.StatusUnauthorized, dto.CodeAuthenticationRequired
	case errors.Is(err, tracking.ErrNotSessionOwner),
		errors.Is(err, errorlog.ErrForbidden):
		return http.StatusForbidden, dto.CodeForbidden
	case errors.Is(err, tracking.ErrSessionNotFound):
		return http.StatusNotFound, dto.CodeNotFound
	case errors.Is(err, tracking.ErrSessionClosed):
		return http.StatusConflict, dto.CodeConflict
	case errors.Is(err, tracking.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge, dto.CodePayloadTooLarge
	case tracking.IsValidation(err),
		errors.Is(err, errorlog.ErrInvalidReport),
		errors.Is(err, errorlog.ErrNoReports),
		errors.Is(err, summary.ErrInvalidRange):
		return http.StatusBadRequest, dto.CodeValidation
	}
	return http.StatusInternalServerError, dto.CodeInternal
}

// respondError writes err using the standard error body. Internal errors are
// logged and their text is not exposed.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("Request failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
		message = "internal server error"
	}
	_ = c.Error(err)
	middleware.AbortWithError(c, status, code, message)
}

// bindJSON returns the body validated by the validation middleware, or
// decodes and validates it when the route has none.
func bindJSON[T any](c *gin.Context) (*T, bool) {
	if req, ok := middleware.ValidatedModel[T](c); ok {
		return req, true
	}

	req := new(T)
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, dto.CodeValidation, "invalid JSON body")
		return nil, false
	}
	if err := middleware.Validate(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ValidationErrorResponse(err))
		return nil, false
	}
	return req, true
}

// bindQuery decodes and validates query parameters into T.
func bindQuery[T any](c *gin.Context) (*T, bool) {
	req := new(T)
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, dto.CodeValidation, "invalid query parameters")
		return nil, false
	}
	if err := middleware.Validate(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, middleware.ValidationErrorResponse(err))
		return nil, false
	}
	return req, true
}

// callerFrom returns the authenticated caller or writes a 401.
func callerFrom(c *gin.Context) (access.Caller, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.AbortWithError(c, http.StatusUnauthorized, dto.CodeAuthenticationRequired, "user not authenticated")
	}
	return caller, ok
}
