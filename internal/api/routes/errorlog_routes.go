package routes

import (
	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/api/handlers"
	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorLogRoutes struct {
	handler *handlers.ErrorLogHandler
	logger  *zap.Logger
}

func NewErrorLogRoutes(handler *handlers.ErrorLogHandler, logger *zap.Logger) *ErrorLogRoutes {
	return &ErrorLogRoutes{handler: handler, logger: logger}
}

func (r *ErrorLogRoutes) RegisterRoutes(api *gin.RouterGroup) {
	errors := api.Group("/errors")
	errors.POST("", middleware.ValidateRequest(&dto.ReportErrorRequest{}, r.logger), r.handler.Report)
	errors.GET("", r.handler.List)
	errors.PATCH("/resolve",
		middleware.RequireRole(access.RoleAdmin),
		middleware.ValidateRequest(&dto.ResolveErrorsRequest{}, r.logger),
		r.handler.Resolve)
}
