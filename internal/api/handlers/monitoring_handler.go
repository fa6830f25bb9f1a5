package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/monitoring"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/cache"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// LiveSubscriber streams live tracking updates.
type LiveSubscriber interface {
	Subscribe(ctx context.Context) (<-chan cache.LiveUpdate, func(), error)
}

// ScopeResolver computes the users a caller may see.
type ScopeResolver interface {
	ScopeFor(ctx context.Context, caller access.Caller, purpose access.Purpose) (access.Scope, error)
}

// MonitoringHandler serves the supervisory live view.
type MonitoringHandler struct {
	service  monitoring.Service
	feed     LiveSubscriber
	scopes   ScopeResolver
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewMonitoringHandler(service monitoring.Service, feed LiveSubscriber, scopes ScopeResolver, logger *zap.Logger) *MonitoringHandler {
	return &MonitoringHandler{
		service: service,
		feed:    feed,
		scopes:  scopes,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origins are enforced by the CORS layer; tokens are required anyway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Live returns the caller's scoped active sessions and summary.
// GET /api/monitoring/live
func (h *MonitoringHandler) Live(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	view, err := h.service.Live(c.Request.Context(), caller)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// LiveStream pushes live updates for users in the caller's scope over a
// websocket. The first message is a full snapshot.
// GET /api/monitoring/live/ws
func (h *MonitoringHandler) LiveStream(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	if h.feed == nil {
		middleware.AbortWithError(c, http.StatusServiceUnavailable, dto.CodeUnavailable, "live feed is not available")
		return
	}

	scope, err := h.scopes.ScopeFor(c.Request.Context(), caller, access.PurposeListing)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates, unsubscribe, err := h.feed.Subscribe(ctx)
	if err != nil {
		h.logger.Error("Failed to subscribe to live feed", zap.Error(err))
		middleware.AbortWithError(c, http.StatusServiceUnavailable, dto.CodeUnavailable, "live feed is not available")
		return
	}
	defer unsubscribe()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade to WebSocket",
			zap.Error(err),
			zap.String("user_id", caller.ID.String()))
		return
	}
	defer ws.Close()

	h.logger.Info("Live monitoring stream opened", zap.String("user_id", caller.ID.String()))

	ws.SetReadLimit(1024)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	if view, err := h.service.Live(ctx, caller); err == nil {
		if err := writeJSON(ws, gin.H{"type": "snapshot", "data": view}); err != nil {
			return
		}
	} else {
		h.logger.Warn("Failed to build live snapshot", zap.Error(err))
	}

	// Clients only send control frames; reading detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("WebSocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !scope.Allows(update.UserID) {
				continue
			}
			if err := writeJSON(ws, gin.H{"type": "update", "data": update}); err != nil {
				h.logger.Debug("WebSocket write error", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(v)
}
