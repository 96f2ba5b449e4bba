package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/confluence-stream/backend/internal/ws"
)

// WebSocketHandler hands WebSocket upgrade requests to the transport.
type WebSocketHandler struct {
	wsHandler *ws.Handler
	path      string
	logger    *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler serving path.
func NewWebSocketHandler(wsHandler *ws.Handler, path string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		wsHandler: wsHandler,
		path:      path,
		logger:    logger.With("component", "http"),
	}
}

// Attach handles GET <path> - upgrades the request and opens a session.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	// The upgrader has already answered the request when this fails
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		h.logger.Debug("WebSocket upgrade failed", "remote", c.ClientIP(), "error", err)
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET(h.path, h.Attach)
}
