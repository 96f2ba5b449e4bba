package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/confluence-stream/backend/internal/ws"
)

// StatsSource reports live server statistics.
type StatsSource interface {
	Stats() ws.Stats
}

// HealthHandler serves liveness and statistics endpoints.
type HealthHandler struct {
	stats StatsSource
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(stats StatsSource) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats handles GET /stats.
func (h *HealthHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Stats())
}

// RegisterRoutes registers the health routes on a Gin router.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
}
