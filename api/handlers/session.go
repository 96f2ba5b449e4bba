// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/confluence-stream/backend/internal/model"
)

// maxHistoryLimit caps the limit query parameter of the history endpoint.
const maxHistoryLimit = 1000

// LiveSessions is the read side of the session registry.
type LiveSessions interface {
	List() []model.SessionSummary
	Get(id string) (model.Session, error)
}

// SessionHistory is the read side of the history repository.
type SessionHistory interface {
	List(ctx context.Context, limit int) ([]*model.SessionRecord, error)
	GetByID(ctx context.Context, id string) (*model.SessionRecord, error)
}

// SessionHandler handles HTTP requests for session inspection.
type SessionHandler struct {
	live    LiveSessions
	history SessionHistory
}

// NewSessionHandler creates a new SessionHandler. history may be nil when
// session history is disabled.
func NewSessionHandler(live LiveSessions, history SessionHistory) *SessionHandler {
	return &SessionHandler{
		live:    live,
		history: history,
	}
}

// SessionResponse represents a live session in API responses.
type SessionResponse struct {
	ID              string   `json:"id"`
	UserID          string   `json:"userId,omitempty"`
	ConfluenceCount int      `json:"confluenceCount"`
	Confluences     []string `json:"confluences,omitempty"`
	Idle            string   `json:"idle"`
	Duration        string   `json:"duration"`
	ConnectedAt     string   `json:"connectedAt"`
	LastSeen        string   `json:"lastSeen"`
}

// HistoryResponse represents a session history record in API responses.
type HistoryResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"userId,omitempty"`
	ConfluenceCount int    `json:"confluenceCount"`
	Analyses        int    `json:"analyses"`
	Duration        string `json:"duration"`
	ConnectedAt     string `json:"connectedAt"`
	ClosedAt        string `json:"closedAt,omitempty"`
	CloseReason     string `json:"closeReason,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func toSummaryResponse(s model.SessionSummary, now time.Time) *SessionResponse {
	return &SessionResponse{
		ID:              s.ID,
		UserID:          s.UserID,
		ConfluenceCount: s.ConfluenceCount,
		Idle:            formatDuration(now.Sub(s.LastSeen)),
		Duration:        formatDuration(now.Sub(s.ConnectedAt)),
		ConnectedAt:     s.ConnectedAt.Format(time.RFC3339),
		LastSeen:        s.LastSeen.Format(time.RFC3339),
	}
}

func toSessionResponse(s model.Session, now time.Time) *SessionResponse {
	resp := toSummaryResponse(s.Summary(), now)
	resp.Confluences = make([]string, 0, len(s.Confluences))
	for _, c := range s.Confluences {
		resp.Confluences = append(resp.Confluences, c.Name)
	}
	return resp
}

func toHistoryResponse(r *model.SessionRecord) *HistoryResponse {
	resp := &HistoryResponse{
		ID:              r.ID,
		UserID:          r.UserID,
		ConfluenceCount: r.ConfluenceCount,
		Analyses:        r.Analyses,
		Duration:        formatDuration(r.Duration()),
		ConnectedAt:     r.ConnectedAt.Format(time.RFC3339),
		CloseReason:     string(r.CloseReason),
	}
	if r.ClosedAt != nil {
		resp.ClosedAt = r.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// List handles GET /api/sessions - lists live sessions, oldest first.
func (h *SessionHandler) List(c *gin.Context) {
	now := time.Now()
	sessions := h.live.List()

	response := make([]*SessionResponse, len(sessions))
	for i, s := range sessions {
		response[i] = toSummaryResponse(s, now)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a live session.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	sess, err := h.live.Get(sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(sess, time.Now()))
}

// History handles GET /api/sessions/history?limit=N - lists recorded
// sessions, most recent first.
func (h *SessionHandler) History(c *gin.Context) {
	if h.history == nil {
		sendError(c, http.StatusServiceUnavailable, "HISTORY_DISABLED", "Session history is disabled")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR",
				"limit must be an integer between 1 and "+strconv.Itoa(maxHistoryLimit))
			return
		}
		limit = n
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list session history: "+err.Error())
		return
	}

	response := make([]*HistoryResponse, len(records))
	for i, r := range records {
		response[i] = toHistoryResponse(r)
	}

	c.JSON(http.StatusOK, response)
}

// HistoryEntry handles GET /api/sessions/history/:id - gets one recorded session.
func (h *SessionHandler) HistoryEntry(c *gin.Context) {
	if h.history == nil {
		sendError(c, http.StatusServiceUnavailable, "HISTORY_DISABLED", "Session history is disabled")
		return
	}

	sessionID := c.Param("id")
	rec, err := h.history.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session history: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toHistoryResponse(rec))
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.List)
	rg.GET("/sessions/history", h.History)
	rg.GET("/sessions/history/:id", h.HistoryEntry)
	rg.GET("/sessions/:id", h.Get)
}
