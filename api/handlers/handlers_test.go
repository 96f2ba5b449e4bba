package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confluence-stream/backend/internal/db"
	"github.com/confluence-stream/backend/internal/model"
	"github.com/confluence-stream/backend/internal/repository"
	"github.com/confluence-stream/backend/internal/session"
	"github.com/confluence-stream/backend/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopConn struct{}

func (nopConn) Send([]byte) error { return nil }
func (nopConn) Close() error      { return nil }

type fixedStats struct{ stats ws.Stats }

func (f fixedStats) Stats() ws.Stats { return f.stats }

func newRouter(live LiveSessions, history SessionHistory, stats StatsSource) *gin.Engine {
	r := gin.New()
	NewHealthHandler(stats).RegisterRoutes(r)
	NewSessionHandler(live, history).RegisterRoutes(r.Group("/api"))
	return r
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	r := newRouter(session.NewRegistry(), nil, fixedStats{})

	w := get(t, r, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStats(t *testing.T) {
	stats := ws.Stats{Sessions: 3, Evaluations: 42, LatencyP50Ms: 0.4, LatencyP99Ms: 2.5}
	r := newRouter(session.NewRegistry(), nil, fixedStats{stats: stats})

	w := get(t, r, "/stats")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":3,"evaluations":42,"latencyP50Ms":0.4,"latencyP99Ms":2.5}`, w.Body.String())
}

func TestSessionHandler_ListAndGet(t *testing.T) {
	registry := session.NewRegistry()
	id, err := registry.Create(nopConn{})
	require.NoError(t, err)
	registry.Update(id, func(s *model.Session) {
		s.UserID = "trader"
		s.Confluences = []model.Confluence{{Name: "ema-cross"}, {Name: "rsi"}}
	})
	r := newRouter(registry, nil, fixedStats{})

	w := get(t, r, "/api/sessions")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]SessionResponse](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "trader", list[0].UserID)
	assert.Equal(t, 2, list[0].ConfluenceCount)
	assert.Empty(t, list[0].Confluences)

	w = get(t, r, "/api/sessions/"+id)
	require.Equal(t, http.StatusOK, w.Code)
	one := decode[SessionResponse](t, w)
	assert.Equal(t, []string{"ema-cross", "rsi"}, one.Confluences)
}

func TestSessionHandler_ListEmpty(t *testing.T) {
	r := newRouter(session.NewRegistry(), nil, fixedStats{})

	w := get(t, r, "/api/sessions")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSessionHandler_GetMissing(t *testing.T) {
	r := newRouter(session.NewRegistry(), nil, fixedStats{})

	w := get(t, r, "/api/sessions/nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "SESSION_NOT_FOUND", resp.Error.Code)
}

func TestSessionHandler_History(t *testing.T) {
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	defer testDB.Close()

	repo := repository.NewHistoryRepository(testDB)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, &model.SessionRecord{ID: id, ConnectedAt: start.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, repo.IncrementAnalyses(ctx, "c"))
	require.NoError(t, repo.Close(ctx, "c", start.Add(2*time.Minute+90*time.Second), model.CloseReasonEvicted))

	r := newRouter(session.NewRegistry(), repo, fixedStats{})

	w := get(t, r, "/api/sessions/history?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	records := decode[[]HistoryResponse](t, w)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, 1, records[0].Analyses)
	assert.Equal(t, "evicted", records[0].CloseReason)
	assert.Equal(t, "1m30s", records[0].Duration)
	assert.Equal(t, "b", records[1].ID)
	assert.Empty(t, records[1].ClosedAt)

	w = get(t, r, "/api/sessions/history/a")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode[HistoryResponse](t, w).ID)

	w = get(t, r, "/api/sessions/history/zzz")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_HistoryValidation(t *testing.T) {
	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	defer testDB.Close()
	r := newRouter(session.NewRegistry(), repository.NewHistoryRepository(testDB), fixedStats{})

	for _, limit := range []string{"0", "-1", "abc", "100000"} {
		w := get(t, r, "/api/sessions/history?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestSessionHandler_HistoryDisabled(t *testing.T) {
	r := newRouter(session.NewRegistry(), nil, fixedStats{})

	w := get(t, r, "/api/sessions/history")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "HISTORY_DISABLED", decode[ErrorResponse](t, w).Error.Code)
}

func TestFormatDuration(t *testing.T) {
	testCases := map[time.Duration]string{
		-time.Second:                "0s",
		1500 * time.Millisecond:     "2s",
		90 * time.Second:            "1m30s",
		2*time.Hour + 5*time.Second: "2h0m5s",
	}
	for d, want := range testCases {
		assert.Equal(t, want, formatDuration(d), "duration %v", d)
	}
}
