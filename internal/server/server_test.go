package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/app"
	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(dir, "db")
	cfg.Groups.DefinitionsDir = filepath.Join(dir, "groups")
	cfg.Scheduler.Enabled = false

	application, err := app.New(cfg, arbor.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	return New(application)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, "POST", "/api/groups", `{"external_id":"123","name":"City news"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, "POST", "/api/groups/grp_123/monitoring", `{"interval_minutes":30,"priority":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var group models.MonitoredGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))
	assert.True(t, group.Enabled)
	assert.Equal(t, 30, group.IntervalMinutes)
	assert.Equal(t, 4, group.Priority)

	rec = do(t, h, "PATCH", "/api/groups/grp_123/monitoring", `{"interval_minutes":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "GET", "/api/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = do(t, h, "GET", "/api/monitoring/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.EngineStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalGroups)
	assert.Equal(t, 1, stats.EnabledGroups)
	assert.False(t, stats.SchedulerRunning)

	rec = do(t, h, "GET", "/api/groups/grp_123/posts", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "DELETE", "/api/groups/grp_123/monitoring", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "DELETE", "/api/groups/grp_123", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "GET", "/api/groups/grp_123", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemRoutes(t *testing.T) {
	h := newTestServer(t).Handler()

	rec := do(t, h, "GET", "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "GET", "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)

	rec = do(t, h, "GET", "/api/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, "PUT", "/api/groups", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, "OPTIONS", "/api/groups", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvestd_scheduler_groups_running")
}

func TestShutdownClosesEventStreamClients(t *testing.T) {
	srv := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-serveErr)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return srv.app.WSHandler.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
