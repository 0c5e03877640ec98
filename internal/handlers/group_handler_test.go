package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/models"
	"github.com/ternarybob/harvestd/internal/services/monitoring"
)

// mockMonitoring overrides the calls under test; the embedded interface panics on anything else
type mockMonitoring struct {
	mock.Mock
	interfaces.MonitoringService
}

func (m *mockMonitoring) RegisterGroup(ctx context.Context, externalID, name string) (*models.MonitoredGroup, error) {
	args := m.Called(externalID, name)
	group, _ := args.Get(0).(*models.MonitoredGroup)
	return group, args.Error(1)
}

func (m *mockMonitoring) GetGroup(ctx context.Context, id string) (*models.MonitoredGroup, error) {
	args := m.Called(id)
	group, _ := args.Get(0).(*models.MonitoredGroup)
	return group, args.Error(1)
}

func (m *mockMonitoring) EnableMonitoring(ctx context.Context, groupID string, intervalMinutes, priority int) (*models.MonitoredGroup, error) {
	args := m.Called(groupID, intervalMinutes, priority)
	group, _ := args.Get(0).(*models.MonitoredGroup)
	return group, args.Error(1)
}

func (m *mockMonitoring) UpdateMonitoringSettings(ctx context.Context, groupID string, settings interfaces.MonitoringSettings) (*models.MonitoredGroup, error) {
	args := m.Called(groupID, settings)
	group, _ := args.Get(0).(*models.MonitoredGroup)
	return group, args.Error(1)
}

func (m *mockMonitoring) RunGroupNow(ctx context.Context, groupID string) error {
	return m.Called(groupID).Error(0)
}

func (m *mockMonitoring) RunCycleNow(ctx context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

type mockContent struct {
	mock.Mock
	interfaces.ContentStorage
}

func (m *mockContent) ListComments(ctx context.Context, postKey string, limit, offset int) ([]*models.Comment, error) {
	args := m.Called(postKey, limit, offset)
	comments, _ := args.Get(0).([]*models.Comment)
	return comments, args.Error(1)
}

func (m *mockContent) CountComments(ctx context.Context, postKey string) (int, error) {
	args := m.Called(postKey)
	return args.Int(0), args.Error(1)
}

func newGroupMux(mon *mockMonitoring, content *mockContent) *http.ServeMux {
	h := NewGroupHandler(mon, content, arbor.NewNoOpLogger())
	mh := NewMonitoringHandler(mon, arbor.NewNoOpLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/groups", h.RegisterGroupHandler)
	mux.HandleFunc("GET /api/groups/{id}", h.GetGroupHandler)
	mux.HandleFunc("POST /api/groups/{id}/monitoring", h.EnableMonitoringHandler)
	mux.HandleFunc("PATCH /api/groups/{id}/monitoring", h.UpdateMonitoringHandler)
	mux.HandleFunc("/api/groups/{id}/run", h.RunGroupHandler)
	mux.HandleFunc("/api/posts/{key}/comments", h.ListCommentsHandler)
	mux.HandleFunc("/api/monitoring/run-cycle", mh.RunCycleHandler)
	return mux
}

func serve(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRegisterGroupHandler(t *testing.T) {
	mon := &mockMonitoring{}
	mux := newGroupMux(mon, &mockContent{})

	mon.On("RegisterGroup", "42", "News").Return(models.NewMonitoredGroup("42", "News"), nil)

	rec := serve(mux, "POST", "/api/groups", `{"external_id":"42","name":"News"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var got models.MonitoredGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "grp_42", got.ID)

	rec = serve(mux, "POST", "/api/groups", `{"name":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(mux, "POST", "/api/groups", `{"external_id":"1","unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mon.AssertExpectations(t)
}

func TestGroupHandlerErrorMapping(t *testing.T) {
	mon := &mockMonitoring{}
	mux := newGroupMux(mon, &mockContent{})

	mon.On("GetGroup", "grp_missing").Return(nil, fmt.Errorf("%w: grp_missing", interfaces.ErrGroupNotFound))
	mon.On("RunGroupNow", "grp_busy").Return(monitoring.ErrGroupAlreadyRunning)
	mon.On("RunGroupNow", "grp_queued").Return(monitoring.ErrGroupAlreadyQueued)
	mon.On("RunGroupNow", "grp_1").Return(nil)
	mon.On("RunCycleNow").Return(0, monitoring.ErrSchedulerStopped)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown group", "GET", "/api/groups/grp_missing", http.StatusNotFound},
		{"run while running", "POST", "/api/groups/grp_busy/run", http.StatusConflict},
		{"run while queued", "POST", "/api/groups/grp_queued/run", http.StatusConflict},
		{"run accepted", "POST", "/api/groups/grp_1/run", http.StatusAccepted},
		{"run wrong method", "GET", "/api/groups/grp_1/run", http.StatusMethodNotAllowed},
		{"cycle after stop", "POST", "/api/monitoring/run-cycle", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(mux, tt.method, tt.path, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestEnableMonitoringHandler(t *testing.T) {
	mon := &mockMonitoring{}
	mux := newGroupMux(mon, &mockContent{})

	enabled := models.NewMonitoredGroup("1", "g")
	enabled.Enabled = true
	enabled.IntervalMinutes = 15
	mon.On("EnableMonitoring", "grp_1", 15, 2).Return(enabled, nil)
	mon.On("EnableMonitoring", "grp_1", 0, 0).Return(enabled, nil)

	rec := serve(mux, "POST", "/api/groups/grp_1/monitoring", `{"interval_minutes":15,"priority":2}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// An empty body keeps the current cadence
	rec = serve(mux, "POST", "/api/groups/grp_1/monitoring", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	mon.AssertExpectations(t)
}

func TestUpdateMonitoringHandler(t *testing.T) {
	mon := &mockMonitoring{}
	mux := newGroupMux(mon, &mockContent{})

	mon.On("UpdateMonitoringSettings", "grp_1", mock.MatchedBy(func(s interfaces.MonitoringSettings) bool {
		return s.Priority != nil && *s.Priority == 7 && s.IntervalMinutes == nil
	})).Return(models.NewMonitoredGroup("1", "g"), nil)

	rec := serve(mux, "PATCH", "/api/groups/grp_1/monitoring", `{"priority":7}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(mux, "PATCH", "/api/groups/grp_1/monitoring", `{"priority":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mon.AssertExpectations(t)
}

func TestListCommentsHandler(t *testing.T) {
	content := &mockContent{}
	mux := newGroupMux(&mockMonitoring{}, content)

	comments := []*models.Comment{{Key: "grp_1:10:1", Text: "first"}}
	content.On("ListComments", "grp_1:10", 500, 20).Return(comments, nil)
	content.On("CountComments", "grp_1:10").Return(21, nil)

	rec := serve(mux, "GET", "/api/posts/grp_1:10/comments?limit=9999&offset=20", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Comments []*models.Comment `json:"comments"`
		Total    int               `json:"total"`
		Limit    int               `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Comments, 1)
	assert.Equal(t, 21, body.Total)
	assert.Equal(t, 500, body.Limit)

	content.AssertExpectations(t)
}
