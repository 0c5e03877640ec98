package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ObserveCall("wall.get", "success")
	m.ObserveCall("wall.get", "success")
	m.ObserveCall("wall.get", "transient")
	m.IncTruncated("wall.getComments")
	m.ObserveRun("success", 2*time.Second)
	m.AddIngested("post", 3)
	m.AddIngested("comment", 0)
	m.SetRunning(2)
	m.SetQueued(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboundCallsTotal.WithLabelValues("wall.get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboundCallsTotal.WithLabelValues("wall.get", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TruncationsTotal.WithLabelValues("wall.getComments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GroupRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ItemsIngestedTotal.WithLabelValues("post")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GroupsRunning))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.GroupsQueued))
}

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveCall("wall.get", "success")
		m.ObserveRateLimitWait(time.Millisecond)
		m.ObserveRun("failed", time.Second)
		m.IncTruncated("wall.get")
		m.AddIngested("post", 1)
		m.SetRunning(1)
		m.SetQueued(1)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveCall("wall.get", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvestd_client_calls_total")
}
