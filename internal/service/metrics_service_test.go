package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
)

func TestMetricsServiceObserveRun(t *testing.T) {
	m := NewMetricsService()
	m.ObserveRun(&models.Schedule{
		Status:        models.SchedulePartial,
		Attempts:      2,
		MovesAccepted: 5,
		Cost:          models.CostSummary{Total: 12},
		Conflicts: []models.Conflict{
			{BlockID: "a", Reason: models.ReasonStaffBusy},
			{BlockID: "b", Reason: models.ReasonStaffBusy},
		},
	}, time.Second)
	m.ObserveRunError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.optimizerMoves))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.conflicts.WithLabelValues(string(models.ReasonStaffBusy))))
}

func TestMetricsServiceCacheRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.Equal(t, 0.5, testutil.ToFloat64(m.cacheHitRatio))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheMisses))
}

func TestMetricsServiceHandlerExposesQueue(t *testing.T) {
	m := NewMetricsService()
	m.ObserveQueue(func() int { return 3 })
	m.ObserveQueue(func() int { return 9 })
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "schedule_queue_pending 3")
	assert.Contains(t, body, `http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveRun(&models.Schedule{}, time.Second)
	m.ObserveRunError()
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveQueue(func() int { return 1 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, m.Registry())
}
