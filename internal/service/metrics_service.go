package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation. Every method is safe
// on a nil receiver so callers can run without metrics.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	runAttempts    prometheus.Histogram
	optimizerMoves prometheus.Counter
	scheduleCost   prometheus.Histogram
	conflicts      *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_runs_total",
		Help: "Scheduling runs by final status",
	}, []string{"status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_run_duration_seconds",
		Help:    "Wall time of scheduling runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	runAttempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_run_attempts",
		Help:    "Constructive attempts used per run",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})

	optimizerMoves := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_optimizer_moves_total",
		Help: "Improving moves accepted by the optimizer",
	})

	scheduleCost := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_final_cost",
		Help:    "Total soft cost of finished schedules",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Unplaced blocks by conflict reason",
	}, []string{"reason"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		runsTotal, runDuration, runAttempts, optimizerMoves, scheduleCost, conflicts, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		runAttempts:     runAttempts,
		optimizerMoves:  optimizerMoves,
		scheduleCost:    scheduleCost,
		conflicts:       conflicts,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveRun records the outcome of a finished engine run.
func (m *MetricsService) ObserveRun(schedule *models.Schedule, duration time.Duration) {
	if m == nil || schedule == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(schedule.Status)).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.runAttempts.Observe(float64(schedule.Attempts))
	m.optimizerMoves.Add(float64(schedule.MovesAccepted))
	if schedule.Status == models.ScheduleFeasible || schedule.Status == models.SchedulePartial {
		m.scheduleCost.Observe(schedule.Cost.Total)
	}
	for _, conflict := range schedule.Conflicts {
		m.conflicts.WithLabelValues(string(conflict.Reason)).Inc()
	}
}

// ObserveRunError counts runs that ended with an error instead of a schedule.
func (m *MetricsService) ObserveRunError() {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues("error").Inc()
}

// ObserveQueue exports the number of runs waiting for a worker.
func (m *MetricsService) ObserveQueue(pending func() int) {
	if m == nil || pending == nil {
		return
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "schedule_queue_pending",
		Help: "Scheduling runs waiting for a worker",
	}, func() float64 {
		return float64(pending())
	})
	// Only the first queue is exported.
	_ = m.registry.Register(gauge)
}
