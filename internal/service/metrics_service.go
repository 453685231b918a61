package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campushub/lms-sync-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the sync pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	syncTotal       *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	recordsSynced   *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
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

	syncTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_syncs_total",
		Help: "Completed sync passes by provider and outcome",
	}, []string{"provider", "outcome"})

	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lms_sync_duration_seconds",
		Help:    "Duration of full sync passes",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"provider"})

	recordsSynced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_records_synced_total",
		Help: "Canonical records upserted during syncs, by entity",
	}, []string{"provider", "entity"})

	registry.MustRegister(requestDuration, requestTotal, syncTotal, syncDuration, recordsSynced)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		syncTotal:       syncTotal,
		syncDuration:    syncDuration,
		recordsSynced:   recordsSynced,
	}
}

// Handler exposes the /metrics endpoint handler.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveSync records the outcome of one sync pass.
func (s *MetricsService) ObserveSync(providerType string, result *models.SyncResult) {
	outcome := "success"
	if !result.Success {
		outcome = "error"
	}
	s.syncTotal.WithLabelValues(providerType, outcome).Inc()
	s.syncDuration.WithLabelValues(providerType).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	s.recordsSynced.WithLabelValues(providerType, "users").Add(float64(result.SyncedUsers))
	s.recordsSynced.WithLabelValues(providerType, "courses").Add(float64(result.SyncedCourses))
	s.recordsSynced.WithLabelValues(providerType, "grades").Add(float64(result.SyncedGrades))
}
