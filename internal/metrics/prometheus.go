package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request latency in milliseconds
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mockd_request_duration_ms",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockd_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RateLimitHits counts rate limit rejections by limit class
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockd_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"limit_type"},
	)

	// AuthenticationFailures tracks failed authentication attempts
	AuthenticationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockd_auth_failures_total",
			Help: "Total number of authentication failures",
		},
		[]string{"method"},
	)

	// APIKeyValidations tracks production API key checks by outcome
	APIKeyValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockd_api_key_validations_total",
			Help: "Total number of API key validation attempts",
		},
		[]string{"result"},
	)

	// UploadBytes tracks bytes accepted by upload endpoints
	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockd_upload_bytes_total",
			Help: "Total bytes accepted by upload endpoints",
		},
		[]string{"mode"},
	)

	// UploadSessionsActive tracks resumable upload sessions not yet complete
	UploadSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mockd_upload_sessions_active",
			Help: "Number of resumable upload sessions in progress",
		},
	)

	// SweptRecords counts stale records removed by background sweeps
	SweptRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockd_swept_records_total",
			Help: "Total stale records removed by background sweeps",
		},
		[]string{"task"},
	)

	// ConcurrentRequests tracks requests being processed simultaneously
	ConcurrentRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mockd_concurrent_requests",
			Help: "Number of requests currently being processed",
		},
	)
)

// RecordRequestDuration records HTTP request duration
func RecordRequestDuration(method, endpoint, status string, duration time.Duration) {
	RequestDuration.WithLabelValues(method, endpoint, status).Observe(float64(duration.Milliseconds()))
}

// RecordRequest records a completed HTTP request
func RecordRequest(method, endpoint, status string) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// RecordRateLimitHit records a rate limit rejection
func RecordRateLimitHit(limitType string) {
	RateLimitHits.WithLabelValues(limitType).Inc()
}

// RecordAuthFailure records an authentication failure
func RecordAuthFailure(method string) {
	AuthenticationFailures.WithLabelValues(method).Inc()
}

// RecordAPIKeyValidation records an API key validation attempt
func RecordAPIKeyValidation(result string) {
	APIKeyValidations.WithLabelValues(result).Inc()
}

// RecordUploadBytes records bytes accepted by an upload endpoint
func RecordUploadBytes(mode string, n int64) {
	UploadBytes.WithLabelValues(mode).Add(float64(n))
}

// RecordSweep records stale records removed by a background sweep task
func RecordSweep(task string, removed int) {
	SweptRecords.WithLabelValues(task).Add(float64(removed))
}

// IncrementConcurrentRequests increments the concurrent requests gauge
func IncrementConcurrentRequests() {
	ConcurrentRequests.Inc()
}

// DecrementConcurrentRequests decrements the concurrent requests gauge
func DecrementConcurrentRequests() {
	ConcurrentRequests.Dec()
}
