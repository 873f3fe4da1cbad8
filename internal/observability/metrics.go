package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	examSessionsActive    prometheus.Gauge
	gradingEventsTotal    *prometheus.CounterVec
	boilerplateCacheTotal *prometheus.CounterVec
	pipelineFailuresTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the judge API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_requests_total",
			Help: "Total number of judge API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_latency_seconds",
			Help:    "Latency distribution for judge API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_errors_total",
			Help: "Total number of error responses returned by judge endpoints.",
		}, []string{"method", "route", "status"})

		examSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "judge_exam_sessions_active",
			Help: "Number of exam sessions currently held in memory.",
		})

		gradingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_grading_events_total",
			Help: "Grading events published, by sink and result.",
		}, []string{"sink", "result"})

		boilerplateCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_boilerplate_cache_total",
			Help: "Boilerplate cache lookups by result.",
		}, []string{"result"})

		pipelineFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_pipeline_failures_total",
			Help: "Failed pipeline invocations by operation, stage and failure kind.",
		}, []string{"operation", "stage", "kind"})

		prometheus.MustRegister(apiRequestsTotal, apiLatencySeconds, apiErrorsTotal, examSessionsActive, gradingEventsTotal, boilerplateCacheTotal, pipelineFailuresTotal)
	})
}

// APIRequests exposes the counter for judge API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for judge API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for judge API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ExamSessionsActive exposes the gauge of live exam sessions.
func ExamSessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return examSessionsActive
}

// GradingEvents exposes the counter for published grading events.
func GradingEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingEventsTotal
}

// BoilerplateCache exposes the counter for boilerplate cache lookups.
func BoilerplateCache() *prometheus.CounterVec {
	RegisterMetrics()
	return boilerplateCacheTotal
}

// PipelineFailures exposes the counter for failed pipeline invocations.
func PipelineFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineFailuresTotal
}

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
