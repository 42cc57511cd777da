// Package metrics provides the Prometheus metrics exposed on /metrics.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds every collector of the service and the registry they are
// registered with.
type Metrics struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	submissions       *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	cleanups          *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsort_http_requests_total",
				Help: "Total number of HTTP requests by route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartsort_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"method", "route"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsort_submissions_total",
				Help: "Total number of submissions by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		inferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartsort_inference_duration_seconds",
				Help:    "Time taken by one inference call.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"mode", "status"},
		),
		cleanups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsort_artifact_cleanups_total",
				Help: "Removals of artifacts left by submissions that failed to persist.",
			},
			[]string{"status"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.httpRequests,
		m.httpDuration,
		m.submissions,
		m.inferenceDuration,
		m.cleanups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveInference records the duration of an inference call.
func (m *Metrics) ObserveInference(mode string, d time.Duration, err error) {
	m.inferenceDuration.WithLabelValues(mode, status(err)).Observe(d.Seconds())
}

// ObserveCleanup counts a removal of orphaned artifacts.
func (m *Metrics) ObserveCleanup(err error) {
	m.cleanups.WithLabelValues(status(err)).Inc()
}

// ObserveSubmission counts a submission of kind (agreed, correction, manual)
// with its outcome.
func (m *Metrics) ObserveSubmission(kind, outcome string) {
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}
