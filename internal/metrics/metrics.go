// Package metrics exposes Prometheus collectors for extraction runs.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	attemptsTotal              *prometheus.CounterVec
	itemsTotal                 *prometheus.CounterVec
	renderedBytesTotal         *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	backoffSeconds             prometheus.Histogram
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		attemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemark_attempts_total",
				Help: "Pipeline attempts, labeled by result and the stage that failed (none on success).",
			},
			[]string{"result", "stage"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemark_items_total",
				Help: "Work items completed, labeled by terminal state.",
			},
			[]string{"state"},
		)

		renderedBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemark_rendered_bytes_total",
				Help: "Bytes of rendered markup captured, labeled by site.",
			},
			[]string{"site"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagemark_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		backoffSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagemark_backoff_seconds",
				Help:    "Histogram of backoff delays slept between attempts.",
				Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagemark_active_workers",
				Help: "Number of workers currently running an item pipeline.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagemark_http_requests_total",
				Help: "Total number of requests to the status endpoint, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagemark_http_request_duration_seconds",
				Help:    "Histogram of status endpoint latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAttempt counts one pipeline attempt. stage is the failing stage, or
// empty when the attempt succeeded.
func ObserveAttempt(succeeded bool, stage string) {
	Init()
	result := "failure"
	if succeeded {
		result = "success"
	}
	if stage == "" {
		stage = "none"
	}
	attemptsTotal.WithLabelValues(result, stage).Inc()
}

// ObserveItem counts a completed work item by terminal state.
func ObserveItem(state string) {
	Init()
	itemsTotal.WithLabelValues(state).Inc()
}

// ObserveRender records the size of a rendered page.
func ObserveRender(rawURL string, bytes int) {
	Init()
	if bytes > 0 {
		renderedBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytes))
	}
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, d time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveBackoff records a backoff sleep.
func ObserveBackoff(d time.Duration) {
	Init()
	backoffSeconds.Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
