package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
)

// AuthRecorder receives one event per session operation.
type AuthRecorder interface {
	RecordAuth(operation, outcome string)
}

// HTTPRecorder receives one observation per served request.
type HTTPRecorder interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

type Collector struct {
	authEvents   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parchment_auth_events_total",
			Help: "Session operations by outcome.",
		}, []string{"operation", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parchment_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parchment_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(c.authEvents, c.httpRequests, c.httpDuration)
	return c
}

func (c *Collector) RecordAuth(operation, outcome string) {
	c.authEvents.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used where metrics are not wired, such as tests.
type Nop struct{}

func (Nop) RecordAuth(string, string)                      {}
func (Nop) ObserveHTTP(string, string, int, time.Duration) {}
