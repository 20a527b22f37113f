package network

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records request lifecycle counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	retriesTotal     *prometheus.CounterVec
	authRefreshTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobox_requests_total",
				Help: "Total number of Box API exchanges",
			},
			[]string{"method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gobox_request_duration_seconds",
				Help:    "Duration of single Box API exchanges in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gobox_requests_in_flight",
				Help: "Number of dispatches currently in progress",
			},
			[]string{"method"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobox_retries_total",
				Help: "Total number of retried attempts",
			},
			[]string{"method", "reason"},
		),
		authRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobox_auth_refresh_total",
				Help: "Forced token refreshes after a 401",
			},
			[]string{"result"},
		),
	}
}

// RecordRequest status 0 means the exchange failed in transport.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
}

func (m *Metrics) RecordStart(method string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordEnd(method string) {
	if m == nil {
		return
	}
	m.requestsInFlight.WithLabelValues(method).Dec()
}

func (m *Metrics) RecordRetry(method, reason string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(method, reason).Inc()
}

func (m *Metrics) RecordAuthRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.authRefreshTotal.WithLabelValues(result).Inc()
}
