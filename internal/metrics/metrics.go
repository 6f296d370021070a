// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go-auth-server/internal/event"
)

type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	HTTPInFlight     prometheus.Gauge
	TokensIssued     *prometheus.CounterVec
	AuthFailures     *prometheus.CounterVec
	ThrottledTotal   *prometheus.CounterVec
	SecurityEvents   *prometheus.CounterVec
	LocalRateLimited prometheus.Counter
}

// New registers every collector with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		}),
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Token endpoint grants that issued tokens",
		}, []string{"grant_type"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_authentication_failures_total",
			Help: "Rejected credentials by scheme and error code",
		}, []string{"scheme", "code"}),
		ThrottledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_throttled_requests_total",
			Help: "Requests rejected by the sliding-window throttle",
		}, []string{"scope"}),
		SecurityEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_security_events_total",
			Help: "Security events published on the event bus",
		}, []string{"type"}),
		LocalRateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "auth_local_rate_limited_total",
			Help: "Requests rejected by the per-process limiter on /oauth routes",
		}),
	}
}

// CountEvents increments SecurityEvents for every event until events is closed or ctx ends.
func (m *Metrics) CountEvents(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			m.SecurityEvents.WithLabelValues(string(evt.Type)).Inc()
		}
	}
}
