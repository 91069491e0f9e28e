// Package metrics holds the Prometheus collectors for the portal.
//
// Collectors are registered on a private registry rather than the global
// default so tests can build as many Registries as they like.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Registry holds all Prometheus metrics for the portal. The helper methods
// are safe to call on a nil *Registry so services can run without metrics.
type Registry struct {
	reg *prometheus.Registry

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     *prometheus.CounterVec

	// Billing processor
	BillingRequestsTotal   *prometheus.CounterVec
	BillingRequestDuration *prometheus.HistogramVec
	WebhookEventsTotal     *prometheus.CounterVec

	// Identity
	LoginsTotal *prometheus.CounterVec
}

// New builds a Registry with the Go runtime and process collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed by route, method, and status code",
			},
			[]string{"route", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		RateLimitedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter, by scope",
			},
			[]string{"scope"},
		),

		BillingRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billing_requests_total",
				Help:      "Calls to the billing processor API by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		BillingRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "billing_request_duration_seconds",
				Help:      "Billing processor API latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		WebhookEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Billing webhook events by event type and outcome",
			},
			[]string{"event_type", "outcome"},
		),

		LoginsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login profile resolutions by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveBillingRequest(operation, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.BillingRequestsTotal.WithLabelValues(operation, outcome).Inc()
	r.BillingRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *Registry) WebhookEvent(eventType, outcome string) {
	if r == nil {
		return
	}
	r.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (r *Registry) Login(result string) {
	if r == nil {
		return
	}
	r.LoginsTotal.WithLabelValues(result).Inc()
}

func (r *Registry) RateLimited(scope string) {
	if r == nil {
		return
	}
	r.RateLimitedTotal.WithLabelValues(scope).Inc()
}
