// Package metrics provides Prometheus metrics collection for mesgate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mesgate"

// Collector holds all Prometheus metrics for mesgate.
type Collector struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Service call metrics
	ServiceCallsTotal   *prometheus.CounterVec
	ServiceCallDuration *prometheus.HistogramVec
	ValidationFailures  *prometheus.CounterVec

	// Portal metrics
	PortalErrors *prometheus.CounterVec

	// Entity metrics
	Entities prometheus.Gauge

	// Service document metrics
	DocumentReloads      prometheus.Counter
	DocumentReloadErrors prometheus.Counter
	DocumentLastReload   prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP API requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP API request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP API requests currently being processed",
			},
		),

		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of API token authentication failures",
			},
			[]string{"reason"},
		),

		ServiceCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_calls_total",
				Help:      "Total number of service calls by service and outcome",
			},
			[]string{"service", "status"},
		),
		ServiceCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "service_call_duration_seconds",
				Help:      "Service call duration in seconds, portal round trips included",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of service calls rejected by schema validation",
			},
			[]string{"service"},
		),

		PortalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "portal_errors_total",
				Help:      "Total number of failed portal operations",
			},
			[]string{"operation"},
		),

		Entities: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entities",
				Help:      "Number of entities currently tracked",
			},
		),

		DocumentReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "services_reloads_total",
				Help:      "Total number of successful service document reloads",
			},
		),
		DocumentReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "services_reload_errors_total",
				Help:      "Total number of rejected service document reloads",
			},
		),
		DocumentLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "services_last_reload_timestamp",
				Help:      "Unix timestamp of last successful service document reload",
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// CallCompleted records one finished service call.
func (c *Collector) CallCompleted(service, status string, d time.Duration) {
	c.ServiceCallsTotal.WithLabelValues(service, status).Inc()
	c.ServiceCallDuration.WithLabelValues(service).Observe(d.Seconds())
}

// ValidationFailed records a call rejected by validation.
func (c *Collector) ValidationFailed(service string) {
	c.ValidationFailures.WithLabelValues(service).Inc()
}

// PortalFailed records a failed portal operation.
func (c *Collector) PortalFailed(operation string) {
	c.PortalErrors.WithLabelValues(operation).Inc()
}

// EntitiesTracked sets the number of tracked entities.
func (c *Collector) EntitiesTracked(n int) {
	c.Entities.Set(float64(n))
}

// DocumentReloaded records a service document reload attempt.
func (c *Collector) DocumentReloaded(ok bool) {
	if !ok {
		c.DocumentReloadErrors.Inc()
		return
	}
	c.DocumentReloads.Inc()
	c.DocumentLastReload.SetToCurrentTime()
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(ok bool) {
	if !ok {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}
