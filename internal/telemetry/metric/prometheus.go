// Package metric provides Prometheus metrics for sidus-go.
package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sidus"

// Request outcomes used as the "outcome" label.
const (
	OutcomeOK              = "ok"
	OutcomeProtocolError   = "protocol_error"
	OutcomeTimeout         = "timeout"
	OutcomeConnectionError = "connection_error"
	OutcomeConfigError     = "config_error"
	OutcomeError           = "error"
)

// Registry holds all application metrics on a private Prometheus registry.
// All methods are safe on a nil *Registry, which records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Client metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TokensDerived   prometheus.Counter
	TokenWait       prometheus.Histogram
	FramesIgnored   prometheus.Counter

	// Emulator metrics
	DeviceConnections  prometheus.Gauge
	DeviceRequests     *prometheus.CounterVec
	DeviceTokenRejects *prometheus.CounterVec
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler serves the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus all sidus metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Device requests sent, by action and outcome",
		}, []string{"action", "outcome"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from dial to final result, by action",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 8},
		}, []string{"action"}),

		TokensDerived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "derived_total",
			Help:      "Tokens derived",
		}),

		TokenWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "derive_duration_seconds",
			Help:      "Time spent deriving a token, including rate-limit waits",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.25, 0.5, 0.75, 1, 1.5},
		}),

		FramesIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_ignored_total",
			Help:      "Inbound frames dropped while waiting for a response",
		}),

		DeviceConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "emulator",
			Name:      "connections_active",
			Help:      "Open emulator connections",
		}),

		DeviceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emulator",
			Name:      "requests_total",
			Help:      "Requests answered by the emulator, by action and result code",
		}, []string{"action", "code"}),

		DeviceTokenRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emulator",
			Name:      "token_rejects_total",
			Help:      "Tokens rejected by the emulator, by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RequestsTotal,
		r.RequestDuration,
		r.TokensDerived,
		r.TokenWait,
		r.FramesIgnored,
		r.DeviceConnections,
		r.DeviceRequests,
		r.DeviceTokenRejects,
	)

	return r
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// MustRegister adds extra collectors, such as a status Collector.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.registry.MustRegister(cs...)
}

// RecordRequest counts one finished request and its duration.
func (r *Registry) RecordRequest(action, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(action, outcome).Inc()
	r.RequestDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RecordDerive counts one derived token and the time it took.
func (r *Registry) RecordDerive(d time.Duration) {
	if r == nil {
		return
	}
	r.TokensDerived.Inc()
	r.TokenWait.Observe(d.Seconds())
}

// IncFramesIgnored counts one inbound frame that did not match.
func (r *Registry) IncFramesIgnored() {
	if r == nil {
		return
	}
	r.FramesIgnored.Inc()
}

// IncDeviceConnections and DecDeviceConnections track emulator sessions.
func (r *Registry) IncDeviceConnections() {
	if r == nil {
		return
	}
	r.DeviceConnections.Inc()
}

func (r *Registry) DecDeviceConnections() {
	if r == nil {
		return
	}
	r.DeviceConnections.Dec()
}

// RecordDeviceRequest counts one emulator reply.
func (r *Registry) RecordDeviceRequest(action, code string) {
	if r == nil {
		return
	}
	r.DeviceRequests.WithLabelValues(action, code).Inc()
}

// RecordTokenReject counts one token the emulator refused.
func (r *Registry) RecordTokenReject(reason string) {
	if r == nil {
		return
	}
	r.DeviceTokenRejects.WithLabelValues(reason).Inc()
}
