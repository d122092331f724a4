package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StatusSource reports device reachability as seen by the monitor.
type StatusSource interface {
	Reachable() bool
	LastSuccess() time.Time
	ConsecutiveFailures() int
}

// Collector exports a StatusSource at scrape time.
type Collector struct {
	source StatusSource

	up          *prometheus.Desc
	lastSuccess *prometheus.Desc
	failures    *prometheus.Desc
}

// NewCollector creates a collector for the given source.
func NewCollector(source StatusSource) *Collector {
	return &Collector{
		source: source,
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "up"),
			"Whether the last probe reached the device (1) or not (0)",
			nil, nil,
		),
		lastSuccess: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "last_success_timestamp_seconds"),
			"Unix time of the last successful probe",
			nil, nil,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "device", "consecutive_failures"),
			"Probes failed since the last success",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.lastSuccess
	ch <- c.failures
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	up := 0.0
	if c.source.Reachable() {
		up = 1
	}

	var last float64
	if ts := c.source.LastSuccess(); !ts.IsZero() {
		last = float64(ts.UnixNano()) / 1e9
	}

	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up)
	ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue, last)
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(c.source.ConsecutiveFailures()))
}
