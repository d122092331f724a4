// Package metric provides Prometheus metrics for sidus-go.
//
//   - prometheus.go: registry, request/token/emulator metrics, HTTP handler
//   - collector.go: scrape-time device status from the monitor
//
// Metrics are exposed at /metrics in Prometheus format by
// "sidusctl monitor" and by sidus-emulator.
package metric
