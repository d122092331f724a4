// Package main provides the entry point for sidus-emulator.
//
// The emulator stands in for a Sidus device: it authenticates the
// per-second tokens clients send, answers get_protocol_versions, ping and
// echo, and serves Prometheus metrics on /metrics.
//
// Usage:
//
//	sidus-emulator -secret-key <base64>
//	sidus-emulator -config /path/to/emulator.yaml
//	sidus-emulator -generate-key
//
// Settings can also come from SIDUS_EMULATOR_* environment variables,
// e.g. SIDUS_EMULATOR_DEVICE__MAX_SKEW=10s.
package main
