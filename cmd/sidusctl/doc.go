// Package main provides the entry point for sidusctl.
//
// sidusctl talks to Sidus lighting devices over their WebSocket API:
//
//   - call any device action with JSON arguments
//   - check reachability and protocol versions (ping)
//   - derive, open and generate tokens and keys
//   - monitor a device and export Prometheus metrics
//   - manage saved device profiles and the client configuration
//
// Usage:
//
//	sidusctl profile add studio --url ws://10.0.0.5:12345 --key <base64>
//	sidusctl ping
//	sidusctl call set_light --arg channel=1 --arg intensity=80
//	sidusctl shell
//
// Exit status is 0 on success, 2 for configuration errors, 3 when the
// device cannot be reached, 4 on timeout, 5 when the device returns an
// error code and 1 otherwise.
package main
