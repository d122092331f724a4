// Package domain defines the wire envelopes and error catalogue for sidus-go.
//
// This package contains:
//
//   - envelope.go: request/response envelopes and the response matching rule
//   - errors.go: coded DomainError values and ProtocolError
//
// Error codes follow SIDUS-<AREA>-<NNNN>:
//
//   - CONF: configuration (secret key, endpoint)
//   - CONN: transport setup and loss
//   - REQ: request lifecycle (timeout, bad action)
//   - PROTO: device-reported failures and unreadable frames
package domain
