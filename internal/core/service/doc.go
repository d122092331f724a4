// Package service implements the request path to Sidus devices.
//
//   - dispatcher.go: one-connection-per-request send with token
//     derivation, response correlation and timeout
//   - status.go: device status tracking and periodic probing
package service
