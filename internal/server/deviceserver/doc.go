// Package deviceserver implements sidus-emulator, a stand-in for a Sidus
// device.
//
// The emulator speaks the device WebSocket protocol: every request must
// carry a token that opens under the configured key, whose second is
// within device.max_skew of the emulator clock and has not been accepted
// before. Requests on one connection are rate limited with a token
// bucket. Besides the built-in actions get_protocol_versions, ping and
// echo, handlers can be added with WithAction.
//
// Result codes: 0 success, 400 malformed request, 401 bad token,
// 404 unknown action, 429 rate limited, 500 handler failure.
package deviceserver
