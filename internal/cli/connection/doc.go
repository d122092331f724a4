// Package connection provides device connection management for sidusctl.
//
//   - manager.go: the active device profile, swapped on configuration updates
//   - websocket.go: ws:// and wss:// dialing via gorilla/websocket
//
// A connection is opened per request and never shared.
package connection
