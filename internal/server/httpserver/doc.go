// Package httpserver holds the HTTP plumbing shared by the emulator and
// the monitor endpoint: a middleware chain and an http.Server with sane
// timeouts.
//
// The chain used by both is:
//
//	RequestID -> AccessLog -> Recover -> handler
//
// Wrapped response writers keep http.Hijacker working so WebSocket
// upgrades pass through unchanged.
package httpserver
