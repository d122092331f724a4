// Package tlsroots provides TLS configuration for sidus-go.
//
//   - roots.go: trust pools and the client config used for wss:// devices
//   - reloader.go: server certificate hot-reload via fsnotify, used by the
//     emulator when it listens with TLS
package tlsroots
