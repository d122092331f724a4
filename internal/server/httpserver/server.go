package httpserver

import (
	"net/http"
	"time"
)

// ReadHeaderTimeout bounds how long a client may take to send headers.
const ReadHeaderTimeout = 10 * time.Second

// New returns an http.Server for handler. Only header reads are bounded:
// WebSocket connections live past any whole-request timeout.
func New(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}
