package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/sidus-go/internal/core/domain"
)

// Default transport limits.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadLimit        = 1 << 20
)

// Conn is one message-oriented device connection.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens device connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WSDialer dials ws:// and wss:// endpoints with gorilla/websocket.
type WSDialer struct {
	dialer    *websocket.Dialer
	readLimit int64
	header    http.Header
}

// DialerOption configures a WSDialer.
type DialerOption func(*WSDialer)

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) DialerOption {
	return func(w *WSDialer) {
		w.dialer.HandshakeTimeout = d
	}
}

// WithTLSConfig sets the TLS config used for wss:// endpoints.
func WithTLSConfig(cfg *tls.Config) DialerOption {
	return func(w *WSDialer) {
		w.dialer.TLSClientConfig = cfg
	}
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(n int64) DialerOption {
	return func(w *WSDialer) {
		w.readLimit = n
	}
}

// WithUserAgent sets the User-Agent sent with the handshake.
func WithUserAgent(ua string) DialerOption {
	return func(w *WSDialer) {
		if w.header == nil {
			w.header = make(http.Header)
		}
		w.header.Set("User-Agent", ua)
	}
}

// NewDialer creates a WSDialer.
func NewDialer(opts ...DialerOption) *WSDialer {
	w := &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		readLimit: DefaultReadLimit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dial opens a connection and waits for the handshake to finish.
// Failures are reported as domain.ErrConnection.
func (w *WSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}

	conn, resp, err := w.dialer.DialContext(ctx, endpoint, w.header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, domain.ErrConnection.
				WithDetails(fmt.Sprintf("websocket dial failed: status=%d", resp.StatusCode)).
				WithCause(err)
		}
		return nil, domain.ErrConnection.WithDetails(endpoint).WithCause(err)
	}

	if w.readLimit > 0 {
		conn.SetReadLimit(w.readLimit)
	}
	return conn, nil
}

// ValidateEndpoint checks that endpoint is an absolute ws:// or wss:// URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return domain.ErrInvalidEndpoint.WithDetails(endpoint).WithCause(err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return domain.ErrInvalidEndpoint.WithDetails(fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return domain.ErrInvalidEndpoint.WithDetails("missing host")
	}
	return nil
}
