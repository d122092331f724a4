package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yndnr/sidus-go/internal/cli/connection"
	"github.com/yndnr/sidus-go/internal/core/domain"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/internal/telemetry/metric"
	"github.com/yndnr/sidus-go/pkg/token"
)

// DefaultTimeout is how long Send waits for a matching response.
const DefaultTimeout = 6000 * time.Millisecond

// ProfileSource supplies the device profile. Send reads it once per call.
type ProfileSource interface {
	Current() connection.Profile
}

// SendOptions are the optional parts of a request.
type SendOptions struct {
	// NodeID targets a node behind the device. Empty falls back to the
	// profile's node, and if that is empty too, node_id is omitted.
	NodeID string

	// Args is marshaled as the request's "args" object. Nil omits it.
	Args any
}

// Dispatcher sends one request per connection and waits for its response.
// It is safe for concurrent use; calls share only the token generator.
type Dispatcher struct {
	dialer   connection.Dialer
	profiles ProfileSource
	tokens   *token.Generator

	timeout time.Duration
	newID   func() string
	logger  logger.Logger
	metrics *metric.Registry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(s *Dispatcher) {
		s.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) DispatcherOption {
	return func(s *Dispatcher) {
		s.logger = l
	}
}

// WithMetrics records request and token metrics into r.
func WithMetrics(r *metric.Registry) DispatcherOption {
	return func(s *Dispatcher) {
		s.metrics = r
	}
}

// WithRequestIDs replaces the UUID request id source.
func WithRequestIDs(fn func() string) DispatcherOption {
	return func(s *Dispatcher) {
		s.newID = fn
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(dialer connection.Dialer, profiles ProfileSource, tokens *token.Generator, opts ...DispatcherOption) *Dispatcher {
	s := &Dispatcher{
		dialer:   dialer,
		profiles: profiles,
		tokens:   tokens,
		timeout:  DefaultTimeout,
		newID:    uuid.NewString,
		logger:   logger.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the response timeout in effect.
func (s *Dispatcher) Timeout() time.Duration {
	return s.timeout
}

// Send performs action on the device and returns the response's data.
//
// The connection is closed on every return path. Errors are
// domain.ErrConfiguration, domain.ErrConnection, domain.ErrConnectionLost,
// domain.ErrTimeout or a *domain.ProtocolError, or ctx's error if ctx ends
// first.
func (s *Dispatcher) Send(ctx context.Context, action string, opts SendOptions) (json.RawMessage, error) {
	if action == "" {
		return nil, domain.ErrInvalidAction.WithDetails("action is empty")
	}

	start := time.Now()
	requestID := s.newID()
	ctx = logger.WithRequestID(logger.WithLogger(ctx, s.logger), requestID)
	log := logger.L(ctx).With("action", action)

	data, err := s.send(ctx, log, s.profiles.Current(), action, requestID, opts)

	elapsed := time.Since(start)
	s.metrics.RecordRequest(action, outcomeOf(err), elapsed)
	if err != nil {
		log.Debug("request failed", "error", err, "code", domain.GetErrorCode(err), "elapsed", elapsed)
	} else {
		log.Debug("request completed", "elapsed", elapsed)
	}
	return data, err
}

// Call is Send followed by unmarshaling the data into out.
// A nil out discards the data.
func (s *Dispatcher) Call(ctx context.Context, action string, opts SendOptions, out any) error {
	data, err := s.Send(ctx, action, opts)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", action, err)
	}
	return nil
}

// ProtocolVersions asks the device which protocol versions it supports.
func (s *Dispatcher) ProtocolVersions(ctx context.Context) (json.RawMessage, error) {
	return s.Send(ctx, domain.ActionGetProtocolVersions, SendOptions{})
}

func (s *Dispatcher) send(ctx context.Context, log logger.Logger, profile connection.Profile, action, requestID string, opts SendOptions) (json.RawMessage, error) {
	endpoint := profile.Endpoint()

	conn, err := s.dialer.Dial(ctx, endpoint)
	if err != nil {
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, domain.ErrConnection.WithDetails(endpoint).WithCause(err)
	}
	defer s.closeQuietly(log, conn)

	tok, err := s.derive(ctx, profile.SecretKey)
	if err != nil {
		return nil, err
	}

	nodeID := opts.NodeID
	if nodeID == "" {
		nodeID = profile.NodeID
	}

	payload, err := json.Marshal(domain.NewRequest(requestID, action, tok, nodeID, opts.Args))
	if err != nil {
		return nil, domain.ErrInvalidAction.WithDetails("args not encodable").WithCause(err)
	}

	// The receive loop is running before the request goes out, and the
	// timer covers the write as well as the wait.
	matched := make(chan *domain.Response, 1)
	readErr := make(chan error, 1)
	go s.receive(log, conn, requestID, matched, readErr)

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, domain.ErrConnectionLost.WithDetails("write request").WithCause(err)
	}
	log.Debug("request sent", "endpoint", endpoint)

	select {
	case resp := <-matched:
		if !resp.OK() {
			return nil, domain.NewProtocolError(action, resp)
		}
		return resp.Data, nil

	case err := <-readErr:
		if errors.Is(err, websocket.ErrReadLimit) {
			return nil, domain.ErrConnectionLost.WithDetails("inbound frame exceeds the read limit").WithCause(err)
		}
		return nil, domain.ErrConnectionLost.WithCause(err)

	case <-timer.C:
		return nil, domain.ErrTimeout.WithDetails(fmt.Sprintf("no response to %s within %s", action, s.timeout))

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Dispatcher) derive(ctx context.Context, secretKey string) (string, error) {
	key, err := token.DecodeKey(secretKey)
	if err != nil {
		return "", domain.ErrConfiguration.WithCause(err)
	}

	start := time.Now()
	tok, err := s.tokens.Derive(ctx, key)
	if err != nil {
		if errors.Is(err, token.ErrInvalidKey) {
			return "", domain.ErrConfiguration.WithCause(err)
		}
		return "", err
	}
	s.metrics.RecordDerive(time.Since(start))
	return tok, nil
}

// receive reads frames until one matches requestID or the connection fails.
// Unparseable and unrelated frames are dropped.
func (s *Dispatcher) receive(log logger.Logger, conn connection.Conn, requestID string, matched chan<- *domain.Response, readErr chan<- error) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}

		resp, err := domain.ParseResponse(msg)
		if err != nil {
			s.metrics.IncFramesIgnored()
			log.Debug("ignoring malformed frame", "error", err, "size", len(msg))
			continue
		}
		if !resp.Matches(requestID) {
			s.metrics.IncFramesIgnored()
			log.Debug("ignoring unrelated frame", "type", resp.Type, "correlation_id", resp.CorrelationID())
			continue
		}

		matched <- resp
		return
	}
}

func (s *Dispatcher) closeQuietly(log logger.Logger, conn connection.Conn) {
	if err := conn.Close(); err != nil {
		log.Debug("close failed", "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metric.OutcomeOK
	case errors.Is(err, domain.ErrProtocol):
		return metric.OutcomeProtocolError
	case errors.Is(err, domain.ErrTimeout):
		return metric.OutcomeTimeout
	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrConnectionLost):
		return metric.OutcomeConnectionError
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidEndpoint):
		return metric.OutcomeConfigError
	default:
		return metric.OutcomeError
	}
}
