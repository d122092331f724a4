package deviceserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/sidus-go/internal/core/domain"
	"github.com/yndnr/sidus-go/internal/server/config"
	"github.com/yndnr/sidus-go/internal/server/httpserver"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/internal/telemetry/metric"
	"github.com/yndnr/sidus-go/pkg/token"
)

const writeTimeout = 5 * time.Second

// Server emulates a Sidus device over WebSocket.
type Server struct {
	path      string
	readLimit int64
	limit     rate.Limit
	burst     int
	nested    bool

	verifier *Verifier
	actions  map[string]ActionFunc
	upgrader websocket.Upgrader

	logger    logger.Logger
	metrics   *metric.Registry
	tlsConfig *tls.Config

	replies atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	conns      map[*websocket.Conn]struct{}
	wg         sync.WaitGroup
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics records emulator metrics into r and serves it on /metrics.
func WithMetrics(r *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = r
	}
}

// WithTLSConfig makes Serve speak TLS.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

// WithAction adds or replaces an action handler.
func WithAction(name string, fn ActionFunc) Option {
	return func(s *Server) {
		s.actions[name] = fn
	}
}

// New creates a Server from a verified configuration.
func New(cfg *config.EmulatorConfig, opts ...Option) (*Server, error) {
	key, err := token.DecodeKey(cfg.Device.SecretKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		path:      cfg.Server.Path,
		readLimit: cfg.Server.ReadLimit,
		limit:     rate.Limit(cfg.Device.RateLimit),
		burst:     cfg.Device.Burst,
		nested:    cfg.Device.NestedIDs,
		verifier:  NewVerifier(key, cfg.Device.MaxSkew),
		actions:   builtinActions(cfg.Device.ProtocolVersions, time.Now),
		upgrader: websocket.Upgrader{
			// Devices accept any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.Default(),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "emulator")
	return s, nil
}

// Handler serves the device endpoint and, with metrics, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.Handle(s.path, s)
	return httpserver.Standard(mux, s.logger)
}

// ServeHTTP upgrades the request and answers requests on the connection
// until the peer leaves or the server shuts down.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.path != "/" && r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	connID := ulid.Make().String()
	ctx := logger.WithConnID(logger.WithLogger(s.ctx, s.logger), connID)
	log := logger.L(ctx)
	log.Info("client connected", "remote", r.RemoteAddr, "user_agent", r.UserAgent())
	defer log.Info("client disconnected")

	s.serveConn(ctx, log, conn)
}

func (s *Server) serveConn(ctx context.Context, log logger.Logger, conn *websocket.Conn) {
	conn.SetReadLimit(s.readLimit)
	limiter := rate.NewLimiter(s.limit, s.burst)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read failed", "error", err)
			}
			return
		}

		resp := s.handle(ctx, log, limiter, msg)
		if resp == nil {
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
	}
}

// handle answers one frame. Frames that are not requests get no answer.
func (s *Server) handle(ctx context.Context, log logger.Logger, limiter *rate.Limiter, msg []byte) *domain.Response {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		log.Warn("malformed request", "error", err, "size", len(msg))
		return s.reply(&req, "", CodeMalformed, "malformed request", nil)
	}
	if req.Type != domain.TypeRequest {
		log.Debug("ignoring frame", "type", req.Type)
		return nil
	}

	ctx = logger.WithRequestID(ctx, req.RequestID)
	log = logger.L(ctx).With("action", req.Action)
	label := req.Action
	if _, ok := s.actions[req.Action]; !ok {
		label = "unknown"
	}

	if req.Version != domain.ProtocolVersion {
		return s.reply(&req, label, CodeMalformed, "unsupported version "+strconv.Itoa(req.Version), nil)
	}
	if req.RequestID == "" || req.Action == "" {
		return s.reply(&req, label, CodeMalformed, "request_id and action are required", nil)
	}
	if !limiter.Allow() {
		log.Warn("rate limited")
		return s.reply(&req, label, CodeRateLimited, "rate limit exceeded", nil)
	}

	if _, err := s.verifier.Verify(req.Token); err != nil {
		reason := rejectReason(err)
		s.metrics.RecordTokenReject(reason)
		log.Warn("token rejected", "reason", reason, "error", err)
		return s.reply(&req, label, CodeUnauthorized, "invalid token", nil)
	}

	fn, ok := s.actions[req.Action]
	if !ok {
		return s.reply(&req, label, CodeUnknown, "unknown action: "+req.Action, nil)
	}

	result, err := fn(ctx, &req)
	if err != nil {
		var aerr *ActionError
		if errors.As(err, &aerr) {
			return s.reply(&req, label, aerr.Code, aerr.Message, nil)
		}
		log.Error("action failed", "error", err)
		return s.reply(&req, label, CodeInternal, err.Error(), nil)
	}

	data, err := marshalData(result)
	if err != nil {
		log.Error("encode result", "error", err)
		return s.reply(&req, label, CodeInternal, "result not encodable", nil)
	}
	log.Debug("request answered", "node_id", req.NodeID)
	return s.reply(&req, label, domain.CodeOK, "", data)
}

// reply builds a response. With nested ids, every other response carries
// the id in an echoed request object.
func (s *Server) reply(req *Request, label string, code int, message string, data json.RawMessage) *domain.Response {
	if label != "" {
		s.metrics.RecordDeviceRequest(label, strconv.Itoa(code))
	}

	resp := &domain.Response{
		Type:    domain.TypeResponse,
		Code:    code,
		Message: message,
		Data:    data,
	}
	if s.nested && s.replies.Add(1)%2 == 0 {
		resp.Request = &domain.EchoedRequest{RequestID: req.RequestID, Action: req.Action}
	} else {
		resp.RequestID = req.RequestID
	}
	return resp
}

func marshalData(v any) (json.RawMessage, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return d, nil
	}
	return json.Marshal(v)
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.metrics.IncDeviceConnections()
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
	s.metrics.DecDeviceConnections()
	s.wg.Done()
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := httpserver.New(s.Handler())
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	return srv.Serve(ln)
}

// Shutdown stops accepting connections, closes open ones with a going-away
// frame and waits for their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	srv := s.httpServer
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}
