package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/sidus-go/internal/cli/connection"
	"github.com/yndnr/sidus-go/internal/core/domain"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/internal/telemetry/metric"
	"github.com/yndnr/sidus-go/pkg/token"
)

var testKey = bytes.Repeat([]byte{7}, token.KeySize)

// mockConn is an in-memory connection. Responders push frames into inbound
// when a request is written.
type mockConn struct {
	inbound chan []byte
	closed  chan struct{}

	closeOnce  sync.Once
	closeCount atomic.Int32

	mu       sync.Mutex
	requests []domain.Request

	writeErr  error
	readErr   error
	responder func(c *mockConn, req domain.Request)
}

func newMockConn(responder func(c *mockConn, req domain.Request)) *mockConn {
	return &mockConn{
		inbound:   make(chan []byte, 16),
		closed:    make(chan struct{}),
		responder: responder,
	}
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	if c.readErr != nil {
		return 0, nil, c.readErr
	}
	select {
	case msg := <-c.inbound:
		return websocket.TextMessage, msg, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *mockConn) WriteMessage(_ int, data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}

	var req domain.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.responder != nil {
		c.responder(c, req)
	}
	return nil
}

func (c *mockConn) Close() error {
	n := c.closeCount.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	if n > 1 {
		return errors.New("already closed")
	}
	return nil
}

func (c *mockConn) push(frame string) {
	c.inbound <- []byte(frame)
}

func (c *mockConn) sent() []domain.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Request(nil), c.requests...)
}

type mockDialer struct {
	conn      *mockConn
	err       error
	endpoints []string
}

func (d *mockDialer) Dial(_ context.Context, endpoint string) (connection.Conn, error) {
	d.endpoints = append(d.endpoints, endpoint)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type staticProfile connection.Profile

func (p staticProfile) Current() connection.Profile { return connection.Profile(p) }

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "debug", Output: io.Discard})
	if err != nil {
		t.Fatalf("logger.New() error = %v", err)
	}
	return l
}

func newTestDispatcher(t *testing.T, conn *mockConn, opts ...DispatcherOption) (*Dispatcher, *mockDialer, *token.Generator) {
	t.Helper()

	dialer := &mockDialer{conn: conn}
	gen := token.NewGenerator()
	profile := staticProfile{URL: "ws://device.test:12345", SecretKey: token.EncodeKey(testKey)}

	opts = append([]DispatcherOption{WithLogger(testLogger(t))}, opts...)
	return NewDispatcher(dialer, profile, gen, opts...), dialer, gen
}

func reply(id string, code int, data string) string {
	resp := map[string]any{"type": "response", "request_id": id, "code": code}
	if data != "" {
		resp["data"] = json.RawMessage(data)
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestSend_EchoSuccess(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(reply(req.RequestID, 0, `{"x":1}`))
	})
	d, dialer, _ := newTestDispatcher(t, conn)

	data, err := d.Send(context.Background(), "get_status", SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(data) != `{"x":1}` {
		t.Errorf("data = %s, want {\"x\":1}", data)
	}
	if got := conn.closeCount.Load(); got != 1 {
		t.Errorf("Close called %d times, want 1", got)
	}
	if len(dialer.endpoints) != 1 || dialer.endpoints[0] != "ws://device.test:12345" {
		t.Errorf("dialed %v", dialer.endpoints)
	}
}

func TestSend_RequestEnvelope(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(reply(req.RequestID, 0, `true`))
	})
	d, _, _ := newTestDispatcher(t, conn, WithRequestIDs(func() string { return "fixed-id" }))

	args := map[string]any{"channel": 2}
	if _, err := d.Send(context.Background(), "set_cct", SendOptions{NodeID: "node-9", Args: args}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := conn.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d requests, want 1", len(sent))
	}
	req := sent[0]

	if req.Version != 2 || req.Type != "request" || req.ClientID != 1 {
		t.Errorf("fixed fields = %+v", req)
	}
	if req.RequestID != "fixed-id" || req.Action != "set_cct" || req.NodeID != "node-9" {
		t.Errorf("variable fields = %+v", req)
	}
	if m, ok := req.Args.(map[string]any); !ok || m["channel"] != float64(2) {
		t.Errorf("args = %#v", req.Args)
	}

	second, err := token.Open(testKey, req.Token)
	if err != nil {
		t.Fatalf("token.Open() error = %v", err)
	}
	if delta := time.Now().Unix() - second; delta < 0 || delta > 2 {
		t.Errorf("token second %d is %ds away from now", second, delta)
	}
}

func TestSend_DefaultRequestIDIsUUID(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(reply(req.RequestID, 0, ``))
	})
	d, _, _ := newTestDispatcher(t, conn)

	if _, err := d.Send(context.Background(), "ping", SendOptions{}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id := conn.sent()[0].RequestID; len(id) != 36 {
		t.Errorf("request id %q is not a UUID", id)
	}
}

func TestSend_ProfileNodeFallback(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(reply(req.RequestID, 0, ``))
	})
	dialer := &mockDialer{conn: conn}
	profile := staticProfile{SecretKey: token.EncodeKey(testKey), NodeID: "default-node"}
	d := NewDispatcher(dialer, profile, token.NewGenerator(), WithLogger(testLogger(t)))

	if _, err := d.Send(context.Background(), "ping", SendOptions{}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := conn.sent()[0].NodeID; got != "default-node" {
		t.Errorf("node_id = %q, want profile default", got)
	}
	if dialer.endpoints[0] != connection.DefaultEndpoint {
		t.Errorf("dialed %q, want default endpoint", dialer.endpoints[0])
	}
}

func TestSend_IgnoresMalformedFrames(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push("this is not json")
		c.push(`[1,2,3]`)
		c.push(reply(req.RequestID, 0, `{"ok":true}`))
	})
	d, _, _ := newTestDispatcher(t, conn)

	data, err := d.Send(context.Background(), "ping", SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("data = %s", data)
	}
}

func TestSend_NestedRequestID(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(`{"type":"response","request":{"request_id":"` + req.RequestID + `"},"code":0,"data":[2]}`)
	})
	d, _, _ := newTestDispatcher(t, conn)

	data, err := d.Send(context.Background(), domain.ActionGetProtocolVersions, SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(data) != `[2]` {
		t.Errorf("data = %s", data)
	}
}

func TestSend_ProtocolError(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(`{"type":"response","request_id":"` + req.RequestID + `","code":5,"message":"denied"}`)
	})
	d, _, _ := newTestDispatcher(t, conn)

	_, err := d.Send(context.Background(), "set_power", SendOptions{})

	var pe *domain.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("Send() error = %v, want *ProtocolError", err)
	}
	if pe.Code != 5 || pe.Message != "denied" || pe.Action != "set_power" {
		t.Errorf("ProtocolError = %+v", pe)
	}
	if conn.closeCount.Load() != 1 {
		t.Errorf("Close called %d times, want 1", conn.closeCount.Load())
	}
}

func TestSend_MissingCodeIsProtocolError(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(`{"type":"response","request_id":"` + req.RequestID + `","data":{}}`)
	})
	d, _, _ := newTestDispatcher(t, conn)

	if _, err := d.Send(context.Background(), "ping", SendOptions{}); !errors.Is(err, domain.ErrProtocol) {
		t.Errorf("Send() error = %v, want ErrProtocol", err)
	}
}

func TestSend_UnrelatedResponsesKeepWaiting(t *testing.T) {
	tests := []struct {
		name   string
		frames func(id string) []string
		wantOK bool
	}{
		{
			name: "only mismatches time out",
			frames: func(id string) []string {
				return []string{
					reply("someone-else", 0, `1`),
					`{"type":"response","request":{"request_id":"also-else"},"code":0}`,
					`{"type":"response","code":0}`,
					`{"type":"event","request_id":"` + id + `","code":0}`,
				}
			},
		},
		{
			name: "late match resolves",
			frames: func(id string) []string {
				return []string{
					reply("someone-else", 7, ``),
					`{"type":"response","request_id":"other","request":{"request_id":"` + id + `"},"code":0}`,
					reply(id, 0, `"mine"`),
				}
			},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newMockConn(func(c *mockConn, req domain.Request) {
				for _, f := range tt.frames(req.RequestID) {
					c.push(f)
				}
			})
			d, _, _ := newTestDispatcher(t, conn, WithTimeout(200*time.Millisecond))

			data, err := d.Send(context.Background(), "ping", SendOptions{})
			if tt.wantOK {
				if err != nil || string(data) != `"mine"` {
					t.Fatalf("Send() = %s, %v", data, err)
				}
				return
			}
			if !errors.Is(err, domain.ErrTimeout) {
				t.Fatalf("Send() error = %v, want ErrTimeout", err)
			}
		})
	}
}

func TestSend_TimeoutClosesOnce(t *testing.T) {
	conn := newMockConn(nil)
	d, _, _ := newTestDispatcher(t, conn, WithTimeout(150*time.Millisecond))

	start := time.Now()
	_, err := d.Send(context.Background(), "ping", SendOptions{})
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("Send() error = %v, want ErrTimeout", err)
	}
	if elapsed < 150*time.Millisecond || elapsed > time.Second {
		t.Errorf("timed out after %v, want about 150ms", elapsed)
	}
	if got := conn.closeCount.Load(); got != 1 {
		t.Errorf("Close called %d times, want 1", got)
	}
}

func TestSend_DefaultTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full default timeout")
	}

	conn := newMockConn(nil)
	d, _, _ := newTestDispatcher(t, conn)
	if d.Timeout() != 6000*time.Millisecond {
		t.Fatalf("Timeout() = %v, want 6s", d.Timeout())
	}

	start := time.Now()
	_, err := d.Send(context.Background(), "ping", SendOptions{})
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("Send() error = %v, want ErrTimeout", err)
	}
	if elapsed < 6000*time.Millisecond || elapsed > 6500*time.Millisecond {
		t.Errorf("timed out after %v, want 6000ms", elapsed)
	}
	if got := conn.closeCount.Load(); got != 1 {
		t.Errorf("Close called %d times, want 1", got)
	}
}

func TestSend_InvalidKey(t *testing.T) {
	for _, key := range []string{"", "c2hvcnQ=", "not base64 at all"} {
		conn := newMockConn(nil)
		dialer := &mockDialer{conn: conn}
		gen := token.NewGenerator()
		d := NewDispatcher(dialer, staticProfile{SecretKey: key}, gen, WithLogger(testLogger(t)))

		_, err := d.Send(context.Background(), "ping", SendOptions{})
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("key %q: Send() error = %v, want ErrConfiguration", key, err)
		}
		if gen.LastSecond() != -1 {
			t.Errorf("key %q: a token second was consumed", key)
		}
		if len(conn.sent()) != 0 {
			t.Errorf("key %q: request was written", key)
		}
		if conn.closeCount.Load() != 1 {
			t.Errorf("key %q: Close called %d times, want 1", key, conn.closeCount.Load())
		}
	}
}

func TestSend_DialFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *domain.DomainError
	}{
		{"domain error passes through", domain.ErrInvalidEndpoint.WithDetails("bad"), domain.ErrInvalidEndpoint},
		{"plain error is wrapped", errors.New("connection refused"), domain.ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := &mockDialer{err: tt.err}
			gen := token.NewGenerator()
			d := NewDispatcher(dialer, staticProfile{SecretKey: token.EncodeKey(testKey)}, gen, WithLogger(testLogger(t)))

			_, err := d.Send(context.Background(), "ping", SendOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Send() error = %v, want %v", err, tt.want)
			}
			if gen.LastSecond() != -1 {
				t.Error("token derived despite dial failure")
			}
		})
	}
}

func TestSend_ReadErrorIsConnectionLost(t *testing.T) {
	conn := newMockConn(nil)
	conn.readErr = errors.New("connection reset by peer")
	d, _, _ := newTestDispatcher(t, conn)

	_, err := d.Send(context.Background(), "ping", SendOptions{})
	if !errors.Is(err, domain.ErrConnectionLost) {
		t.Errorf("Send() error = %v, want ErrConnectionLost", err)
	}
	if conn.closeCount.Load() != 1 {
		t.Errorf("Close called %d times, want 1", conn.closeCount.Load())
	}
}

func TestSend_OversizeFrameIsConnectionLost(t *testing.T) {
	conn := newMockConn(nil)
	conn.readErr = websocket.ErrReadLimit
	d, _, _ := newTestDispatcher(t, conn)

	_, err := d.Send(context.Background(), "ping", SendOptions{})
	if !errors.Is(err, domain.ErrConnectionLost) || !errors.Is(err, websocket.ErrReadLimit) {
		t.Fatalf("Send() error = %v, want ErrConnectionLost caused by ErrReadLimit", err)
	}
	if !strings.Contains(err.Error(), "read limit") {
		t.Errorf("error %q does not name the read limit", err)
	}
}

func TestSend_NullCodeIsSuccess(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(`{"type":"response","request_id":"` + req.RequestID + `","code":null,"data":{"x":1}}`)
	})
	d, _, _ := newTestDispatcher(t, conn)

	data, err := d.Send(context.Background(), "ping", SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if string(data) != `{"x":1}` {
		t.Errorf("data = %s", data)
	}
}

func TestSend_NonStringTopLevelIDDoesNotFallBack(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(`{"type":"response","request_id":7,"request":{"request_id":"` + req.RequestID + `"},"code":0}`)
	})
	d, _, _ := newTestDispatcher(t, conn, WithTimeout(50*time.Millisecond))

	if _, err := d.Send(context.Background(), "ping", SendOptions{}); !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("Send() error = %v, want ErrTimeout", err)
	}
}

func TestSend_WriteError(t *testing.T) {
	conn := newMockConn(nil)
	conn.writeErr = errors.New("broken pipe")
	d, _, _ := newTestDispatcher(t, conn)

	_, err := d.Send(context.Background(), "ping", SendOptions{})
	if !errors.Is(err, domain.ErrConnectionLost) {
		t.Errorf("Send() error = %v, want ErrConnectionLost", err)
	}
	if conn.closeCount.Load() != 1 {
		t.Errorf("Close called %d times, want 1", conn.closeCount.Load())
	}
}

func TestSend_EmptyAction(t *testing.T) {
	conn := newMockConn(nil)
	d, dialer, _ := newTestDispatcher(t, conn)

	if _, err := d.Send(context.Background(), "", SendOptions{}); !errors.Is(err, domain.ErrInvalidAction) {
		t.Errorf("Send() error = %v, want ErrInvalidAction", err)
	}
	if len(dialer.endpoints) != 0 {
		t.Error("dialed for an empty action")
	}
}

func TestSend_ContextCanceled(t *testing.T) {
	conn := newMockConn(nil)
	d, _, _ := newTestDispatcher(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	if _, err := d.Send(ctx, "ping", SendOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
	if conn.closeCount.Load() != 1 {
		t.Errorf("Close called %d times, want 1", conn.closeCount.Load())
	}
}

func TestSend_ConcurrentCallsUseDistinctSeconds(t *testing.T) {
	gen := token.NewGenerator()
	profile := staticProfile{SecretKey: token.EncodeKey(testKey)}

	const n = 3
	conns := make([]*mockConn, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		conns[i] = newMockConn(func(c *mockConn, req domain.Request) {
			c.push(reply(req.RequestID, 0, ``))
		})
		d := NewDispatcher(&mockDialer{conn: conns[i]}, profile, gen, WithLogger(testLogger(t)))

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Send(context.Background(), "ping", SendOptions{})
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Send() #%d error = %v", i, errs[i])
		}
		second, err := token.Open(testKey, conns[i].sent()[0].Token)
		if err != nil {
			t.Fatalf("token.Open() error = %v", err)
		}
		if seen[second] {
			t.Errorf("token second %d used twice", second)
		}
		seen[second] = true
	}
}

func TestCall_Decodes(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push(reply(req.RequestID, 0, `{"versions":[1,2]}`))
	})
	d, _, _ := newTestDispatcher(t, conn)

	var out struct {
		Versions []int `json:"versions"`
	}
	if err := d.Call(context.Background(), "get_protocol_versions", SendOptions{}, &out); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(out.Versions) != 2 || out.Versions[1] != 2 {
		t.Errorf("decoded %+v", out)
	}
}

func TestSend_RecordsMetrics(t *testing.T) {
	conn := newMockConn(func(c *mockConn, req domain.Request) {
		c.push("garbage")
		c.push(reply(req.RequestID, 0, `1`))
	})
	reg := metric.NewRegistry()
	d, _, _ := newTestDispatcher(t, conn, WithMetrics(reg))

	if _, err := d.Send(context.Background(), "ping", SendOptions{}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues("ping", metric.OutcomeOK)); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(reg.FramesIgnored); got != 1 {
		t.Errorf("frames_ignored_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(reg.TokensDerived); got != 1 {
		t.Errorf("token_derived_total = %v, want 1", got)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, metric.OutcomeOK},
		{&domain.ProtocolError{Code: 1}, metric.OutcomeProtocolError},
		{domain.ErrTimeout.WithDetails("x"), metric.OutcomeTimeout},
		{domain.ErrConnection, metric.OutcomeConnectionError},
		{domain.ErrConnectionLost, metric.OutcomeConnectionError},
		{domain.ErrConfiguration, metric.OutcomeConfigError},
		{context.Canceled, metric.OutcomeError},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
