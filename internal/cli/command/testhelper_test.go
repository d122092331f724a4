package command

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/sidus-go/internal/core/domain"
	"github.com/yndnr/sidus-go/pkg/token"
)

const testKey = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="

// deviceReply is what a mock action handler answers with.
type deviceReply struct {
	Code    int
	Message string
	Data    any
}

type deviceHandler func(req domain.Request) deviceReply

// mockDevice is a WebSocket device answering one request per connection.
type mockDevice struct {
	*httptest.Server
	t *testing.T

	mu       sync.Mutex
	handlers map[string]deviceHandler
	requests []domain.Request
}

func newMockDevice(t *testing.T) *mockDevice {
	t.Helper()
	m := &mockDevice{t: t, handlers: make(map[string]deviceHandler)}
	upgrader := websocket.Upgrader{}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req domain.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("device got malformed request: %v", err)
			return
		}

		m.mu.Lock()
		m.requests = append(m.requests, req)
		handler, ok := m.handlers[req.Action]
		m.mu.Unlock()

		reply := deviceReply{Code: 404, Message: "unknown action"}
		if ok {
			reply = handler(req)
		}
		if !validToken(req.Token) {
			reply = deviceReply{Code: 401, Message: "invalid token"}
		}

		resp := map[string]any{
			"type":       domain.TypeResponse,
			"request_id": req.RequestID,
			"code":       reply.Code,
			"message":    reply.Message,
		}
		if reply.Data != nil {
			resp["data"] = reply.Data
		}
		_ = conn.WriteJSON(resp)
	}))
	t.Cleanup(m.Close)
	return m
}

func validToken(tok string) bool {
	key, _ := token.DecodeKey(testKey)
	_, err := token.Open(key, tok)
	return err == nil
}

// handle registers a handler for action.
func (m *mockDevice) handle(action string, h deviceHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[action] = h
}

// reply registers a fixed successful answer for action.
func (m *mockDevice) reply(action string, data any) {
	m.handle(action, func(domain.Request) deviceReply {
		return deviceReply{Data: data}
	})
}

// URL returns the ws:// endpoint of the device.
func (m *mockDevice) URL() string {
	return "ws" + strings.TrimPrefix(m.Server.URL, "http")
}

// received returns the requests seen so far.
func (m *mockDevice) received() []domain.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Request(nil), m.requests...)
}

// cliResult is the captured outcome of one sidusctl invocation.
type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI runs sidusctl with --home set to home.
func runCLI(t *testing.T, home string, args ...string) cliResult {
	t.Helper()
	return runCLIWithInput(t, home, "", args...)
}

func runCLIWithInput(t *testing.T, home, stdin string, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer

	app := App()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"sidusctl", "--home", home}, args...)
	err := Run(context.Background(), app, full)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
