package deviceserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Actions answered by every emulator.
const (
	ActionGetProtocolVersions = "get_protocol_versions"
	ActionPing                = "ping"
	ActionEcho                = "echo"
)

// Result codes the emulator sends besides 0.
const (
	CodeMalformed    = 400
	CodeUnauthorized = 401
	CodeUnknown      = 404
	CodeRateLimited  = 429
	CodeInternal     = 500
)

// Request is an inbound request as the emulator sees it.
type Request struct {
	Version   int             `json:"version"`
	Type      string          `json:"type"`
	ClientID  int             `json:"client_id"`
	RequestID string          `json:"request_id"`
	Action    string          `json:"action"`
	Token     string          `json:"token"`
	NodeID    string          `json:"node_id,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// ActionFunc handles one action. The returned value becomes the
// response's data; an *ActionError sets its code.
type ActionFunc func(ctx context.Context, req *Request) (any, error)

// ActionError is a failure with a device result code.
type ActionError struct {
	Code    int
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

type pingData struct {
	Pong   bool   `json:"pong"`
	Time   int64  `json:"time"`
	NodeID string `json:"node_id,omitempty"`
}

func builtinActions(versions []int, now func() time.Time) map[string]ActionFunc {
	return map[string]ActionFunc{
		ActionGetProtocolVersions: func(context.Context, *Request) (any, error) {
			return versions, nil
		},
		ActionPing: func(_ context.Context, req *Request) (any, error) {
			return pingData{Pong: true, Time: now().Unix(), NodeID: req.NodeID}, nil
		},
		ActionEcho: func(_ context.Context, req *Request) (any, error) {
			if len(req.Args) == 0 {
				return nil, nil
			}
			return req.Args, nil
		},
	}
}
