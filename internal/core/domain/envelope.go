package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Protocol constants for the device WebSocket API.
const (
	ProtocolVersion = 2
	ClientID        = 1

	TypeRequest  = "request"
	TypeResponse = "response"

	// CodeOK is the result code of a successful response.
	CodeOK = 0

	// CodeUnknown stands in for a missing or non-numeric result code.
	CodeUnknown = -1
)

// ActionGetProtocolVersions asks the device which protocol versions it speaks.
const ActionGetProtocolVersions = "get_protocol_versions"

// Request is the outbound request envelope.
type Request struct {
	Version   int    `json:"version"`
	Type      string `json:"type"`
	ClientID  int    `json:"client_id"`
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Token     string `json:"token"`
	NodeID    string `json:"node_id,omitempty"`
	Args      any    `json:"args,omitempty"`
}

// NewRequest builds a version 2 request envelope.
// NodeID and Args are omitted from the wire form when empty.
func NewRequest(requestID, action, tok, nodeID string, args any) *Request {
	return &Request{
		Version:   ProtocolVersion,
		Type:      TypeRequest,
		ClientID:  ClientID,
		RequestID: requestID,
		Action:    action,
		Token:     tok,
		NodeID:    nodeID,
		Args:      args,
	}
}

// Response is the inbound response envelope.
//
// Devices report the correlating id either at the top level or inside an
// echoed copy of the request; both are kept.
type Response struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Request   *EchoedRequest  `json:"request,omitempty"`
	Code      int             `json:"code"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	// foreignID is set when the top-level request_id is present but not a
	// string. Such an id matches nothing and hides the echoed one.
	foreignID bool
}

// EchoedRequest is the subset of the request a device may echo back.
type EchoedRequest struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action,omitempty"`
}

// CorrelationID returns the top-level request id, falling back to the
// echoed request's id when the top-level one is absent, null or empty.
// Empty means the id cannot be determined.
func (r *Response) CorrelationID() string {
	if r.RequestID != "" || r.foreignID {
		return r.RequestID
	}
	if r.Request != nil {
		return r.Request.RequestID
	}
	return ""
}

// Matches reports whether r is the response to the request with the given id.
func (r *Response) Matches(requestID string) bool {
	if r.Type != TypeResponse || requestID == "" {
		return false
	}
	return r.CorrelationID() == requestID
}

// OK reports whether the result code signals success.
func (r *Response) OK() bool {
	return r.Code == CodeOK
}

// wireResponse defers typing of the loosely specified fields.
type wireResponse struct {
	Type      json.RawMessage `json:"type"`
	RequestID json.RawMessage `json:"request_id"`
	Request   json.RawMessage `json:"request"`
	Code      json.RawMessage `json:"code"`
	Message   json.RawMessage `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// ParseResponse decodes an inbound frame.
//
// Only frames that are not a JSON object fail. Fields of an unexpected type
// are treated as absent, so such a frame can never match a request.
func ParseResponse(data []byte) (*Response, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrMalformedMessage.WithCause(err)
	}

	resp := &Response{
		Type:      rawString(w.Type),
		RequestID: rawString(w.RequestID),
		Code:      rawCode(w.Code),
		Message:   rawText(w.Message),
		foreignID: nonStringID(w.RequestID),
	}

	if len(w.Data) > 0 && string(w.Data) != "null" {
		resp.Data = w.Data
	}

	if len(w.Request) > 0 && w.Request[0] == '{' {
		var echo struct {
			RequestID json.RawMessage `json:"request_id"`
			Action    json.RawMessage `json:"action"`
		}
		if err := json.Unmarshal(w.Request, &echo); err == nil {
			resp.Request = &EchoedRequest{
				RequestID: rawString(echo.RequestID),
				Action:    rawString(echo.Action),
			}
		}
	}

	return resp, nil
}

// nonStringID reports whether raw holds a request id that is neither a string
// nor null.
func nonStringID(raw json.RawMessage) bool {
	text := strings.TrimSpace(string(raw))
	return text != "" && text != "null" && text[0] != '"'
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// rawText renders any JSON scalar as text, for human-facing messages.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if s := rawString(raw); s != "" || string(raw) == `""` {
		return s
	}
	return string(raw)
}

// rawCode accepts a JSON number or a numeric string. Null, a blank string
// and false read as 0 and true as 1; a missing code is CodeUnknown.
func rawCode(raw json.RawMessage) int {
	text := strings.TrimSpace(string(raw))
	switch text {
	case "":
		return CodeUnknown
	case "null", "false":
		return CodeOK
	case "true":
		return 1
	}
	if text[0] == '"' {
		s := strings.TrimSpace(rawString(raw))
		if s == "" {
			return CodeOK
		}
		text = s
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return CodeUnknown
	}
	return int(f)
}
