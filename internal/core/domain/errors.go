package domain

import (
	"errors"
	"fmt"
)

// DomainError represents an error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "SIDUS-REQ-5040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another DomainError by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return ErrProtocol.Code
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Configuration Errors (CONF)
// ============================================================================

var (
	// ErrConfiguration indicates the secret key does not decode to 32 bytes.
	ErrConfiguration = NewDomainError("SIDUS-CONF-4000", "invalid API secret key (base64, 32 bytes)")

	// ErrInvalidEndpoint indicates the device URL is not a ws:// or wss:// URL.
	ErrInvalidEndpoint = NewDomainError("SIDUS-CONF-4001", "invalid device endpoint")
)

// ============================================================================
// Connection Errors (CONN)
// ============================================================================

var (
	// ErrConnection indicates the transport could not be established.
	ErrConnection = NewDomainError("SIDUS-CONN-5030", "connection failed")

	// ErrConnectionLost indicates the transport failed after it was established.
	ErrConnectionLost = NewDomainError("SIDUS-CONN-5031", "connection lost")
)

// ============================================================================
// Request Errors (REQ)
// ============================================================================

var (
	// ErrTimeout indicates no matching response arrived in time.
	ErrTimeout = NewDomainError("SIDUS-REQ-5040", "Timeout")

	// ErrInvalidAction indicates an empty or unusable action name.
	ErrInvalidAction = NewDomainError("SIDUS-REQ-4000", "invalid action")
)

// ============================================================================
// Protocol Errors (PROTO)
// ============================================================================

var (
	// ErrProtocol is matched by every ProtocolError via errors.Is.
	ErrProtocol = NewDomainError("SIDUS-PROTO-5020", "device returned an error")

	// ErrMalformedMessage marks an inbound frame that is not a JSON object.
	// The dispatcher drops such frames; callers never see this error.
	ErrMalformedMessage = NewDomainError("SIDUS-PROTO-4000", "malformed message")
)

// ProtocolError is a matching response that carried a non-zero result code.
type ProtocolError struct {
	Action  string
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("API error on '%s': %d %s", e.Action, e.Code, e.Message)
}

// Is makes errors.Is(err, ErrProtocol) hold.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == ErrProtocol.Code
}

// NewProtocolError builds a ProtocolError from a response.
func NewProtocolError(action string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Action:  action,
		Code:    resp.Code,
		Message: resp.Message,
	}
}
