package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// Request represents a JSON-RPC request (with an ID) or notification
// (without ID).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
	// Authorization is a non-standard top-level member some stdio clients
	// use to carry credentials.
	Authorization string `json:"authorization,omitempty"`
}

// IsNotification reports whether no response is expected.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// Response represents a JSON-RPC response. ID is always serialized; a nil ID
// becomes null as required for errors detected before the id is known.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful JSON-RPC response object.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error JSON-RPC response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          NewError(code, message, data),
		ID:             id,
	}
}

var (
	// ErrInvalidVersion is returned by ParseRequest for a missing or wrong
	// "jsonrpc" member.
	ErrInvalidVersion = errors.New("invalid JSON-RPC version")
	// ErrNotRequest is returned by ParseRequest for response objects.
	ErrNotRequest = errors.New("message is not a request")
)

// ParseRequest decodes and validates a single request or notification. A
// JSON syntax error is wrapped so callers can tell it apart (ErrorCodeParseError)
// from a structurally invalid request (ErrorCodeInvalidRequest).
func ParseRequest(data []byte) (*Request, error) {
	var raw struct {
		Request
		Result json.RawMessage `json:"result,omitempty"`
		Error  *Error          `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &SyntaxError{err: err}
	}
	if raw.JSONRPCVersion != ProtocolVersion {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrInvalidVersion, ProtocolVersion, raw.JSONRPCVersion)
	}
	if raw.Method == "" || len(raw.Result) > 0 || raw.Error != nil {
		return nil, ErrNotRequest
	}
	req := raw.Request
	return &req, nil
}

// SyntaxError wraps a JSON decoding failure.
type SyntaxError struct{ err error }

func (e *SyntaxError) Error() string { return "invalid JSON: " + e.err.Error() }
func (e *SyntaxError) Unwrap() error { return e.err }

// CodeFor maps a ParseRequest error to the code to answer with.
func CodeFor(err error) ErrorCode {
	var se *SyntaxError
	if errors.As(err, &se) {
		return ErrorCodeParseError
	}
	return ErrorCodeInvalidRequest
}
