package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Response is a decoded JSON-RPC response. Exactly one of Result and Error
// is expected to be set; when Error is present it wins, whatever the HTTP
// status of the reply was.
type Response struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a JSON-RPC response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Err returns the RPC error of the response, or nil on success.
func (r *Response) Err() error {
	if r.Error != nil {
		return r.Error
	}
	return nil
}

// DecodeResult unmarshals the result member into v. It returns the RPC
// error instead when the response carries one.
func (r *Response) DecodeResult(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return errors.New("jsonrpc: response has no result")
	}
	return json.Unmarshal(r.Result, v)
}

// IDString returns the response id as a string, unquoting it when the
// server echoed a JSON string.
func (r *Response) IDString() string {
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	return string(r.ID)
}
