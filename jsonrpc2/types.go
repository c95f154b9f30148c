package jsonrpc2

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version tag carried by every message.
const Version = "2.0"

const (
	ErrCodeParse          = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeServer         = -32000
	ErrCodeRateLimited    = -32005
)

// Message is the wire envelope for both calls and replies. A call has a
// non-nil Request, a reply has a non-nil Response.
type Message struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Version string          `json:"jsonrpc"`
	*Request
	*Response
}

// String returns the JSON encoding of the message, or a placeholder if it
// fails to encode.
func (m *Message) String() string {
	out, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("<invalid message: %s>", err)
	}
	return string(out)
}

// IsCall returns true if the message carries a method name.
func (m *Message) IsCall() bool {
	return m.Request != nil
}

// wireMessage is the flat decoding of a Message. Method is a pointer so that
// an absent method key can be told apart from an empty one.
type wireMessage struct {
	ID      json.RawMessage `json:"id"`
	Version string          `json:"jsonrpc"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrResponse    `json:"error"`
}

// UnmarshalJSON sets Request only when the method key is present, and
// Response only when a result or error is present.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{ID: w.ID, Version: w.Version}
	if w.Method != nil {
		m.Request = &Request{Method: *w.Method, Params: w.Params}
	}
	if w.Result != nil || w.Error != nil {
		m.Response = &Response{Result: w.Result, Error: w.Error}
	}
	return nil
}

// Request is the call portion of a Message.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the reply portion of a Message. Exactly one of Result or Error
// is set.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrResponse    `json:"error,omitempty"`
}

// UnmarshalResult decodes the result into v. A missing or null result is not
// an error, and v is left untouched.
func (resp *Response) UnmarshalResult(v interface{}) error {
	if resp.Error != nil {
		return resp.Error
	}
	if v == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	return json.Unmarshal(resp.Result, v)
}

// ErrorCoder is implemented by errors that carry their own JSONRPC error
// code. Handlers can return one to control the code of the error reply.
type ErrorCoder interface {
	error
	ErrorCode() int
}

var _ ErrorCoder = &ErrResponse{}

// ErrResponse is the error portion of a reply.
type ErrResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (err *ErrResponse) Error() string {
	return fmt.Sprintf("%d: %s", err.Code, err.Message)
}

func (err *ErrResponse) ErrorCode() int {
	return err.Code
}

// errResponse converts any error into an ErrResponse suitable for the wire.
func errResponse(err error) *ErrResponse {
	switch e := err.(type) {
	case *ErrResponse:
		return e
	case ErrorCoder:
		return &ErrResponse{Code: e.ErrorCode(), Message: e.Error()}
	}
	return &ErrResponse{Code: ErrCodeInternal, Message: err.Error()}
}
