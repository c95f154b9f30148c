package jsonrpc2

import (
	"encoding/json"
	"errors"

	"github.com/vipnode/duplexrpc/internal/pretty"
)

// EncodeRequest returns the wire encoding of a call.
func EncodeRequest(id string, method string, params Params) ([]byte, error) {
	msg, err := newRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func newRequest(id string, method string, params Params) (*Message, error) {
	msg := &Message{
		Version: Version,
		Request: &Request{Method: method},
	}
	if id != "" {
		rawID, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		msg.ID = rawID
	}
	if params.Kind != NoParams {
		rawParams, err := params.MarshalJSON()
		if err != nil {
			return nil, err
		}
		msg.Request.Params = rawParams
	}
	return msg, nil
}

// EncodeReply returns the wire encoding of a reply to the call with the given
// id. If callErr is not nil, the reply is an error reply and result is
// ignored.
func EncodeReply(id json.RawMessage, result interface{}, callErr error) ([]byte, error) {
	return json.Marshal(newReply(id, result, callErr))
}

func newReply(id json.RawMessage, result interface{}, callErr error) *Message {
	msg := &Message{
		ID:       id,
		Version:  Version,
		Response: &Response{},
	}
	if callErr != nil {
		msg.Response.Error = errResponse(callErr)
		return msg
	}
	raw, err := json.Marshal(result)
	if err != nil {
		msg.Response.Error = &ErrResponse{
			Code:    ErrCodeServer,
			Message: "failed to encode response: " + err.Error(),
		}
		return msg
	}
	msg.Response.Result = raw
	return msg
}

// Payload is the decoded content of one inbound chunk.
type Payload struct {
	// Messages holds one entry for a single message, or every element of a
	// batch.
	Messages []Message
	// Batch is true if the chunk was a JSON array.
	Batch bool
}

var errEmptyBatch = errors.New("empty batch")

// Decode parses one inbound chunk. Malformed chunks are logged and reported
// as not ok; they are never fatal.
func Decode(chunk []byte) (Payload, bool) {
	payload, err := decode(chunk)
	if err != nil {
		logger.Debugf("dropping malformed chunk %s: %s", pretty.Abbrev(string(chunk), 64), err)
		return Payload{}, false
	}
	return payload, true
}

func decode(chunk []byte) (Payload, error) {
	if firstByte(chunk) == '[' {
		var batch []Message
		if err := json.Unmarshal(chunk, &batch); err != nil {
			return Payload{}, err
		}
		if len(batch) == 0 {
			return Payload{}, errEmptyBatch
		}
		return Payload{Messages: batch, Batch: true}, nil
	}
	var msg Message
	if err := json.Unmarshal(chunk, &msg); err != nil {
		return Payload{}, err
	}
	return Payload{Messages: []Message{msg}}, nil
}
