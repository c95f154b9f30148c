package jsonrpc2

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMessageFormat(t *testing.T) {
	msg := &Message{
		ID:      []byte("42"),
		Version: "2.0",
	}

	got, want := msg.String(), `{"id":42,"jsonrpc":"2.0"}`
	if got != want {
		t.Errorf("wrong message string formatting:\n  got: %s;\n want: %s", got, want)
	}
}

func TestMessageClassify(t *testing.T) {
	var call Message
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"a","method":"echo","params":["x"]}`), &call); err != nil {
		t.Fatal(err)
	}
	if !call.IsCall() || call.Method != "echo" {
		t.Errorf("expected a call to echo: %s", &call)
	}
	if call.Response != nil {
		t.Errorf("call should not carry a response: %s", &call)
	}

	var reply Message
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"a","result":"x"}`), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.IsCall() {
		t.Errorf("expected a reply: %s", &reply)
	}
	var got string
	if err := reply.Response.UnmarshalResult(&got); err != nil {
		t.Fatal(err)
	}
	if got != "x" {
		t.Errorf("got: %q; want %q", got, "x")
	}

	// Params without a method do not make a call.
	var stray Message
	if err := json.Unmarshal([]byte(`{"id":"x","params":[],"result":1}`), &stray); err != nil {
		t.Fatal(err)
	}
	if stray.IsCall() {
		t.Errorf("message without method classified as a call: %s", &stray)
	}
	if stray.Response == nil || string(stray.Result) != "1" {
		t.Errorf("expected a reply with result 1: %s", &stray)
	}
}

func TestErrResponse(t *testing.T) {
	var coded ErrorCoder = &ErrResponse{Code: 7, Message: "seven"}
	if got := errResponse(coded); got.Code != 7 || got.Message != "seven" {
		t.Errorf("coded error not passed through: %v", got)
	}
	if got := errResponse(errors.New("plain")); got.Code != ErrCodeInternal || got.Message != "plain" {
		t.Errorf("plain error not converted: %v", got)
	}
	if got, want := coded.Error(), "7: seven"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}
