package jsonrpc2

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ParamsKind tags which shape a Params value holds.
type ParamsKind int

const (
	NoParams ParamsKind = iota
	PositionalParams
	NamedParams
)

func (k ParamsKind) String() string {
	switch k {
	case PositionalParams:
		return "positional"
	case NamedParams:
		return "named"
	}
	return "none"
}

// Params holds the arguments of a call: either an ordered list of positional
// arguments, or a single named-argument object.
type Params struct {
	Kind       ParamsKind
	Positional []json.RawMessage
	Named      json.RawMessage
}

// Positional encodes args as positional params.
func Positional(args ...interface{}) (Params, error) {
	p := Params{
		Kind:       PositionalParams,
		Positional: make([]json.RawMessage, 0, len(args)),
	}
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return Params{}, fmt.Errorf("failed to encode param %d: %s", i, err)
		}
		p.Positional = append(p.Positional, raw)
	}
	return p, nil
}

// Named encodes v, which must encode to a JSON object, as named params.
func Named(v interface{}) (Params, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Params{}, fmt.Errorf("failed to encode named params: %s", err)
	}
	if firstByte(raw) != '{' {
		return Params{}, errors.New("named params must encode to a JSON object")
	}
	return Params{Kind: NamedParams, Named: raw}, nil
}

// DecodeParams classifies the raw params of a call.
func DecodeParams(raw json.RawMessage) (Params, error) {
	switch firstByte(raw) {
	case 0:
		return Params{}, nil
	case '[':
		var args []json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			return Params{}, err
		}
		return Params{Kind: PositionalParams, Positional: args}, nil
	case '{':
		return Params{Kind: NamedParams, Named: raw}, nil
	case 'n':
		if string(trimSpace(raw)) == "null" {
			return Params{}, nil
		}
	}
	return Params{}, fmt.Errorf("params must be an array or an object: %s", raw)
}

// Len returns the number of arguments carried.
func (p Params) Len() int {
	switch p.Kind {
	case PositionalParams:
		return len(p.Positional)
	case NamedParams:
		return 1
	}
	return 0
}

func (p Params) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PositionalParams:
		if p.Positional == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(p.Positional)
	case NamedParams:
		return p.Named, nil
	}
	return []byte("null"), nil
}

// firstByte returns the first non-space byte of a JSON value, or 0 if there
// is none.
func firstByte(raw []byte) byte {
	for _, b := range raw {
		if isSpace(b) {
			continue
		}
		return b
	}
	return 0
}

func trimSpace(raw []byte) []byte {
	for len(raw) > 0 && isSpace(raw[0]) {
		raw = raw[1:]
	}
	for len(raw) > 0 && isSpace(raw[len(raw)-1]) {
		raw = raw[:len(raw)-1]
	}
	return raw
}

// isSpace returns true if the byte is considered a space in JSON syntax.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
