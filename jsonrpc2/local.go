package jsonrpc2

import (
	"context"
	"encoding/json"
)

var _ Service = &Local{}

// Local is a Service implementation for a local Registry. It's like a Remote,
// but without a Transport: calls are encoded, answered and decoded in
// process.
type Local struct {
	Registry *Registry
	Counter
}

func (loc *Local) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p, err := Positional(params...)
	if err != nil {
		return err
	}
	chunk, err := EncodeRequest(loc.NextID(), method, p)
	if err != nil {
		return err
	}
	var req Message
	if err := json.Unmarshal(chunk, &req); err != nil {
		return err
	}
	ctx = context.WithValue(ctx, ctxService, loc)
	resp := loc.Registry.Handle(ctx, &req)
	return resp.Response.UnmarshalResult(result)
}
