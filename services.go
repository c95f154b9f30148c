package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vipnode/duplexrpc/jsonrpc2"
)

// maxSleep caps how long the demo sleep method may block.
const maxSleep = time.Minute

// DemoService is the set of methods exposed by `duplexrpc serve`.
type DemoService struct {
	// Started is reported by Uptime.
	Started time.Time
}

// Echo returns its argument unchanged.
func (s *DemoService) Echo(v json.RawMessage) json.RawMessage {
	return v
}

func (s *DemoService) Ping() string {
	return "pong"
}

// Sleep blocks for ms milliseconds, or until the session closes.
func (s *DemoService) Sleep(ctx context.Context, ms int) (string, error) {
	d := time.Duration(ms) * time.Millisecond
	if d < 0 || d > maxSleep {
		return "", &jsonrpc2.ErrResponse{
			Code:    jsonrpc2.ErrCodeInvalidParams,
			Message: fmt.Sprintf("sleep must be between 0 and %d ms", maxSleep/time.Millisecond),
		}
	}
	select {
	case <-time.After(d):
		return "awake", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Greet calls back into the caller's whoami method.
func (s *DemoService) Greet(ctx context.Context) (string, error) {
	caller, err := jsonrpc2.CtxService(ctx)
	if err != nil {
		return "", err
	}
	var name string
	if err := caller.Call(ctx, &name, "whoami"); err != nil {
		return "", err
	}
	return fmt.Sprintf("Hello, %s!", name), nil
}

func (s *DemoService) Uptime() string {
	return time.Since(s.Started).Round(time.Second).String()
}

// clientMethods are the methods a `duplexrpc call` client exposes back to the
// server.
func clientMethods(name string) jsonrpc2.Flat {
	return jsonrpc2.Flat{
		"whoami": func() string {
			return name
		},
	}
}
