package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

type FruitService struct{}

func (f *FruitService) Apple() string {
	return "Apple"
}

func (f *FruitService) Banana() error {
	return nil
}

func (f *FruitService) Cherry() (string, error) {
	return "Cherry", nil
}

func (f *FruitService) Durian() error {
	return errors.New("durian failure")
}

// Basket embeds FruitService, so it inherits its methods.
type Basket struct {
	FruitService
}

func (b *Basket) Count(fruits []string) int {
	return len(fruits)
}

type Pinger struct {
	PongService Service
}

func (f *Pinger) Ping() string {
	return "ping"
}

func (f *Pinger) PingPong() string {
	var pong string
	err := f.PongService.Call(context.Background(), &pong, "pong")
	if err != nil {
		return fmt.Sprintf("err: %s", err)
	}
	return "ping" + pong
}

type Ponger struct{}

func (b *Ponger) Pong() string {
	return "pong"
}

type Fib struct{}

func (f *Fib) Fibonacci(ctx context.Context, a int, b int, steps int) (int, error) {
	service, err := CtxService(ctx)
	if err != nil {
		return 0, err
	}
	a, b = b, a+b
	if steps <= 0 {
		return b, nil
	}
	if err := service.Call(ctx, &b, "fibonacci", a, b, steps-1); err != nil {
		return 0, err
	}
	return b, nil
}

type Greeting struct {
	B string `json:"b"`
}

// echoMethods is a flat handler source.
func echoMethods() Flat {
	return Flat{
		"echo": func(s string) string {
			return s
		},
		"hello": func(g Greeting) string {
			return fmt.Sprintf("Hello World %s!", g.B)
		},
		"sleep": func(ctx context.Context, ms int) (string, error) {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return "awake", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
		"fail": func() error {
			return &ErrResponse{Code: 42, Message: "failed on purpose"}
		},
		"panic": func() string {
			panic("oops")
		},
		"_secret": func() string {
			return "secret"
		},
	}
}

// pipeRemotes returns two connected, serving remotes with the given local
// methods, closed when the test ends.
func pipeRemotes(t *testing.T, c1, c2 Config) (*Remote, *Remote) {
	t.Helper()
	r1, r2, err := ServePipe(c1, c2)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		r1.Close()
		r2.Close()
	})
	return r1, r2
}

// waitFor polls fn until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !fn() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met after %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func assertEqualJSON(t *testing.T, a, b interface{}, format string, args ...interface{}) {
	t.Helper()

	aa, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Compare(aa, bb) != 0 {
		prefix := fmt.Sprintf(format, args...)
		t.Errorf(prefix+"\n   got: %q\n  want: %q", aa, bb)
	}
}

// chanTransport is a Transport fed by hand: tests push inbound chunks into
// in, and read what the endpoint wrote from out.
type chanTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (t *chanTransport) ReadChunk() ([]byte, error) {
	select {
	case chunk := <-t.in:
		return chunk, nil
	case <-t.closed:
		return nil, ErrClosed
	}
}

func (t *chanTransport) WriteChunk(chunk []byte) error {
	select {
	case t.out <- chunk:
		return nil
	case <-t.closed:
		return ErrClosed
	}
}

func (t *chanTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return nil
}

// expectNoWrite asserts that nothing is written for a short while.
func (t *chanTransport) expectNoWrite(tb testing.TB) {
	tb.Helper()
	select {
	case chunk := <-t.out:
		tb.Errorf("unexpected write: %s", chunk)
	case <-time.After(50 * time.Millisecond):
	}
}

// nextWrite returns the next written chunk.
func (t *chanTransport) nextWrite(tb testing.TB) []byte {
	tb.Helper()
	select {
	case chunk := <-t.out:
		return chunk
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for a write")
	}
	return nil
}
