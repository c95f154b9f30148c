package gobwas

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vipnode/duplexrpc/jsonrpc2"
	"github.com/vipnode/duplexrpc/jsonrpc2/ws"
)

func TestWebSocketTransport(t *testing.T) {
	c1, c2 := net.Pipe()

	clientTransport := clientWebSocketTransport(c1)
	serverTransport := serverWebSocketTransport(c2)

	go clientTransport.WriteChunk([]byte(`{"jsonrpc":"foo"}`))
	chunk, err := serverTransport.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	if string(chunk) != `{"jsonrpc":"foo"}` {
		t.Errorf("wrong chunk: %s", chunk)
	}

	go serverTransport.WriteChunk([]byte(`{"jsonrpc":"bar"}`))
	chunk, err = clientTransport.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	if string(chunk) != `{"jsonrpc":"bar"}` {
		t.Errorf("wrong chunk: %s", chunk)
	}
}

func TestWebSocketRemote(t *testing.T) {
	handler := &ws.Handler{
		Upgrader: &Upgrader{},
		Config: func(*http.Request) jsonrpc2.Config {
			return jsonrpc2.Config{Handlers: jsonrpc2.Flat{
				"echo": func(s string) string { return s },
			}}
		},
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	transport, err := WebSocketDial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	remote, err := jsonrpc2.New(jsonrpc2.Config{Transport: transport})
	if err != nil {
		t.Fatal(err)
	}
	go remote.Serve()
	defer remote.Close()

	var got string
	if err := remote.Call(context.Background(), &got, "echo", "Bob"); err != nil {
		t.Fatal(err)
	}
	if got != "Bob" {
		t.Errorf("got: %q; want %q", got, "Bob")
	}
}
