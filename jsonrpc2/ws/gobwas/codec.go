// Package gobwas implements websocket transports using the gobwas/ws library.
package gobwas

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/vipnode/duplexrpc/jsonrpc2"
	rpcws "github.com/vipnode/duplexrpc/jsonrpc2/ws"
)

// WebSocketDial returns a Transport that wraps a client-side connection.
func WebSocketDial(ctx context.Context, url string) (jsonrpc2.Transport, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	if br != nil {
		// The server wrote frames right after the handshake.
		conn = bufferedConn{conn, br}
	}
	return clientWebSocketTransport(conn), nil
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func clientWebSocketTransport(conn net.Conn) jsonrpc2.Transport {
	return &wsTransport{
		conn:  conn,
		read:  wsutil.ReadServerData,
		write: wsutil.WriteClientMessage,
	}
}

// serverWebSocketTransport returns a server-side Transport over a websocket
// connection.
func serverWebSocketTransport(conn net.Conn) jsonrpc2.Transport {
	return &wsTransport{
		conn:  conn,
		read:  wsutil.ReadClientData,
		write: wsutil.WriteServerMessage,
	}
}

var _ jsonrpc2.Transport = &wsTransport{}

// wsTransport maps one websocket message to one chunk. The read and write
// funcs pick the client or server side of the framing.
type wsTransport struct {
	muRead  sync.Mutex
	muWrite sync.Mutex
	conn    net.Conn
	read    func(rw io.ReadWriter) ([]byte, ws.OpCode, error)
	write   func(w io.Writer, op ws.OpCode, p []byte) error
}

func (t *wsTransport) ReadChunk() ([]byte, error) {
	t.muRead.Lock()
	defer t.muRead.Unlock()
	chunk, _, err := t.read(t.conn)
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (t *wsTransport) WriteChunk(chunk []byte) error {
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	return t.write(t.conn, ws.OpText, chunk)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

var _ rpcws.Upgrader = &Upgrader{}

// Upgrader upgrades an HTTP request to a WebSocket request and returns the
// appropriate jsonrpc2 transport.
type Upgrader struct {
	Upgrader ws.HTTPUpgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (jsonrpc2.Transport, error) {
	conn, _, _, err := u.Upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	return serverWebSocketTransport(conn), nil
}
