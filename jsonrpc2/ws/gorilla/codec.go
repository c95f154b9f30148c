// Package gorilla implements websocket transports using Gorilla's websocket
// library.
package gorilla

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vipnode/duplexrpc/jsonrpc2"
	"github.com/vipnode/duplexrpc/jsonrpc2/ws"
)

// WebSocketDial returns a Transport that wraps a client-side websocket
// connection.
func WebSocketDial(ctx context.Context, url string) (jsonrpc2.Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	return &wsTransport{conn: conn}, nil
}

var _ jsonrpc2.Transport = &wsTransport{}

// wsTransport maps one websocket message to one chunk.
type wsTransport struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	conn    *websocket.Conn
}

func (t *wsTransport) ReadChunk() ([]byte, error) {
	t.muRead.Lock()
	defer t.muRead.Unlock()
	_, chunk, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (t *wsTransport) WriteChunk(chunk []byte) error {
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, chunk)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

var _ ws.Upgrader = &Upgrader{}

// Upgrader upgrades HTTP requests into server-side websocket transports.
type Upgrader struct {
	Upgrader websocket.Upgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter, h http.Header) (jsonrpc2.Transport, error) {
	conn, err := u.Upgrader.Upgrade(w, r, h)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}
