// Package ws serves bidirectional RPC sessions over websocket connections.
// The websocket libraries themselves are wrapped by the gorilla and gobwas
// subpackages.
package ws

import (
	"io"
	"net/http"

	"github.com/vipnode/duplexrpc/jsonrpc2"
)

// ConfigFunc returns the Remote config for a freshly upgraded connection. The
// Transport field is filled in by the Handler.
type ConfigFunc func(r *http.Request) jsonrpc2.Config

// Handler returns an http.Handler which upgrades every request and serves a
// Remote over it until the connection closes. OnConnect, if set, is called
// with the Remote before it starts serving, so the server can call back into
// its client.
type Handler struct {
	Upgrader  Upgrader
	Config    ConfigFunc
	OnConnect func(r *http.Request, remote *jsonrpc2.Remote)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	transport, err := h.Upgrader.Upgrade(r, w, nil)
	if err != nil {
		logger.Debugf("websocket upgrade error from %s: %s", r.RemoteAddr, err)
		return
	}

	var cfg jsonrpc2.Config
	if h.Config != nil {
		cfg = h.Config(r)
	}
	cfg.Transport = transport
	remote, err := jsonrpc2.New(cfg)
	if err != nil {
		logger.Warningf("failed to start rpc session for %s: %s", r.RemoteAddr, err)
		transport.Close()
		return
	}
	defer remote.Close()
	if h.OnConnect != nil {
		h.OnConnect(r, remote)
	}
	if err := remote.Serve(); err != nil && err != io.EOF && err != jsonrpc2.ErrClosed {
		logger.Debugf("jsonrpc2.Remote.Serve() error from %s: %s", r.RemoteAddr, err)
	}
}
