package main

import (
	"net/http"

	"github.com/vipnode/duplexrpc/jsonrpc2"
	"github.com/vipnode/duplexrpc/jsonrpc2/ws"
)

// server answers plain HTTP POST calls and serves bidirectional sessions
// over websocket upgrades.
type server struct {
	jsonrpc2.HTTPServer
	ws     ws.Handler
	header http.Header
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		// Assume RPC over HTTP
		for k, values := range s.header {
			for _, v := range values {
				w.Header().Set(k, v)
			}
		}
		s.HTTPServer.ServeHTTP(w, r)
	case http.MethodGet:
		if r.Header.Get("Upgrade") == "" {
			http.Error(w, "incorrect duplexrpc api handshake", http.StatusBadRequest)
			return
		}
		// Assume WebSocket upgrade request
		s.ws.ServeHTTP(w, r)
	default:
		http.Error(w, "unsupported method", http.StatusMethodNotAllowed)
	}
}
