package jsonrpc2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"sync"
)

const httpContentType = "application/json"

var _ http.Handler = &HTTPServer{}

// HTTPServer answers calls posted over HTTP by implementing http.Handler.
// HTTP is not duplex: the server can't call back, and replies posted to it
// are rejected.
type HTTPServer struct {
	Registry *Registry

	// MaxContentLength is the request size limit (optional)
	MaxContentLength int64
}

func (h *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.ContentLength == 0 && r.URL.RawQuery == "" {
		// Ignore empty GET requests
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.MaxContentLength > 0 && r.ContentLength > h.MaxContentLength {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	var body io.Reader = r.Body
	if h.MaxContentLength > 0 {
		body = io.LimitReader(r.Body, h.MaxContentLength)
	}
	defer r.Body.Close()
	chunk, err := ioutil.ReadAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("content-type", httpContentType)
	payload, ok := Decode(chunk)
	if !ok {
		writeJSON(w, newReply(json.RawMessage("null"), nil, &ErrResponse{
			Code:    ErrCodeParse,
			Message: "failed to parse request",
		}))
		return
	}

	replies := make([]*Message, len(payload.Messages))
	var wg sync.WaitGroup
	for i := range payload.Messages {
		msg := &payload.Messages[i]
		if !msg.IsCall() {
			replies[i] = newReply(msg.ID, nil, &ErrResponse{
				Code:    ErrCodeInvalidRequest,
				Message: "replies are not accepted over http",
			})
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := h.Registry.Handle(r.Context(), msg)
			if len(msg.ID) == 0 {
				// Notifications get no reply.
				return
			}
			replies[i] = resp
		}(i)
	}
	wg.Wait()

	answered := replies[:0]
	for _, resp := range replies {
		if resp != nil {
			answered = append(answered, resp)
		}
	}
	if len(answered) == 0 {
		w.Header().Del("content-type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !payload.Batch {
		writeJSON(w, answered[0])
		return
	}
	writeJSON(w, answered)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("HTTPServer: failed to write reply: %s", err)
	}
}

var _ Service = &HTTPService{}

// HTTPService calls methods of an HTTPServer, one POST per call.
type HTTPService struct {
	Counter
	HTTPClient http.Client

	// Endpoint is the HTTP URL to dial for RPC calls.
	Endpoint string
	// MaxContentLength is the response size limit (optional)
	MaxContentLength int64
}

func (service *HTTPService) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p, err := Positional(params...)
	if err != nil {
		return err
	}
	id := service.NextID()
	body, err := EncodeRequest(id, method, p)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, service.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", httpContentType)
	req.Header.Set("Accept", httpContentType)
	req = req.WithContext(ctx)

	resp, err := service.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return HTTPRequestError{
			Response: resp,
			Reason:   fmt.Sprintf("bad status code: %d", resp.StatusCode),
		}
	}
	if service.MaxContentLength > 0 && resp.ContentLength > service.MaxContentLength {
		return HTTPRequestError{
			Response: resp,
			Reason:   "response too large",
		}
	}

	var r io.Reader = resp.Body
	if service.MaxContentLength > 0 {
		r = io.LimitReader(resp.Body, service.MaxContentLength)
	}

	var respMsg Message
	if err := json.NewDecoder(r).Decode(&respMsg); err != nil {
		return err
	}
	if respMsg.Response == nil {
		return HTTPRequestError{
			Response: resp,
			Reason:   "missing response in RPC message",
		}
	}
	if got := idKey(respMsg.ID); got != id {
		return HTTPRequestError{
			Response: resp,
			Reason:   fmt.Sprintf("response id mismatch: %q != %q", got, id),
		}
	}
	return respMsg.Response.UnmarshalResult(result)
}

// HTTPRequestError is used when RPC over HTTP encounters an error during transport.
type HTTPRequestError struct {
	Response *http.Response
	Reason   string
}

func (err HTTPRequestError) Error() string {
	return fmt.Sprintf("http rpc request error: %s", err.Reason)
}
