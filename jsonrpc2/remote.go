package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrNoTransport is returned by New when the Config has no Transport.
var ErrNoTransport = errors.New("transport must be a duplex channel, got nil")

// ErrClosed is returned to outstanding calls when their Remote is closed.
var ErrClosed = errors.New("remote closed")

// ErrContextMissingValue is returned when a context is missing an expected value.
type ErrContextMissingValue struct {
	Key serviceContext
}

func (err ErrContextMissingValue) Error() string {
	return fmt.Sprintf("context missing value: %s", string(err.Key))
}

type serviceContext string

var ctxService serviceContext = "service"

// CtxService returns a Service associated with this request from a context
// used within a call. This is useful for initiating bidirectional calls.
func CtxService(ctx context.Context) (Service, error) {
	s, ok := ctx.Value(ctxService).(Service)
	if !ok {
		return nil, ErrContextMissingValue{ctxService}
	}
	return s, nil
}

// Service represents a remote service that can be called.
type Service interface {
	Call(ctx context.Context, result interface{}, method string, params ...interface{}) error
}

// Config is the construction surface of a Remote.
type Config struct {
	// Transport is the duplex channel to the peer (required).
	Transport Transport
	// Handlers are the local methods the peer may call (optional).
	Handlers HandlerSource
	// Registry is a prebuilt alternative to Handlers, useful when many
	// connections share one set of methods.
	Registry *Registry
	// Timeout is the default deadline of each outgoing call, DefaultTimeout
	// if zero.
	Timeout time.Duration
	// NewID generates correlation ids, UUIDs if nil.
	NewID IDGenerator
	// PendingLimit is the number of outstanding calls to hold before the
	// oldest get discarded (optional).
	PendingLimit int
	// PendingDiscard is the number of oldest calls discarded when
	// PendingLimit is reached.
	PendingDiscard int
	// Limiter throttles incoming calls (optional). Calls over the limit get
	// an ErrCodeRateLimited error reply.
	Limiter *rate.Limiter
}

var _ Service = &Remote{}

// Remote is one end of a bidirectional RPC session. It is both a Server for
// the peer's calls and a Client of the peer's methods, and routes every
// inbound chunk to one or the other.
type Remote struct {
	transport Transport
	registry  *Registry
	limiter   *rate.Limiter
	tracker   tracker

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New validates the config and returns a Remote. Call Serve to start
// processing inbound chunks.
func New(cfg Config) (*Remote, error) {
	if cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	registry := cfg.Registry
	if cfg.Handlers != nil {
		if registry != nil {
			return nil, errors.New("config must not set both Handlers and Registry")
		}
		var err error
		if registry, err = NewRegistry(cfg.Handlers); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Remote{
		transport: cfg.Transport,
		registry:  registry,
		limiter:   cfg.Limiter,
		tracker: tracker{
			newID:          cfg.NewID,
			timeout:        cfg.Timeout,
			pendingLimit:   cfg.PendingLimit,
			pendingDiscard: cfg.PendingDiscard,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	return r, nil
}

// ServePipe sets up symmetric remotes over an in-memory pipe and starts
// serving both in goroutines. The Transport of each config is replaced.
func ServePipe(c1, c2 Config) (*Remote, *Remote, error) {
	c1.Transport, c2.Transport = PipeTransport()
	r1, err := New(c1)
	if err != nil {
		return nil, nil, err
	}
	r2, err := New(c2)
	if err != nil {
		return nil, nil, err
	}
	go r1.Serve()
	go r2.Serve()
	return r1, r2, nil
}

// Registry returns the local methods served to the peer.
func (r *Remote) Registry() *Registry {
	return r.registry
}

// Pending returns the number of outgoing calls still waiting for a reply.
func (r *Remote) Pending() int {
	return r.tracker.Len()
}

// Serve reads chunks from the transport and dispatches them until the
// transport fails or the Remote is closed. Outstanding calls are rejected
// when it returns.
func (r *Remote) Serve() error {
	for {
		chunk, err := r.transport.ReadChunk()
		if err != nil {
			if r.ctx.Err() != nil {
				err = ErrClosed
			}
			if n := r.tracker.closeAll(err); n > 0 {
				logger.Debugf("Remote.Serve(): rejected %d pending calls: %s", n, err)
			}
			return err
		}
		r.Dispatch(chunk)
	}
}

// Close shuts down the transport, cancels the context of running handlers,
// and rejects all outstanding calls with ErrClosed.
func (r *Remote) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.cancel()
		r.tracker.closeAll(ErrClosed)
		err = r.transport.Close()
	})
	return err
}

// Dispatch processes one inbound chunk. Calls are handled in their own
// goroutines, so Dispatch returns without waiting on local handlers. Replies
// are routed to their pending calls. Malformed chunks and stray replies are
// logged and dropped.
func (r *Remote) Dispatch(chunk []byte) {
	payload, ok := Decode(chunk)
	if !ok {
		return
	}
	if !payload.Batch {
		msg := &payload.Messages[0]
		if msg.IsCall() {
			go r.handleCall(msg)
			return
		}
		r.settle(msg)
		return
	}

	var calls []*Message
	for i := range payload.Messages {
		msg := &payload.Messages[i]
		if msg.IsCall() {
			calls = append(calls, msg)
			continue
		}
		r.settle(msg)
	}
	if len(calls) > 0 {
		go r.handleBatch(calls)
	}
}

// settle routes a reply to its pending call.
func (r *Remote) settle(msg *Message) {
	if len(msg.ID) == 0 || string(msg.ID) == "null" {
		logger.Debugf("Remote.Dispatch(): dropping reply without id: %s", msg)
		return
	}
	id := idKey(msg.ID)
	if !r.tracker.settle(id, msg.Response) {
		logger.Debugf("Remote.Dispatch(): ignoring stray reply for id %s", id)
	}
}

// answer runs a call against the registry. It returns nil for notifications,
// which get no reply.
func (r *Remote) answer(msg *Message) *Message {
	var resp *Message
	if r.limiter != nil && !r.limiter.Allow() {
		resp = newReply(msg.ID, nil, &ErrResponse{
			Code:    ErrCodeRateLimited,
			Message: fmt.Sprintf("rate limited: %s", msg.Method),
		})
	} else {
		ctx := context.WithValue(r.ctx, ctxService, r)
		resp = r.registry.Handle(ctx, msg)
	}
	if len(msg.ID) == 0 {
		if resp.Response.Error != nil {
			logger.Debugf("notification %s failed: %s", msg.Method, resp.Response.Error)
		}
		return nil
	}
	return resp
}

func (r *Remote) handleCall(msg *Message) {
	resp := r.answer(msg)
	if resp == nil {
		return
	}
	r.write(resp)
}

func (r *Remote) handleBatch(calls []*Message) {
	replies := make([]*Message, len(calls))
	var g errgroup.Group
	for i, msg := range calls {
		i, msg := i, msg
		g.Go(func() error {
			replies[i] = r.answer(msg)
			return nil
		})
	}
	_ = g.Wait()

	batch := make([]*Message, 0, len(replies))
	for _, resp := range replies {
		if resp != nil {
			batch = append(batch, resp)
		}
	}
	if len(batch) == 0 {
		return
	}
	r.write(batch)
}

func (r *Remote) write(v interface{}) {
	chunk, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("Remote: failed to encode reply: %s", err)
		return
	}
	if err := r.transport.WriteChunk(chunk); err != nil {
		logger.Debugf("Remote: failed to write reply: %s", err)
	}
}

// Call is an outgoing call waiting for its reply.
type Call struct {
	ID     string
	Method string

	remote *Remote
	done   chan outcome
}

// Wait blocks until the call is answered, times out, or ctx is done, and
// decodes the result into result (which may be nil). Wait must only be
// called once.
func (c *Call) Wait(ctx context.Context, result interface{}) error {
	var out outcome
	select {
	case out = <-c.done:
	case <-ctx.Done():
		c.remote.tracker.cancel(c.ID, ctx.Err())
		// Exactly one outcome is delivered, either ours or one that won the
		// race against the cancel.
		out = <-c.done
	}
	if out.err != nil {
		return out.err
	}
	return out.resp.UnmarshalResult(result)
}

// Go issues a call and returns without waiting for the reply. A timeout of
// zero uses the configured default.
func (r *Remote) Go(method string, params Params, timeout time.Duration) (*Call, error) {
	if r.ctx.Err() != nil {
		return nil, ErrClosed
	}
	pending, err := r.tracker.issue(method, timeout)
	if err != nil {
		return nil, err
	}
	call := &Call{
		ID:     pending.id,
		Method: method,
		remote: r,
		done:   pending.done,
	}
	chunk, err := EncodeRequest(pending.id, method, params)
	if err == nil {
		err = r.transport.WriteChunk(chunk)
	}
	if err != nil {
		r.tracker.cancel(pending.id, err)
		<-pending.done
		return nil, err
	}
	return call, nil
}

// Call sends a call with positional params and blocks until its reply is
// decoded into result.
func (r *Remote) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	p, err := Positional(params...)
	if err != nil {
		return err
	}
	return r.call(ctx, result, method, p)
}

// CallNamed sends a call with a single named-argument object.
func (r *Remote) CallNamed(ctx context.Context, result interface{}, method string, named interface{}) error {
	p, err := Named(named)
	if err != nil {
		return err
	}
	return r.call(ctx, result, method, p)
}

func (r *Remote) call(ctx context.Context, result interface{}, method string, params Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	call, err := r.Go(method, params, 0)
	if err != nil {
		return err
	}
	return call.Wait(ctx, result)
}

// idKey normalizes a raw id into the key used by the pending table. String
// ids are unquoted; other JSON values are used verbatim.
func idKey(raw json.RawMessage) string {
	if firstByte(raw) == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(trimSpace(raw))
}
