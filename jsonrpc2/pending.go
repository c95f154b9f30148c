package jsonrpc2

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout is the deadline of a call when none is configured.
const DefaultTimeout = 60 * time.Second

// maxIDAttempts bounds how many times issue asks for a fresh id when the
// generator returns one that is already outstanding.
const maxIDAttempts = 8

// ErrPendingDiscarded is returned to a call which was dropped from a full
// pending table to make room for newer calls.
var ErrPendingDiscarded = errors.New("pending call discarded, too many outstanding calls")

// ErrDuplicateID is returned when the id generator keeps producing ids that
// are already outstanding.
var ErrDuplicateID = errors.New("failed to generate a unique call id")

// TimeoutError is returned to a call when no reply arrived before its deadline.
type TimeoutError struct {
	ID     string
	Method string
	After  time.Duration
}

func (err *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s (method %q)", err.ID, err.After, err.Method)
}

// Timeout is always true, in the manner of net.Error.
func (err *TimeoutError) Timeout() bool {
	return true
}

type outcome struct {
	resp *Response
	err  error
}

type pendingCall struct {
	id        string
	method    string
	timestamp time.Time
	timer     *time.Timer
	done      chan outcome
}

// tracker owns the table of outstanding calls. Whoever removes an entry from
// the table while holding mu is the only one to deliver its outcome.
type tracker struct {
	newID   IDGenerator
	timeout time.Duration

	// pendingLimit is the number of calls to hold before the oldest get discarded.
	pendingLimit int
	// pendingDiscard is the number of oldest calls discarded when pendingLimit is reached.
	pendingDiscard int

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// issue registers a new pending call with a fresh id and arms its deadline.
// A timeout <= 0 uses the tracker default.
func (t *tracker) issue(method string, timeout time.Duration) (*pendingCall, error) {
	if timeout <= 0 {
		timeout = t.timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	newID := t.newID
	if newID == nil {
		newID = UUIDs
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		t.pending = map[string]*pendingCall{}
	}
	if t.pendingLimit > 0 && len(t.pending) >= t.pendingLimit && t.pendingDiscard > 0 {
		t.discardOldest(t.pendingDiscard)
	}

	var id string
	for attempt := 0; ; attempt++ {
		if attempt >= maxIDAttempts {
			return nil, ErrDuplicateID
		}
		id = newID()
		if _, exists := t.pending[id]; !exists && id != "" {
			break
		}
	}

	call := &pendingCall{
		id:        id,
		method:    method,
		timestamp: time.Now(),
		done:      make(chan outcome, 1),
	}
	call.timer = time.AfterFunc(timeout, func() {
		t.expire(id, timeout)
	})
	t.pending[id] = call
	return call, nil
}

// take removes the pending call for id, if it is still outstanding.
func (t *tracker) take(id string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	delete(t.pending, id)
	return call, true
}

// settle resolves the pending call for id with a reply. Stray replies, for
// ids that are unknown or already finished, are ignored and return false.
func (t *tracker) settle(id string, resp *Response) bool {
	call, ok := t.take(id)
	if !ok {
		return false
	}
	call.timer.Stop()
	if resp == nil {
		resp = &Response{}
	}
	call.done <- outcome{resp: resp}
	return true
}

// expire rejects the pending call for id with a TimeoutError, unless a reply
// won the race.
func (t *tracker) expire(id string, after time.Duration) {
	call, ok := t.take(id)
	if !ok {
		return
	}
	logger.Debugf("call %s (%s) timed out after %s", id, call.method, after)
	call.done <- outcome{err: &TimeoutError{ID: id, Method: call.method, After: after}}
}

// cancel rejects the pending call for id with err.
func (t *tracker) cancel(id string, err error) bool {
	call, ok := t.take(id)
	if !ok {
		return false
	}
	call.timer.Stop()
	call.done <- outcome{err: err}
	return true
}

// closeAll rejects every outstanding call with err.
func (t *tracker) closeAll(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.pending)
	for id, call := range t.pending {
		delete(t.pending, id)
		call.timer.Stop()
		call.done <- outcome{err: err}
	}
	return n
}

// discardOldest rejects the num oldest calls, must hold the t.mu lock.
func (t *tracker) discardOldest(num int) {
	for _, item := range pendingOldest(t.pending, num) {
		call := t.pending[item.key]
		delete(t.pending, item.key)
		call.timer.Stop()
		call.done <- outcome{err: ErrPendingDiscarded}
	}
}

// Len returns the number of outstanding calls.
func (t *tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

type pendingItem struct {
	key       string
	timestamp time.Time
}

type pendingQueue []pendingItem

func (p pendingQueue) Len() int {
	return len(p)
}

func (p pendingQueue) Less(i, j int) bool {
	return p[i].timestamp.Before(p[j].timestamp)
}

func (p pendingQueue) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

func pendingOldest(pending map[string]*pendingCall, num int) pendingQueue {
	if num > len(pending) {
		num = len(pending)
	}
	queue := make(pendingQueue, 0, len(pending))
	for key, p := range pending {
		queue = append(queue, pendingItem{
			key, p.timestamp,
		})
	}
	sort.Sort(queue)
	return queue[:num]
}
