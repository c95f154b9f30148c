package jsonrpc2

import (
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestPendingOldest(t *testing.T) {
	now := time.Now()
	pending := map[string]*pendingCall{
		"1": {timestamp: now.Add(time.Second * 1)},
		"2": {timestamp: now.Add(time.Second * 2)},
		"3": {timestamp: now.Add(time.Second * 3)},
		"4": {timestamp: now.Add(time.Second * 4)},
		"5": {timestamp: now.Add(time.Second * 5)},
	}

	keys := []string{}
	for _, item := range pendingOldest(pending, 3) {
		keys = append(keys, item.key)
	}

	if want, got := []string{"1", "2", "3"}, keys; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want: %q", got, want)
	}
}

func TestTrackerSettle(t *testing.T) {
	counter := Counter{}
	tr := tracker{newID: counter.NextID}

	call, err := tr.issue("echo", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if call.id != "1" {
		t.Errorf("unexpected id: %q", call.id)
	}
	if got := tr.Len(); got != 1 {
		t.Errorf("wrong pending count: %d", got)
	}

	if !tr.settle(call.id, &Response{Result: []byte(`"x"`)}) {
		t.Fatal("settle failed")
	}
	out := <-call.done
	if out.err != nil || string(out.resp.Result) != `"x"` {
		t.Errorf("unexpected outcome: %+v", out)
	}

	// Second settle, and expiry, for the same id are no-ops.
	if tr.settle(call.id, &Response{}) {
		t.Error("settled twice")
	}
	tr.expire(call.id, time.Minute)
	select {
	case out := <-call.done:
		t.Errorf("unexpected second outcome: %+v", out)
	default:
	}
	if got := tr.Len(); got != 0 {
		t.Errorf("wrong pending count: %d", got)
	}
}

func TestTrackerStray(t *testing.T) {
	tr := tracker{}
	if tr.settle("ghost-123", &Response{}) {
		t.Error("stray reply should not settle anything")
	}
	if tr.cancel("ghost-123", errors.New("nope")) {
		t.Error("stray cancel should not cancel anything")
	}
}

func TestTrackerTimeout(t *testing.T) {
	tr := tracker{}
	call, err := tr.issue("slow", 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case out := <-call.done:
		timeoutErr, ok := out.err.(*TimeoutError)
		if !ok {
			t.Fatalf("expected *TimeoutError, got %T: %v", out.err, out.err)
		}
		if timeoutErr.ID != call.id || timeoutErr.Method != "slow" {
			t.Errorf("wrong timeout error: %+v", timeoutErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not time out")
	}

	if tr.settle(call.id, &Response{}) {
		t.Error("late reply should be ignored")
	}
	if got := tr.Len(); got != 0 {
		t.Errorf("timed out call leaked: %d pending", got)
	}
}

func TestTrackerDuplicateID(t *testing.T) {
	tr := tracker{newID: func() string { return "same" }}
	if _, err := tr.issue("a", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.issue("b", time.Minute); err != ErrDuplicateID {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	tr.closeAll(ErrClosed)
}

func TestTrackerDiscard(t *testing.T) {
	counter := Counter{}
	tr := tracker{
		newID:          counter.NextID,
		pendingLimit:   5,
		pendingDiscard: 3,
	}
	calls := map[string]*pendingCall{}
	for i := 0; i < 5; i++ {
		call, err := tr.issue("m", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		calls[call.id] = call
		// Distinct timestamps keep the discard order stable.
		time.Sleep(time.Millisecond)
	}

	// Should trigger a discard of 3, add 1.
	if _, err := tr.issue("m", time.Minute); err != nil {
		t.Fatal(err)
	}
	if want, got := 3, tr.Len(); got != want {
		t.Errorf("got: %d; want: %d", got, want)
	}

	keys := []string{}
	tr.mu.Lock()
	for k := range tr.pending {
		keys = append(keys, k)
	}
	tr.mu.Unlock()
	sort.Strings(keys)
	if want, got := []string{"4", "5", "6"}, keys; !reflect.DeepEqual(got, want) {
		t.Errorf("got: %q; want %q", got, want)
	}

	for _, id := range []string{"1", "2", "3"} {
		select {
		case out := <-calls[id].done:
			if out.err != ErrPendingDiscarded {
				t.Errorf("call %s: expected ErrPendingDiscarded, got %v", id, out.err)
			}
		default:
			t.Errorf("call %s was not rejected", id)
		}
	}

	if n := tr.closeAll(ErrClosed); n != 3 {
		t.Errorf("closeAll rejected %d calls; want 3", n)
	}
	if out := <-calls["4"].done; out.err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", out.err)
	}
}
