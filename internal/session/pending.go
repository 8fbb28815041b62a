package session

import (
	"sync"
	"time"

	"renaissance/internal/network"
)

// pendingCall is one in-flight request awaiting a correlated response.
// Exactly one of response delivery, timeout or cancellation terminates it.
type pendingCall struct {
	id      uint64
	created time.Time
	done    chan network.Message // buffered 1; closed on cancellation
}

// callTable pairs outbound requests with their eventual responses. IDs are a
// per-connection monotonic counter starting at 1, collision-free for the
// connection's lifetime.
type callTable struct {
	mu    sync.Mutex
	next  uint64
	calls map[uint64]*pendingCall
}

func newCallTable() *callTable {
	return &callTable{calls: make(map[uint64]*pendingCall)}
}

// add allocates a new pending call and registers it.
func (t *callTable) add() *pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	call := &pendingCall{
		id:      t.next,
		created: time.Now(),
		done:    make(chan network.Message, 1),
	}
	t.calls[call.id] = call
	return call
}

// take removes and returns the call for id, or nil if none is pending.
// Removal under the lock is what makes resolution at-most-once: a timeout
// and a response can never both claim the same call.
func (t *callTable) take(id uint64) *pendingCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.calls[id]
	if !ok {
		return nil
	}
	delete(t.calls, id)
	return call
}

// remove drops the call for id, reporting whether it was still pending.
// A false return means a response claimed the call first and its delivery
// is imminent.
func (t *callTable) remove(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[id]; !ok {
		return false
	}
	delete(t.calls, id)
	return true
}

// cancelAll unblocks every waiter. Used on connection teardown so that no
// SendAndWait caller is left hanging.
func (t *callTable) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, call := range t.calls {
		close(call.done)
		delete(t.calls, id)
	}
}

// size reports the number of in-flight calls. Logging only.
func (t *callTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
