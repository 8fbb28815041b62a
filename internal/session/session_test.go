package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"renaissance/internal/network"
	"renaissance/internal/session/message"
)

// fakeWire is an in-memory stand-in for a websocket connection. An optional
// onWrite hook lets tests auto-answer server requests the way a client would.
type fakeWire struct {
	id      uint64
	onWrite func(network.Message)

	mu     sync.Mutex
	sent   []network.Message
	closed bool
}

func newFakeWire(id uint64) *fakeWire {
	return &fakeWire{id: id}
}

func (w *fakeWire) ID() uint64 { return w.id }

func (w *fakeWire) Write(msg network.Message) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("wire closed")
	}
	w.sent = append(w.sent, msg)
	hook := w.onWrite
	w.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

func (w *fakeWire) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *fakeWire) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWire) messages() []network.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]network.Message(nil), w.sent...)
}

// lastOfType returns the most recent message of the given type, if any.
func (w *fakeWire) lastOfType(msgType string) (network.Message, bool) {
	msgs := w.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == msgType {
			return msgs[i], true
		}
	}
	return network.Message{}, false
}

func (w *fakeWire) countOfType(msgType string) int {
	n := 0
	for _, msg := range w.messages() {
		if msg.Type == msgType {
			n++
		}
	}
	return n
}

// autoRespond installs a client that answers capacity and initial selection
// requests, so registration flows run to completion.
func (w *fakeWire) autoRespond(s *PlayerSession, capacity int) {
	w.onWrite = func(msg network.Message) {
		if msg.Kind != network.KindRequest || msg.Correlation == network.NoCorrelation {
			return
		}
		switch msg.Type {
		case message.TypeLobbyCapacity:
			go s.OnMessage(nil, message.Response(message.TypeLobbyCapacity, msg.Correlation,
				message.LobbyCapacityPayload{Size: capacity}))
		case message.TypeInitialSelection:
			var req message.InitialSelectionRequestPayload
			if err := msg.Decode(&req); err != nil {
				return
			}
			go s.OnMessage(nil, message.Response(message.TypeInitialSelection, msg.Correlation,
				message.InitialSelectionResponsePayload{Resources: req.Options[:req.Picks]}))
		}
	}
}

func testRegistry(opts Options) *Registry {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = time.Second
	}
	if opts.NegotiationTimeout == 0 {
		opts.NegotiationTimeout = time.Second
	}
	return NewRegistry(opts)
}

// newTestSession builds a session with an auto-responding fake client and
// registers the nickname synchronously.
func newTestSession(r *Registry, id uint64, nickname string, capacity int) (*PlayerSession, *fakeWire) {
	w := newFakeWire(id)
	s := newPlayerSession(r, w)
	w.autoRespond(s, capacity)
	r.Register(s, nickname)
	return s, w
}
