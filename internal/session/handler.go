package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"renaissance/internal/game"
	"renaissance/internal/network"
	"renaissance/internal/session/message"
)

var logger logrus.FieldLogger = logrus.StandardLogger().WithField("component", "session")

// wire is the slice of network.Conn the session layer depends on. Tests
// substitute an in-memory implementation.
type wire interface {
	ID() uint64
	Write(network.Message) error
	Close()
}

type sessionState int

const (
	stateConnecting sessionState = iota // connected, nickname not registered yet
	stateLobby                          // registered, waiting for a match
	stateMatch                          // participating in a running match
	stateClosed
)

// commandFunc handles one inbound request or notification.
type commandFunc func(s *PlayerSession, msg network.Message)

// Routers keyed by message type, one per session state (pre-match and
// in-match commands never overlap).
var (
	lobbyRouter = map[string]commandFunc{
		message.TypeSetupConnection: (*PlayerSession).handleSetupConnection,
	}
	matchRouter = map[string]commandFunc{
		message.TypeMarketDraw: (*PlayerSession).handleMoveRequest,
		message.TypeBuyCard:    (*PlayerSession).handleMoveRequest,
		message.TypeProduction: (*PlayerSession).handleMoveRequest,
		message.TypeEndTurn:    (*PlayerSession).handleEndTurn,
	}
)

// PlayerSession owns one connection: its correlation table, its dispatch,
// and the binding to a nickname and match once registered. One instance per
// connection attempt; a reconnecting player gets a fresh session re-bound to
// the old participant.
type PlayerSession struct {
	registry *Registry
	conn     wire
	calls    *callTable
	log      logrus.FieldLogger

	mu       sync.Mutex
	state    sessionState
	nickname string
	match    *Match
}

func newPlayerSession(registry *Registry, conn wire) *PlayerSession {
	return &PlayerSession{
		registry: registry,
		conn:     conn,
		calls:    newCallTable(),
		log:      logger.WithField("conn", conn.ID()),
	}
}

// ConnID returns the opaque identity of the underlying connection.
func (s *PlayerSession) ConnID() uint64 {
	return s.conn.ID()
}

// Nickname returns the registered nickname, empty before registration.
func (s *PlayerSession) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickname
}

// Send writes a fire-and-forget message. A closed transport surfaces as
// ErrConnectionClosed; the disconnection event itself arrives via OnClose.
func (s *PlayerSession) Send(msg network.Message) error {
	if err := s.conn.Write(msg); err != nil {
		return errors.Wrap(ErrConnectionClosed, err.Error())
	}
	return nil
}

// SendAndWait sends a request carrying a fresh correlation ID and blocks
// until the matching response arrives, timeout elapses, or the connection is
// torn down. A negative timeout waits indefinitely.
func (s *PlayerSession) SendAndWait(msg network.Message, timeout time.Duration) (network.Message, error) {
	call := s.calls.add()
	msg.Kind = network.KindRequest
	msg.Correlation = call.id
	if err := s.conn.Write(msg); err != nil {
		s.calls.remove(call.id)
		return network.Message{}, errors.Wrap(ErrConnectionClosed, err.Error())
	}

	if timeout < 0 {
		resp, ok := <-call.done
		if !ok {
			return network.Message{}, ErrRequestTimedOut
		}
		return resp, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-call.done:
		if !ok {
			return network.Message{}, ErrRequestTimedOut
		}
		return resp, nil
	case <-timer.C:
		if s.calls.remove(call.id) {
			s.log.WithFields(logrus.Fields{
				"correlation": call.id,
				"type":        msg.Type,
			}).Warn("request timed out")
			return network.Message{}, ErrRequestTimedOut
		}
		// The response claimed the call between the timer firing and the
		// removal attempt; its delivery is already in flight.
		resp, ok := <-call.done
		if !ok {
			return network.Message{}, ErrRequestTimedOut
		}
		return resp, nil
	}
}

// OnMessage implements network.Handler. Responses resolve their pending call
// in arrival order on the read loop; requests and notifications each get
// their own goroutine so a slow handler cannot stall reads.
func (s *PlayerSession) OnMessage(_ *network.Conn, msg network.Message) {
	if msg.IsResponse() {
		s.resolveResponse(msg)
		return
	}
	go s.dispatch(msg)
}

func (s *PlayerSession) resolveResponse(msg network.Message) {
	call := s.calls.take(msg.Correlation)
	if call == nil {
		// Late or duplicate arrival after a timeout already claimed the
		// call. Never an error.
		s.log.WithFields(logrus.Fields{
			"correlation": msg.Correlation,
			"type":        msg.Type,
		}).Warn("unmatched response discarded")
		return
	}
	// take() made us the sole resolver; the buffered channel never blocks.
	// The waiter is the command layer for awaited responses, so delivery and
	// dispatch are one step and the waiter resumes with state fully applied.
	call.done <- msg
}

func (s *PlayerSession) dispatch(msg network.Message) {
	if msg.Type == message.TypeKeepAlive {
		// Liveness was already refreshed by the read loop.
		return
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	var router map[string]commandFunc
	switch state {
	case stateMatch:
		router = matchRouter
	default:
		router = lobbyRouter
	}

	handler, ok := router[msg.Type]
	if !ok {
		s.log.WithField("type", msg.Type).Warn("unhandled message")
		if msg.Correlation != network.NoCorrelation {
			// Every correlated request gets exactly one response, even when
			// it makes no sense in the session's current state.
			s.Send(message.MoveRejected(msg.Correlation, message.RejectUnknownCommand))
		}
		return
	}
	handler(s, msg)
}

// OnClose implements network.Handler. The read loop guarantees exactly one
// invocation; pending waiters are unblocked before the roster learns about
// the disconnection.
func (s *PlayerSession) OnClose(_ *network.Conn) {
	s.calls.cancelAll()

	s.mu.Lock()
	prev := s.state
	m := s.match
	nickname := s.nickname
	s.state = stateClosed
	s.mu.Unlock()

	if prev == stateClosed {
		return
	}
	s.log.WithField("nickname", nickname).Info("session closed")
	s.registry.sessionClosed(s, nickname, m)
}

// Close tears down the underlying connection. Used for lobby eviction.
func (s *PlayerSession) Close() {
	s.conn.Close()
}

func (s *PlayerSession) handleSetupConnection(msg network.Message) {
	var payload message.SetupConnectionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Nickname == "" {
		s.log.WithError(err).Warn("malformed setup_connection")
		s.Send(message.NicknameUnavailable())
		return
	}
	s.registry.Register(s, payload.Nickname)
}

func (s *PlayerSession) handleMoveRequest(msg network.Message) {
	m := s.currentMatch()
	if m == nil {
		s.rejectIfCorrelated(msg, message.RejectMatchOver)
		return
	}
	mv, err := decodeMove(msg)
	if err != nil {
		s.rejectIfCorrelated(msg, game.RejectInvalidMove)
		return
	}
	m.HandleMove(s, mv, msg.Correlation)
}

func (s *PlayerSession) handleEndTurn(msg network.Message) {
	m := s.currentMatch()
	if m == nil {
		s.rejectIfCorrelated(msg, message.RejectMatchOver)
		return
	}
	m.HandleEndTurn(s, msg.Correlation)
}

func (s *PlayerSession) currentMatch() *Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match
}

func (s *PlayerSession) rejectIfCorrelated(msg network.Message, rejection string) {
	if msg.Correlation != network.NoCorrelation {
		s.Send(message.MoveRejected(msg.Correlation, rejection))
	}
}

// bindMatch attaches the session to its match. It fails when the connection
// already tore down: OnClose ran before the binding existed, so the caller
// owns delivering the disconnection to the match.
func (s *PlayerSession) bindMatch(m *Match) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return false
	}
	s.match = m
	s.state = stateMatch
	return true
}

// clearMatch returns a session to the lobby state once its match concluded.
func (s *PlayerSession) clearMatch() {
	s.mu.Lock()
	if s.state == stateMatch {
		s.state = stateLobby
		s.match = nil
	}
	s.mu.Unlock()
}

// bindNickname records the registered nickname. It fails when the connection
// already tore down, so a closed session is never resurrected into the lobby
// state and the caller can release the nickname.
func (s *PlayerSession) bindNickname(nickname string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return false
	}
	s.nickname = nickname
	s.state = stateLobby
	return true
}

func decodeMove(msg network.Message) (game.Move, error) {
	switch msg.Type {
	case message.TypeMarketDraw:
		var mv game.MarketDraw
		if err := json.Unmarshal(msg.Payload, &mv); err != nil {
			return nil, errors.Wrap(err, "decode market_draw failed")
		}
		return mv, nil
	case message.TypeBuyCard:
		var mv game.BuyCard
		if err := json.Unmarshal(msg.Payload, &mv); err != nil {
			return nil, errors.Wrap(err, "decode buy_card failed")
		}
		return mv, nil
	case message.TypeProduction:
		var mv game.Production
		if err := json.Unmarshal(msg.Payload, &mv); err != nil {
			return nil, errors.Wrap(err, "decode production failed")
		}
		return mv, nil
	}
	return nil, errors.Errorf("unknown move type %q", msg.Type)
}
