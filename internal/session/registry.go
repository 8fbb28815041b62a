package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"renaissance/internal/events"
	"renaissance/internal/game"
	"renaissance/internal/network"
	"renaissance/internal/session/message"
)

// RulesFactory builds a fresh rules engine for a starting match, given the
// participants in turn order.
type RulesFactory func(players []string) game.Rules

// Options carries the externally supplied knobs the session layer consumes.
type Options struct {
	RequestTimeout     time.Duration
	NegotiationTimeout time.Duration
	Events             events.Publisher
	NewRules           RulesFactory
}

// Registry accepts connections, owns nickname registration, the current
// lobby, and the set of running matches. It implements network.Acceptor.
type Registry struct {
	opts Options
	log  logrus.FieldLogger

	mu              sync.Mutex
	nicknames       map[string]*PlayerSession // registered, not in a match
	matchByNickname map[string]*Match         // reserved by a running match
	lobby           *Lobby
	matches         map[string]*Match
}

func NewRegistry(opts Options) *Registry {
	if opts.Events == nil {
		opts.Events = events.NewNop()
	}
	if opts.NewRules == nil {
		opts.NewRules = func(players []string) game.Rules {
			return game.NewTable(players, time.Now().UnixNano())
		}
	}
	return &Registry{
		opts:            opts,
		log:             logger.WithField("component", "registry"),
		nicknames:       make(map[string]*PlayerSession),
		matchByNickname: make(map[string]*Match),
		lobby:           newLobby(),
		matches:         make(map[string]*Match),
	}
}

// Accept implements network.Acceptor: one PlayerSession per connection.
func (r *Registry) Accept(c *network.Conn) network.Handler {
	return newPlayerSession(r, c)
}

// Register binds a nickname to a session. Duplicates in use by a connected
// player are rejected with NicknameUnavailable while the connection stays
// open for a retry; a nickname held by a disconnected match participant
// triggers a reconnection instead.
func (r *Registry) Register(s *PlayerSession, nickname string) {
	r.mu.Lock()
	if m, ok := r.matchByNickname[nickname]; ok {
		r.mu.Unlock()
		if err := m.Reconnect(nickname, s); err != nil {
			r.log.WithField("nickname", nickname).WithError(err).Info("registration rejected")
			s.Send(message.NicknameUnavailable())
		}
		return
	}
	if existing, ok := r.nicknames[nickname]; ok && existing != s {
		r.mu.Unlock()
		r.log.WithField("nickname", nickname).Info("nickname already in use")
		s.Send(message.NicknameUnavailable())
		return
	}
	r.nicknames[nickname] = s
	r.mu.Unlock()

	if !s.bindNickname(nickname) {
		// The connection tore down mid-registration; OnClose ran before the
		// nickname was bound and could not free it, so release it here.
		r.mu.Lock()
		if r.nicknames[nickname] == s {
			delete(r.nicknames, nickname)
		}
		r.mu.Unlock()
		return
	}
	s.Send(message.ClientAccepted(nickname, false))
	r.log.WithFields(logrus.Fields{
		"nickname": nickname,
		"conn":     s.ConnID(),
	}).Info("client registered")
	r.joinLobby(s)
}

// joinLobby routes a freshly registered session into the current lobby. The
// first joiner negotiates the capacity; the joiner that completes it drains
// the lobby into a new match and a fresh lobby takes over.
func (r *Registry) joinLobby(s *PlayerSession) {
	r.mu.Lock()
	l := r.lobby
	if l.state == lobbyEmpty {
		l.beginNegotiation(s)
		r.mu.Unlock()
		r.negotiateCapacity(l, s)
		return
	}
	l.add(s)
	batch, surplus := r.drainIfFullLocked(l)
	r.mu.Unlock()

	r.startMatch(batch)
	for _, extra := range surplus {
		r.joinLobby(extra)
	}
}

// drainIfFullLocked swaps in a replacement lobby and returns the starting
// batch when l just filled up. Caller holds r.mu.
func (r *Registry) drainIfFullLocked(l *Lobby) (batch, surplus []*PlayerSession) {
	if !l.full() {
		return nil, nil
	}
	batch, surplus = l.drain()
	r.lobby = newLobby()
	return batch, surplus
}

// negotiateCapacity runs the capacity rendezvous with the first joiner: a
// correlated request with a bounded wait. A stalled or invalid negotiator is
// evicted, their connection closed, never added.
func (r *Registry) negotiateCapacity(l *Lobby, s *PlayerSession) {
	size := 0
	resp, err := s.SendAndWait(message.RequestLobbyCapacity(), r.opts.NegotiationTimeout)
	if err == nil {
		var payload message.LobbyCapacityPayload
		if decodeErr := decodePayload(resp.Payload, &payload); decodeErr == nil {
			size = payload.Size
		}
	}

	r.mu.Lock()
	if l.negotiator != s || l.state != lobbyNegotiating {
		// The negotiator disconnected and someone else took over already.
		r.mu.Unlock()
		return
	}
	if err != nil || size < minCapacity || size > maxCapacity {
		next := l.failNegotiation()
		r.mu.Unlock()
		r.log.WithFields(logrus.Fields{
			"nickname": s.Nickname(),
			"size":     size,
		}).Warn("capacity negotiation failed, evicting")
		s.Close()
		if next != nil {
			r.negotiateCapacity(l, next)
		}
		return
	}
	l.settleCapacity(size)
	batch, surplus := r.drainIfFullLocked(l)
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"nickname": s.Nickname(),
		"capacity": size,
	}).Info("lobby capacity agreed")
	r.startMatch(batch)
	for _, extra := range surplus {
		r.joinLobby(extra)
	}
}

// startMatch hands a drained lobby batch to a new match and its control task.
func (r *Registry) startMatch(sessions []*PlayerSession) {
	if len(sessions) == 0 {
		return
	}
	players := make([]string, len(sessions))
	for i, s := range sessions {
		players[i] = s.Nickname()
	}
	m := newMatch(r, uuid.NewString(), sessions, r.opts.NewRules(players), r.opts.Events, r.opts.RequestTimeout)

	r.mu.Lock()
	r.matches[m.ID()] = m
	for _, nickname := range players {
		delete(r.nicknames, nickname)
		r.matchByNickname[nickname] = m
	}
	r.mu.Unlock()

	for _, s := range sessions {
		if !s.bindMatch(m) {
			// The connection tore down between the lobby drain and the
			// binding; the disconnection would otherwise be lost and the
			// seat wedged as connected forever.
			m.HandleDisconnect(s)
		}
	}
	go m.Run()
}

// sessionClosed is the single disconnection entry point, invoked exactly
// once per connection teardown.
func (r *Registry) sessionClosed(s *PlayerSession, nickname string, m *Match) {
	if m != nil {
		// The seat stays reserved in matchByNickname for a reconnection.
		m.HandleDisconnect(s)
		return
	}
	r.mu.Lock()
	if nickname != "" && r.nicknames[nickname] == s {
		delete(r.nicknames, nickname)
	}
	r.lobby.remove(s)
	r.mu.Unlock()
}

// matchFinished releases a concluded match. Connected participants keep
// their nicknames and may register again for a new game.
func (r *Registry) matchFinished(m *Match) {
	players := m.Players()
	sessions := m.connectedSessions(nil)

	r.mu.Lock()
	delete(r.matches, m.ID())
	for _, nickname := range players {
		if r.matchByNickname[nickname] == m {
			delete(r.matchByNickname, nickname)
		}
	}
	for _, s := range sessions {
		if nickname := s.Nickname(); nickname != "" {
			r.nicknames[nickname] = s
		}
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.clearMatch()
	}
}

// matchAbandoned tears down a match with no connected participants left.
func (r *Registry) matchAbandoned(m *Match) {
	r.log.WithField("match", m.ID()).Warn("match abandoned: " + ErrUnrecoverableSession.Error())
	r.matchFinished(m)
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return errors.Wrap(json.Unmarshal(raw, v), "decode payload failed")
}
