package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"renaissance/internal/events"
	"renaissance/internal/game"
	"renaissance/internal/network"
	"renaissance/internal/session/message"
)

// Phases reported in signal_active_player notifications.
const (
	phaseInitial = "initial"
	phaseMain    = "main"
)

// Participant binds a nickname to its current connection within one match.
// The roster entry survives disconnections so turn indices and score lookups
// stay stable; only the session reference and connectivity flag change.
type Participant struct {
	Nickname  string
	session   *PlayerSession
	connID    uint64
	connected bool
}

// Match owns one running game: the roster, the turn tracker, and the rules
// engine. A single mutex serializes roster mutation, turn bookkeeping and
// rules access against each other; it is never held across network I/O.
type Match struct {
	id             string
	registry       *Registry
	rules          game.Rules
	events         events.Publisher
	requestTimeout time.Duration
	log            logrus.FieldLogger

	mu           sync.Mutex
	participants []*Participant
	byNickname   map[string]*Participant
	byConn       map[uint64]*Participant
	turns        *TurnTracker
	phase        string // reported in active-player signals
	endgame      bool
	over         bool
}

func newMatch(registry *Registry, id string, sessions []*PlayerSession, rules game.Rules, pub events.Publisher, requestTimeout time.Duration) *Match {
	m := &Match{
		id:             id,
		registry:       registry,
		rules:          rules,
		events:         pub,
		requestTimeout: requestTimeout,
		log:            logger.WithField("match", id),
		phase:          phaseInitial,
		byNickname:     make(map[string]*Participant, len(sessions)),
		byConn:         make(map[uint64]*Participant, len(sessions)),
	}
	order := make([]string, 0, len(sessions))
	for _, s := range sessions {
		p := &Participant{
			Nickname:  s.Nickname(),
			session:   s,
			connID:    s.ConnID(),
			connected: true,
		}
		m.participants = append(m.participants, p)
		m.byNickname[p.Nickname] = p
		m.byConn[p.connID] = p
		order = append(order, p.Nickname)
	}
	m.turns = NewTurnTracker(order)
	return m
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.id }

// Players returns the roster nicknames in turn order.
func (m *Match) Players() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := make([]string, len(m.participants))
	for i, p := range m.participants {
		order[i] = p.Nickname
	}
	return order
}

// Run is the match control task: announce the game, collect each player's
// initial selection (request/response, payloads differ per seat), then hand
// the floor to the first player.
func (m *Match) Run() {
	players := m.Players()
	m.log.WithField("players", players).Info("match started")
	m.events.MatchStarted(m.id, players)
	m.Broadcast(message.GameStarted(m.id, players))

	for _, nickname := range players {
		m.solicitInitialSelection(nickname)
	}

	m.mu.Lock()
	first := m.turns.Active()
	m.phase = phaseMain
	m.mu.Unlock()
	m.Broadcast(message.SignalActivePlayer(first, phaseInitial))
}

func (m *Match) solicitInitialSelection(nickname string) {
	m.mu.Lock()
	options, picks, _ := m.rules.InitialPicks(nickname)
	m.mu.Unlock()

	var selection []string
	resp, err := m.SendAndWaitTo(nickname, message.RequestInitialSelection(options, picks), m.requestTimeout)
	if err == nil {
		var payload message.InitialSelectionResponsePayload
		if decodeErr := decodePayload(resp.Payload, &payload); decodeErr == nil {
			selection = payload.Resources
		}
	} else {
		m.log.WithField("nickname", nickname).WithError(err).Warn("initial selection not received, picking defaults")
	}
	if len(selection) != picks {
		// Timed out, disconnected or malformed: pick for the player so the
		// match can start. Their board, their loss.
		selection = options[:picks]
	}

	m.mu.Lock()
	applyErr := m.rules.ApplyInitialSelection(nickname, selection)
	if applyErr != nil {
		// The client picked something illegal; fall back to defaults.
		applyErr = m.rules.ApplyInitialSelection(nickname, options[:picks])
	}
	m.mu.Unlock()
	if applyErr != nil {
		m.log.WithField("nickname", nickname).WithError(applyErr).Error("initial selection failed")
	}
}

// Broadcast sends msg to every connected participant.
func (m *Match) Broadcast(msg network.Message) {
	for _, s := range m.connectedSessions(nil) {
		s.Send(msg)
	}
}

// BroadcastExcept sends msg to every connected participant but one.
func (m *Match) BroadcastExcept(except *PlayerSession, msg network.Message) {
	for _, s := range m.connectedSessions(except) {
		s.Send(msg)
	}
}

func (m *Match) connectedSessions(except *PlayerSession) []*PlayerSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*PlayerSession, 0, len(m.participants))
	for _, p := range m.participants {
		if p.connected && p.session != except {
			sessions = append(sessions, p.session)
		}
	}
	return sessions
}

// SendTo unicasts to a participant by nickname.
func (m *Match) SendTo(nickname string, msg network.Message) error {
	s, err := m.sessionFor(nickname)
	if err != nil {
		return err
	}
	return s.Send(msg)
}

// SendAndWaitTo unicasts a request to a participant and waits for the
// correlated response.
func (m *Match) SendAndWaitTo(nickname string, msg network.Message, timeout time.Duration) (network.Message, error) {
	s, err := m.sessionFor(nickname)
	if err != nil {
		return network.Message{}, err
	}
	return s.SendAndWait(msg, timeout)
}

func (m *Match) sessionFor(nickname string) (*PlayerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byNickname[nickname]
	if !ok {
		return nil, errors.Errorf("unknown participant %q", nickname)
	}
	if !p.connected {
		return nil, errors.Wrapf(ErrConnectionClosed, "participant %q is disconnected", nickname)
	}
	return p.session, nil
}

// respond answers a correlated request. Uncorrelated commands get no
// response envelope; their effects are observable through broadcasts.
func respond(s *PlayerSession, msg network.Message) {
	if msg.Correlation != network.NoCorrelation {
		s.Send(msg)
	}
}

// HandleMove applies a primary move request from s. Turn-discipline and rule
// rejections become typed responses; game state is only mutated on success.
func (m *Match) HandleMove(s *PlayerSession, mv game.Move, correlation uint64) {
	m.mu.Lock()
	p := m.byConn[s.ConnID()]
	if m.over || p == nil {
		m.mu.Unlock()
		respond(s, message.MoveRejected(correlation, message.RejectMatchOver))
		return
	}
	if err := m.turns.RequireActive(p.Nickname); err != nil {
		m.mu.Unlock()
		respond(s, message.MoveRejected(correlation, message.RejectNotActivePlayer))
		return
	}
	if m.turns.PrimaryMoveMade() {
		m.mu.Unlock()
		respond(s, message.MoveRejected(correlation, message.RejectPrimaryMoveAlreadyMade))
		return
	}

	delta, err := m.rules.ValidateAndApply(p.Nickname, mv)
	if err != nil {
		m.mu.Unlock()
		var rejection *game.Rejection
		if errors.As(err, &rejection) {
			respond(s, message.MoveRejected(correlation, rejection.Kind))
			return
		}
		m.log.WithField("nickname", p.Nickname).WithError(err).Error("rules engine failed")
		respond(s, message.MoveRejected(correlation, game.RejectInvalidMove))
		return
	}
	if err := m.turns.MarkPrimaryMove(); err != nil {
		// Unreachable: the mutex is held across the check and the apply.
		m.log.WithField("nickname", p.Nickname).WithError(err).Error("turn bookkeeping out of sync")
	}
	nickname := p.Nickname
	endgameJustStarted := !m.endgame && m.rules.Phase() == game.PhaseLastRound
	if endgameJustStarted {
		m.endgame = true
	}
	m.mu.Unlock()

	respond(s, message.MoveAccepted(correlation, delta))
	m.BroadcastExcept(s, message.MoveApplied(delta))
	if endgameJustStarted {
		m.Broadcast(message.EndgameStarted(nickname))
	}
}

// HandleEndTurn passes the turn. Rejected with PrimaryMoveNotMade while the
// one-chance move is unspent; the forced path (disconnection) bypasses that
// check in handleForcedAdvance.
func (m *Match) HandleEndTurn(s *PlayerSession, correlation uint64) {
	m.mu.Lock()
	p := m.byConn[s.ConnID()]
	if m.over || p == nil {
		m.mu.Unlock()
		respond(s, message.MoveRejected(correlation, message.RejectMatchOver))
		return
	}
	if err := m.turns.RequireActive(p.Nickname); err != nil {
		m.mu.Unlock()
		respond(s, message.MoveRejected(correlation, message.RejectNotActivePlayer))
		return
	}
	prevIdx := m.turns.ActiveIndex()
	next, err := m.turns.EndTurn(false)
	if err != nil {
		m.mu.Unlock()
		respond(s, message.MoveRejected(correlation, message.RejectPrimaryMoveNotMade))
		return
	}
	finished, scores := m.noteAdvanceLocked(prevIdx)
	phase := m.phase
	m.mu.Unlock()

	respond(s, message.MoveAccepted(correlation, nil))
	if finished {
		m.finish(scores)
		return
	}
	m.Broadcast(message.SignalActivePlayer(next, phase))
}

// noteAdvanceLocked checks whether a completed turn advance ends the match:
// during the last round, the wrap back to the head of the order finishes it.
// Caller holds m.mu.
func (m *Match) noteAdvanceLocked(prevIdx int) (bool, map[string]int) {
	if !m.endgame || m.turns.ActiveIndex() > prevIdx {
		return false, nil
	}
	m.over = true
	return true, m.rules.Finish()
}

func (m *Match) finish(scores map[string]int) {
	m.log.WithField("scores", scores).Info("match finished")
	m.Broadcast(message.ScoreBoard(scores))
	m.events.MatchFinished(m.id, scores)
	m.registry.matchFinished(m)
}

// HandleDisconnect flags a participant as disconnected, keeps their roster
// seat, and force-advances the turn if it was theirs. Called exactly once
// per connection teardown.
func (m *Match) HandleDisconnect(s *PlayerSession) {
	m.mu.Lock()
	p := m.byConn[s.ConnID()]
	if p == nil || p.session != s || m.over {
		// A reconnection already replaced this binding, or the match is done.
		m.mu.Unlock()
		return
	}
	p.connected = false
	m.turns.SetConnected(p.Nickname, false)
	nickname := p.Nickname
	wasActive := m.turns.IsActive(nickname)
	unrecoverable := m.turns.ConnectedCount() == 0
	if unrecoverable {
		m.over = true
	}
	m.mu.Unlock()

	m.log.WithField("nickname", nickname).Info("participant disconnected")
	m.events.PlayerDisconnected(m.id, nickname)
	m.Broadcast(message.NotifyDisconnection(nickname))

	if unrecoverable {
		m.log.Warn("no connected participants remain, abandoning match")
		m.registry.matchAbandoned(m)
		return
	}
	if wasActive {
		m.handleForcedAdvance()
	}
}

func (m *Match) handleForcedAdvance() {
	m.mu.Lock()
	prevIdx := m.turns.ActiveIndex()
	next, err := m.turns.EndTurn(true)
	if err != nil {
		// Raced with the last remaining disconnect.
		m.over = true
		m.mu.Unlock()
		m.registry.matchAbandoned(m)
		return
	}
	finished, scores := m.noteAdvanceLocked(prevIdx)
	phase := m.phase
	m.mu.Unlock()

	if finished {
		m.finish(scores)
		return
	}
	m.Broadcast(message.SignalActivePlayer(next, phase))
}

// Reconnect re-binds a fresh connection to an existing disconnected
// participant. Turn state is left untouched.
func (m *Match) Reconnect(nickname string, s *PlayerSession) error {
	m.mu.Lock()
	p, ok := m.byNickname[nickname]
	if !ok || m.over {
		m.mu.Unlock()
		return errors.Errorf("no seat for %q", nickname)
	}
	if p.connected {
		m.mu.Unlock()
		return ErrNicknameInUse
	}
	delete(m.byConn, p.connID)
	p.session = s
	p.connID = s.ConnID()
	p.connected = true
	m.byConn[p.connID] = p
	m.turns.SetConnected(nickname, true)
	active := m.turns.Active()
	phase := m.phase
	m.mu.Unlock()

	if !s.bindNickname(nickname) || !s.bindMatch(m) {
		// The rejoining connection died before it was bound; undo the
		// rebinding the way any other disconnection would.
		m.HandleDisconnect(s)
		return nil
	}
	s.Send(message.ClientAccepted(nickname, true))
	s.Send(message.SignalActivePlayer(active, phase))
	m.BroadcastExcept(s, message.NotifyReconnection(nickname))
	m.events.PlayerReconnected(m.id, nickname)
	m.log.WithField("nickname", nickname).Info("participant reconnected")
	return nil
}
