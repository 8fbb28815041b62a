package session

// Lobby capacity bounds. A capacity of one is a solo game against the clock,
// kept for parity with the original ruleset.
const (
	minCapacity = 1
	maxCapacity = 4
)

type lobbyState int

const (
	lobbyEmpty       lobbyState = iota
	lobbyNegotiating            // waiting for the first joiner to pick a size
	lobbyFilling                // capacity agreed, appending joiners
)

// Lobby buffers registered sessions until the negotiated capacity is
// reached. It is a passive state machine: the Registry's mutex guards every
// transition, and the blocking capacity exchange happens outside any lock.
// A full lobby is drained and replaced with a fresh instance, so late
// arrivals never interleave with a started match.
type Lobby struct {
	state      lobbyState
	capacity   int
	negotiator *PlayerSession
	players    []*PlayerSession
	backlog    []*PlayerSession // joiners that arrived mid-negotiation
}

func newLobby() *Lobby {
	return &Lobby{}
}

// beginNegotiation marks s as the joiner that decides the capacity.
func (l *Lobby) beginNegotiation(s *PlayerSession) {
	l.state = lobbyNegotiating
	l.negotiator = s
}

// settleCapacity applies an agreed size: the negotiator and any backlog
// become the player list and the lobby starts filling.
func (l *Lobby) settleCapacity(size int) {
	l.capacity = size
	l.players = append([]*PlayerSession{l.negotiator}, l.backlog...)
	l.negotiator = nil
	l.backlog = nil
	l.state = lobbyFilling
}

// failNegotiation evicts the stalled negotiator. If someone is queued behind
// them, negotiation restarts with that joiner; otherwise the lobby empties.
// Returns the promoted joiner, if any.
func (l *Lobby) failNegotiation() *PlayerSession {
	l.negotiator = nil
	if len(l.backlog) > 0 {
		next := l.backlog[0]
		l.backlog = l.backlog[1:]
		l.beginNegotiation(next)
		return next
	}
	l.state = lobbyEmpty
	return nil
}

// add appends a joiner according to the current state. Callers never add the
// very first joiner through here; that goes via beginNegotiation.
func (l *Lobby) add(s *PlayerSession) {
	if l.state == lobbyNegotiating {
		l.backlog = append(l.backlog, s)
		return
	}
	l.players = append(l.players, s)
}

// full reports whether the agreed capacity has been reached.
func (l *Lobby) full() bool {
	return l.state == lobbyFilling && len(l.players) >= l.capacity
}

// drain removes and returns the starting batch; any surplus backlog joins
// the replacement lobby.
func (l *Lobby) drain() (batch, surplus []*PlayerSession) {
	batch = l.players[:l.capacity]
	surplus = l.players[l.capacity:]
	l.players = nil
	l.state = lobbyEmpty
	return batch, surplus
}

// remove drops a session that disconnected while waiting.
func (l *Lobby) remove(s *PlayerSession) {
	for i, queued := range l.players {
		if queued == s {
			l.players = append(l.players[:i], l.players[i+1:]...)
			return
		}
	}
	for i, queued := range l.backlog {
		if queued == s {
			l.backlog = append(l.backlog[:i], l.backlog[i+1:]...)
			return
		}
	}
}
