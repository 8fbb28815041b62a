package session

// TurnTracker owns whose turn it is, whether the one-chance primary move has
// been made this turn, and per-participant connectivity. It carries no lock:
// all mutation happens under the owning match's mutex, which also serializes
// it against roster changes.
type TurnTracker struct {
	order       []string
	active      int
	primaryMade bool
	connected   map[string]bool
}

func NewTurnTracker(order []string) *TurnTracker {
	connected := make(map[string]bool, len(order))
	for _, nickname := range order {
		connected[nickname] = true
	}
	return &TurnTracker{order: order, connected: connected}
}

// Active returns the nickname of the active participant.
func (t *TurnTracker) Active() string {
	return t.order[t.active]
}

// ActiveIndex returns the active participant's position in turn order.
func (t *TurnTracker) ActiveIndex() int {
	return t.active
}

// IsActive reports whether nickname holds the turn.
func (t *TurnTracker) IsActive(nickname string) bool {
	return t.order[t.active] == nickname
}

// RequireActive fails with ErrNotActivePlayer unless nickname holds the turn.
func (t *TurnTracker) RequireActive(nickname string) error {
	if !t.IsActive(nickname) {
		return ErrNotActivePlayer
	}
	return nil
}

// PrimaryMoveMade reports whether the one-chance move was spent this turn.
func (t *TurnTracker) PrimaryMoveMade() bool {
	return t.primaryMade
}

// MarkPrimaryMove spends the one-chance move for the current turn.
func (t *TurnTracker) MarkPrimaryMove() error {
	if t.primaryMade {
		return ErrPrimaryMoveAlreadyMade
	}
	t.primaryMade = true
	return nil
}

// SetConnected flags a participant's connectivity. The roster entry itself
// is retained so turn indices stay stable.
func (t *TurnTracker) SetConnected(nickname string, connected bool) {
	if _, ok := t.connected[nickname]; ok {
		t.connected[nickname] = connected
	}
}

// Connected reports nickname's connectivity flag.
func (t *TurnTracker) Connected(nickname string) bool {
	return t.connected[nickname]
}

// ConnectedCount returns how many participants are currently connected.
func (t *TurnTracker) ConnectedCount() int {
	n := 0
	for _, ok := range t.connected {
		if ok {
			n++
		}
	}
	return n
}

// EndTurn advances the turn to the next connected participant, wrapping
// around. Unless forced (disconnection of the active player), the turn
// cannot be passed before the primary move is made. With a single connected
// participant left, the wrap lands back on them and they stay active.
func (t *TurnTracker) EndTurn(forced bool) (string, error) {
	if !forced && !t.primaryMade {
		return "", ErrPrimaryMoveNotMade
	}
	n := len(t.order)
	for i := 1; i <= n; i++ {
		idx := (t.active + i) % n
		if t.connected[t.order[idx]] {
			t.active = idx
			t.primaryMade = false
			return t.order[idx], nil
		}
	}
	return "", ErrUnrecoverableSession
}
