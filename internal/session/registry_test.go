package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"renaissance/internal/game"
	"renaissance/internal/network"
	"renaissance/internal/session/message"
)

func TestRegisterAcceptsAndJoinsLobby(t *testing.T) {
	r := testRegistry(Options{})
	s, w := newTestSession(r, 1, "ana", 2)

	require.Equal(t, "ana", s.Nickname())
	accepted, ok := w.lastOfType(message.TypeClientAccepted)
	require.True(t, ok)

	var payload message.ClientAcceptedPayload
	require.NoError(t, accepted.Decode(&payload))
	require.Equal(t, "ana", payload.Nickname)
	require.False(t, payload.Reconnected)

	// The first joiner was asked for the lobby capacity.
	capReq, ok := w.lastOfType(message.TypeLobbyCapacity)
	require.True(t, ok)
	require.Equal(t, network.KindRequest, capReq.Kind)
	require.NotZero(t, capReq.Correlation)
}

func TestRegisterRejectsNicknameInUse(t *testing.T) {
	r := testRegistry(Options{})
	newTestSession(r, 1, "ana", 2)

	other := newFakeWire(2)
	dup := newPlayerSession(r, other)
	r.Register(dup, "ana")

	_, rejected := other.lastOfType(message.TypeNicknameUnavailable)
	require.True(t, rejected)
	require.False(t, other.isClosed(), "the connection survives a nickname conflict")
	require.Empty(t, dup.Nickname())
}

func TestLobbyFillStartsMatch(t *testing.T) {
	r := testRegistry(Options{})
	_, w1 := newTestSession(r, 1, "ana", 2)
	_, w2 := newTestSession(r, 2, "bob", 2)

	for _, w := range []*fakeWire{w1, w2} {
		require.Eventually(t, func() bool {
			_, ok := w.lastOfType(message.TypeGameStarted)
			return ok
		}, time.Second, time.Millisecond)
	}

	started, _ := w1.lastOfType(message.TypeGameStarted)
	var payload message.GameStartedPayload
	require.NoError(t, started.Decode(&payload))
	require.Equal(t, []string{"ana", "bob"}, payload.Players)
	require.NotEmpty(t, payload.MatchID)

	// The floor goes to the negotiator once setup completes.
	for _, w := range []*fakeWire{w1, w2} {
		require.Eventually(t, func() bool {
			sig, ok := w.lastOfType(message.TypeSignalActivePlayer)
			if !ok {
				return false
			}
			var active message.SignalActivePlayerPayload
			return sig.Decode(&active) == nil && active.Nickname == "ana"
		}, time.Second, time.Millisecond)
	}
}

func TestSurplusJoinerSeedsNextLobby(t *testing.T) {
	r := testRegistry(Options{})
	newTestSession(r, 1, "ana", 2)
	newTestSession(r, 2, "bob", 2)

	// The match is full; the third registrant negotiates a fresh lobby.
	_, w3 := newTestSession(r, 3, "cia", 2)
	capReq, ok := w3.lastOfType(message.TypeLobbyCapacity)
	require.True(t, ok)
	require.Equal(t, network.KindRequest, capReq.Kind)
	_, started := w3.lastOfType(message.TypeGameStarted)
	require.False(t, started)
}

func TestNegotiationTimeoutEvictsSilentJoiner(t *testing.T) {
	r := testRegistry(Options{NegotiationTimeout: 20 * time.Millisecond})
	w := newFakeWire(1)
	s := newPlayerSession(r, w)
	// No auto-responder: the capacity request goes unanswered.
	r.Register(s, "mute")

	require.True(t, w.isClosed(), "a stalled negotiator is evicted")

	r.mu.Lock()
	state := r.lobby.state
	r.mu.Unlock()
	require.Equal(t, lobbyEmpty, state)
}

func TestInvalidCapacityEvictsJoiner(t *testing.T) {
	r := testRegistry(Options{})
	w := newFakeWire(1)
	s := newPlayerSession(r, w)
	w.autoRespond(s, maxCapacity+1)
	r.Register(s, "greedy")

	require.Eventually(t, w.isClosed, time.Second, time.Millisecond)
}

func TestDisconnectDuringMatchCreationIsNotLost(t *testing.T) {
	rules := newStubRules()
	r := testRegistry(Options{NewRules: func([]string) game.Rules { return rules }})

	w1 := newFakeWire(1)
	s1 := newPlayerSession(r, w1)
	require.True(t, s1.bindNickname("ana"))
	w2 := newFakeWire(2)
	s2 := newPlayerSession(r, w2)
	w2.autoRespond(s2, 2)
	require.True(t, s2.bindNickname("bob"))
	r.mu.Lock()
	r.nicknames["ana"] = s1
	r.nicknames["bob"] = s2
	r.mu.Unlock()

	// ana's connection dies after the lobby drained but before the match
	// bound her session: her teardown found neither a match nor the lobby.
	s1.OnClose(nil)
	r.startMatch([]*PlayerSession{s1, s2})

	m := s2.currentMatch()
	require.NotNil(t, m)
	m.mu.Lock()
	anaConnected := m.turns.Connected("ana")
	bobActive := m.turns.IsActive("bob")
	over := m.over
	m.mu.Unlock()
	require.False(t, anaConnected, "the late teardown must reach the match")
	require.True(t, bobActive, "the floor moves past the dead seat")
	require.False(t, over)

	gone, ok := w2.lastOfType(message.TypeNotifyDisconnection)
	require.True(t, ok)
	var who message.NicknamePayload
	require.NoError(t, gone.Decode(&who))
	require.Equal(t, "ana", who.Nickname)

	// The seat stayed reserved and is reconnectable.
	w3 := newFakeWire(3)
	rejoin := newPlayerSession(r, w3)
	r.Register(rejoin, "ana")
	accepted, ok := w3.lastOfType(message.TypeClientAccepted)
	require.True(t, ok)
	var payload message.ClientAcceptedPayload
	require.NoError(t, accepted.Decode(&payload))
	require.True(t, payload.Reconnected)
}

func TestRegisterReleasesNicknameOfDeadConnection(t *testing.T) {
	r := testRegistry(Options{})
	w := newFakeWire(1)
	s := newPlayerSession(r, w)

	// Torn down before the nickname was bound; the teardown had nothing to
	// free, so registration must not leave the nickname held forever.
	s.OnClose(nil)
	r.Register(s, "ana")

	r.mu.Lock()
	_, held := r.nicknames["ana"]
	r.mu.Unlock()
	require.False(t, held)

	s2, _ := newTestSession(r, 2, "ana", 2)
	require.Equal(t, "ana", s2.Nickname())
}

func TestLobbyDisconnectFreesNickname(t *testing.T) {
	r := testRegistry(Options{})
	s, _ := newTestSession(r, 1, "ana", 2)
	s.OnClose(nil)

	// A new connection may claim the nickname again.
	s2, w2 := newTestSession(r, 2, "ana", 2)
	require.Equal(t, "ana", s2.Nickname())
	_, ok := w2.lastOfType(message.TypeClientAccepted)
	require.True(t, ok)
}
