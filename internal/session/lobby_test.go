package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lobbySession(id uint64) *PlayerSession {
	return newPlayerSession(testRegistry(Options{}), newFakeWire(id))
}

func TestLobbyNegotiationThenFill(t *testing.T) {
	l := newLobby()
	first := lobbySession(1)

	l.beginNegotiation(first)
	require.Equal(t, lobbyNegotiating, l.state)

	l.settleCapacity(3)
	require.Equal(t, lobbyFilling, l.state)
	require.False(t, l.full(), "negotiator alone does not fill a lobby of three")

	l.add(lobbySession(2))
	require.False(t, l.full())
	l.add(lobbySession(3))
	require.True(t, l.full())

	batch, surplus := l.drain()
	require.Len(t, batch, 3)
	require.Empty(t, surplus)
	require.Equal(t, first, batch[0], "the negotiator goes first in turn order")
	require.Equal(t, lobbyEmpty, l.state)
}

func TestLobbyMidNegotiationJoinersAreBacklogged(t *testing.T) {
	l := newLobby()
	first := lobbySession(1)
	second := lobbySession(2)

	l.beginNegotiation(first)
	l.add(second)
	require.Empty(t, l.players, "joiners wait out the negotiation in the backlog")

	l.settleCapacity(2)
	require.True(t, l.full())

	batch, surplus := l.drain()
	require.Equal(t, []*PlayerSession{first, second}, batch)
	require.Empty(t, surplus)
}

func TestLobbyDrainReturnsSurplus(t *testing.T) {
	l := newLobby()
	first := lobbySession(1)
	l.beginNegotiation(first)
	second := lobbySession(2)
	third := lobbySession(3)
	l.add(second)
	l.add(third)
	l.settleCapacity(2)

	batch, surplus := l.drain()
	require.Equal(t, []*PlayerSession{first, second}, batch)
	require.Equal(t, []*PlayerSession{third}, surplus)
}

func TestLobbyFailedNegotiationPromotesBacklog(t *testing.T) {
	l := newLobby()
	first := lobbySession(1)
	second := lobbySession(2)

	l.beginNegotiation(first)
	l.add(second)

	next := l.failNegotiation()
	require.Equal(t, second, next)
	require.Equal(t, lobbyNegotiating, l.state)
	require.Equal(t, second, l.negotiator)
}

func TestLobbyFailedNegotiationEmptiesWithoutBacklog(t *testing.T) {
	l := newLobby()
	l.beginNegotiation(lobbySession(1))

	require.Nil(t, l.failNegotiation())
	require.Equal(t, lobbyEmpty, l.state)
}

func TestLobbyRemoveDropsWaiter(t *testing.T) {
	l := newLobby()
	first := lobbySession(1)
	second := lobbySession(2)
	third := lobbySession(3)

	l.beginNegotiation(first)
	l.settleCapacity(3)
	l.add(second)
	l.add(third)

	l.remove(second)
	require.Equal(t, []*PlayerSession{first, third}, l.players)

	// Removing from the backlog too.
	l2 := newLobby()
	l2.beginNegotiation(first)
	l2.add(second)
	l2.remove(second)
	require.Empty(t, l2.backlog)
}
