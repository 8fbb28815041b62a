package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"renaissance/internal/network"
	"renaissance/internal/session/message"
)

func TestSendAndWaitDeliversMatchingResponse(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)
	w.onWrite = func(msg network.Message) {
		go s.OnMessage(nil, message.Response(msg.Type, msg.Correlation,
			message.LobbyCapacityPayload{Size: 2}))
	}

	resp, err := s.SendAndWait(message.RequestLobbyCapacity(), time.Second)
	require.NoError(t, err)
	require.Equal(t, message.TypeLobbyCapacity, resp.Type)

	var payload message.LobbyCapacityPayload
	require.NoError(t, resp.Decode(&payload))
	require.Equal(t, 2, payload.Size)
	require.Zero(t, s.calls.size(), "resolved calls leave the table")
}

func TestSendAndWaitTimesOut(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)

	start := time.Now()
	_, err := s.SendAndWait(message.RequestLobbyCapacity(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrRequestTimedOut)
	require.Less(t, time.Since(start), time.Second)
	require.Zero(t, s.calls.size(), "timed out calls leave the table")
}

func TestLateResponseAfterTimeoutIsDiscarded(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)

	_, err := s.SendAndWait(message.RequestLobbyCapacity(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrRequestTimedOut)

	// The straggler resolves nothing and must not panic or block.
	s.OnMessage(nil, message.Response(message.TypeLobbyCapacity, 1, nil))
	require.Zero(t, s.calls.size())
}

func TestConcurrentRequestsResolveByCorrelation(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)
	w.onWrite = func(msg network.Message) {
		// Echo the correlation back in the payload so each waiter can check
		// it got its own response.
		go s.OnMessage(nil, message.Response(msg.Type, msg.Correlation,
			message.LobbyCapacityPayload{Size: int(msg.Correlation)}))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.SendAndWait(message.RequestLobbyCapacity(), time.Second)
			require.NoError(t, err)
			var payload message.LobbyCapacityPayload
			require.NoError(t, resp.Decode(&payload))
			require.Equal(t, resp.Correlation, uint64(payload.Size))
		}()
	}
	wg.Wait()
	require.Zero(t, s.calls.size())
}

func TestCloseUnblocksWaiters(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)

	errs := make(chan error, 1)
	go func() {
		_, err := s.SendAndWait(message.RequestLobbyCapacity(), -1)
		errs <- err
	}()

	require.Eventually(t, func() bool { return s.calls.size() == 1 },
		time.Second, time.Millisecond)
	s.OnClose(nil)

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrRequestTimedOut)
	case <-time.After(time.Second):
		t.Fatal("waiter was not unblocked by teardown")
	}
}

func TestSendAndWaitOnClosedConnection(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)
	w.Close()

	_, err := s.SendAndWait(message.RequestLobbyCapacity(), time.Second)
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.Zero(t, s.calls.size())
}

func TestOnCloseIsIdempotent(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)

	s.OnClose(nil)
	s.OnClose(nil)
}

func TestUnknownCorrelatedRequestGetsRejection(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)

	s.dispatch(network.Message{
		Kind:        network.KindRequest,
		Type:        "no_such_command",
		Correlation: 7,
	})

	resp, ok := w.lastOfType(message.TypeMoveResponse)
	require.True(t, ok)
	require.Equal(t, uint64(7), resp.Correlation)

	var payload message.MoveResponsePayload
	require.NoError(t, resp.Decode(&payload))
	require.False(t, payload.OK)
	require.Equal(t, message.RejectUnknownCommand, payload.Rejection)
}

func TestKeepAliveIsSilentlyConsumed(t *testing.T) {
	w := newFakeWire(1)
	s := newPlayerSession(testRegistry(Options{}), w)

	s.dispatch(network.Message{Kind: network.KindNotification, Type: message.TypeKeepAlive})
	require.Empty(t, w.messages())
}
