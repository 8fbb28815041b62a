package network

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// echoAcceptor serves every connection with a handler that echoes messages
// back and records teardown.
type echoAcceptor struct {
	closed chan uint64
}

func (a *echoAcceptor) Accept(c *Conn) Handler {
	return &echoHandler{acceptor: a}
}

type echoHandler struct {
	acceptor *echoAcceptor
}

func (h *echoHandler) OnMessage(c *Conn, msg Message) {
	c.Write(msg)
}

func (h *echoHandler) OnClose(c *Conn) {
	h.acceptor.closed <- c.ID()
}

func startTestServer(t *testing.T) (*httptest.Server, *echoAcceptor) {
	t.Helper()
	acceptor := &echoAcceptor{closed: make(chan uint64, 8)}
	srv := NewServer(acceptor, 50*time.Millisecond, time.Second)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, acceptor
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws
}

func TestServerRoundTrip(t *testing.T) {
	ts, _ := startTestServer(t)
	ws := dial(t, ts)
	defer ws.Close()

	sent := Message{
		Kind:        KindRequest,
		Type:        "echo",
		Payload:     []byte(`{"n":1}`),
		Correlation: 3,
	}
	require.NoError(t, ws.WriteJSON(sent))

	var got Message
	require.NoError(t, ws.ReadJSON(&got))
	require.Equal(t, sent.Kind, got.Kind)
	require.Equal(t, sent.Type, got.Type)
	require.Equal(t, sent.Correlation, got.Correlation)
	require.JSONEq(t, string(sent.Payload), string(got.Payload))
}

func TestServerAssignsDistinctConnIDs(t *testing.T) {
	ts, acceptor := startTestServer(t)

	first := dial(t, ts)
	second := dial(t, ts)
	first.Close()
	second.Close()

	ids := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-acceptor.closed:
			require.NotZero(t, id)
			ids[id] = true
		case <-time.After(time.Second):
			t.Fatal("teardown was not observed")
		}
	}
	require.Len(t, ids, 2)
}

func TestServerNotifiesCloseExactlyOnce(t *testing.T) {
	ts, acceptor := startTestServer(t)
	ws := dial(t, ts)
	ws.Close()

	select {
	case <-acceptor.closed:
	case <-time.After(time.Second):
		t.Fatal("teardown was not observed")
	}
	select {
	case <-acceptor.closed:
		t.Fatal("OnClose fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIdleConnectionIsTornDown(t *testing.T) {
	acceptor := &echoAcceptor{closed: make(chan uint64, 1)}
	srv := NewServer(acceptor, 50*time.Millisecond, 200*time.Millisecond)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ws := dial(t, ts)
	defer ws.Close()
	// Swallow the server's pings instead of answering them, so the idle
	// deadline sees no liveness at all.
	ws.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-acceptor.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection was not torn down")
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}

func TestConnWriteAfterClose(t *testing.T) {
	ts, _ := startTestServer(t)
	ws := dial(t, ts)
	defer ws.Close()

	c := newConn(99, ws, time.Second, time.Second)
	c.Close()
	require.ErrorIs(t, c.Write(Message{Type: "late"}), ErrConnClosed)
}
