package network

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrConnClosed is returned by Write once the underlying transport is gone.
// Callers convert it into a disconnection event; it never escapes as a crash.
var ErrConnClosed = errors.New("connection closed")

const writeWait = 10 * time.Second

// Handler receives the traffic of a single connection. OnMessage is invoked
// from the read loop in arrival order; whether a message is handled inline or
// on its own goroutine is the handler's call. OnClose fires exactly once.
type Handler interface {
	OnMessage(c *Conn, msg Message)
	OnClose(c *Conn)
}

// Conn wraps one websocket connection with a dedicated write pump, so writes
// never interleave, and a read loop that feeds the Handler. The numeric ID is
// stable for the lifetime of the connection attempt and is what a reconnecting
// participant is re-bound by.
type Conn struct {
	id      uint64
	ws      *websocket.Conn
	send    chan Message
	closed  chan struct{}
	once    sync.Once
	handler Handler

	heartbeat time.Duration // ping period, must be shorter than idle
	idle      time.Duration // read deadline; no traffic for this long kills the conn
}

func newConn(id uint64, ws *websocket.Conn, heartbeat, idle time.Duration) *Conn {
	return &Conn{
		id:        id,
		ws:        ws,
		send:      make(chan Message, 32),
		closed:    make(chan struct{}),
		heartbeat: heartbeat,
		idle:      idle,
	}
}

// ID returns the opaque connection identity.
func (c *Conn) ID() uint64 { return c.id }

// RemoteAddr reports the peer address, for logging only.
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// Write queues msg for the write pump. It fails with ErrConnClosed after the
// connection has been torn down rather than blocking forever.
func (c *Conn) Write(msg Message) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return ErrConnClosed
	}
}

// Close tears the connection down. Safe to call from any goroutine and from
// the read loop itself; the handler is notified exactly once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.ws.Close()
		if c.handler != nil {
			c.handler.OnClose(c)
		}
	})
}

func (c *Conn) readLoop() {
	defer c.Close()

	c.ws.SetReadLimit(MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.idle))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.idle))
		return nil
	})

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithFields(logrus.Fields{
					"conn":   c.id,
					"remote": c.ws.RemoteAddr().String(),
				}).WithError(err).Warn("read failed")
			}
			return
		}
		// Any application traffic counts as liveness, not just pongs.
		c.ws.SetReadDeadline(time.Now().Add(c.idle))
		c.handler.OnMessage(c, msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				logger.WithField("conn", c.id).WithError(err).Warn("write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
