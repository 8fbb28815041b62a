package network

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger().WithField("component", "network")

// Acceptor is implemented by the session layer. Accept is called once per
// upgraded connection and returns the Handler that owns it from then on.
type Acceptor interface {
	Accept(c *Conn) Handler
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server accepts websocket connections indefinitely and spawns one Conn per
// client. There is no backpressure: any number of pre-registration sessions
// may exist at once. Upgrade failures are logged and serving continues.
type Server struct {
	acceptor  Acceptor
	heartbeat time.Duration
	idle      time.Duration
	nextID    atomic.Uint64
}

func NewServer(acceptor Acceptor, heartbeat, idle time.Duration) *Server {
	return &Server{
		acceptor:  acceptor,
		heartbeat: heartbeat,
		idle:      idle,
	}
}

// Handler returns the HTTP mux serving the websocket endpoint plus a health
// probe for the service registry.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Listen serves until the HTTP server fails. Blocking.
func (s *Server) Listen(address string) error {
	logger.WithField("address", address).Info("listening")
	return http.ListenAndServe(address, s.Handler())
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("upgrade failed")
		return
	}

	conn := newConn(s.nextID.Add(1), ws, s.heartbeat, s.idle)
	conn.handler = s.acceptor.Accept(conn)
	logger.WithFields(logrus.Fields{
		"conn":   conn.ID(),
		"remote": ws.RemoteAddr().String(),
	}).Info("connection accepted")

	go conn.writePump()
	go conn.readLoop()
}
