// Package bot is a headless client used for load tests and manual matches. It
// registers a nickname, answers the server's setup requests and plays a fixed
// legal move whenever it holds the turn.
package bot

import (
	"math/rand"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"renaissance/internal/network"
	"renaissance/internal/session/message"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

type client struct {
	ws          *websocket.Conn
	nickname    string
	capacity    int
	next        uint64
	pendingMove uint64 // correlation of the move awaiting its response
	rng         *rand.Rand
	log         logrus.FieldLogger
}

// Run connects to the server at addr and plays until the match ends or the
// connection drops.
func Run(addr, nickname string, capacity int) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "dial failed")
	}
	defer ws.Close()

	c := &client{
		ws:       ws,
		nickname: nickname,
		capacity: capacity,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logger.WithField("nickname", nickname),
	}
	if err := c.write(message.Request(message.TypeSetupConnection, message.SetupConnectionPayload{Nickname: nickname})); err != nil {
		return err
	}
	return c.loop()
}

func (c *client) write(msg network.Message) error {
	return errors.Wrap(c.ws.WriteJSON(msg), "write failed")
}

func (c *client) loop() error {
	for {
		var msg network.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return errors.Wrap(err, "read failed")
		}
		done, err := c.handle(msg)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (c *client) handle(msg network.Message) (bool, error) {
	switch msg.Type {
	case message.TypeClientAccepted:
		c.log.Info("registered")
	case message.TypeNicknameUnavailable:
		return true, errors.New("nickname already in use")
	case message.TypeLobbyCapacity:
		return false, c.write(message.Response(message.TypeLobbyCapacity, msg.Correlation,
			message.LobbyCapacityPayload{Size: c.capacity}))
	case message.TypeInitialSelection:
		var req message.InitialSelectionRequestPayload
		if err := msg.Decode(&req); err != nil {
			return true, err
		}
		picks := req.Options
		if len(picks) > req.Picks {
			picks = picks[:req.Picks]
		}
		return false, c.write(message.Response(message.TypeInitialSelection, msg.Correlation,
			message.InitialSelectionResponsePayload{Resources: picks}))
	case message.TypeGameStarted:
		c.log.Info("match started")
	case message.TypeSignalActivePlayer:
		var sig message.SignalActivePlayerPayload
		if err := msg.Decode(&sig); err != nil {
			return true, err
		}
		if sig.Nickname == c.nickname {
			return false, c.playTurn()
		}
	case message.TypeMoveResponse:
		if msg.Correlation != c.pendingMove {
			return false, nil
		}
		c.pendingMove = network.NoCorrelation
		var resp message.MoveResponsePayload
		if err := msg.Decode(&resp); err != nil {
			return true, err
		}
		if !resp.OK {
			c.log.WithField("rejection", resp.Rejection).Warn("move rejected")
		}
		return false, c.write(message.Request(message.TypeEndTurn, nil))
	case message.TypeScoreBoard:
		var board message.ScoreBoardPayload
		if err := msg.Decode(&board); err != nil {
			return true, err
		}
		c.log.WithField("scores", board.Scores).Info("match finished")
		return true, nil
	}
	return false, nil
}

// playTurn draws a random market line. A draw is always legal, so the follow
// up end_turn sent on the move response cannot be rejected for a missing
// primary move.
func (c *client) playTurn() error {
	line := "row"
	limit := 3
	if c.rng.Intn(2) == 0 {
		line = "column"
		limit = 4
	}
	mv := message.Request(message.TypeMarketDraw, map[string]any{
		"line":  line,
		"index": c.rng.Intn(limit),
	})
	mv.Correlation = c.nextCorrelation()
	c.pendingMove = mv.Correlation
	return c.write(mv)
}

func (c *client) nextCorrelation() uint64 {
	c.next++
	return c.next
}
