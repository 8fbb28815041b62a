// Package events publishes match lifecycle events for external consumers
// (spectator feeds, matchmaking stats). The core never depends on delivery.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger().WithField("component", "events")

const (
	SubjectMatchStarted       = "renaissance.match.started"
	SubjectMatchFinished      = "renaissance.match.finished"
	SubjectPlayerDisconnected = "renaissance.player.disconnected"
	SubjectPlayerReconnected  = "renaissance.player.reconnected"
)

// Publisher emits lifecycle events. Implementations must never block the
// session layer on broker availability.
type Publisher interface {
	MatchStarted(matchID string, players []string)
	MatchFinished(matchID string, scores map[string]int)
	PlayerDisconnected(matchID, nickname string)
	PlayerReconnected(matchID, nickname string)
	Close()
}

type matchEvent struct {
	MatchID  string         `json:"match_id"`
	Players  []string       `json:"players,omitempty"`
	Nickname string         `json:"nickname,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
	At       time.Time      `json:"at"`
}

// NatsPublisher publishes events to a NATS broker.
type NatsPublisher struct {
	nc *nats.Conn
}

// NewNats connects to the broker at url.
func NewNats(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect to nats failed")
	}
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) publish(subject string, event matchEvent) {
	event.At = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("marshal event failed")
		return
	}
	// Publish is async on the client; a send failure is logged, never
	// surfaced to gameplay.
	if err := p.nc.Publish(subject, data); err != nil {
		logger.WithField("subject", subject).WithError(err).Warn("publish failed")
	}
}

func (p *NatsPublisher) MatchStarted(matchID string, players []string) {
	p.publish(SubjectMatchStarted, matchEvent{MatchID: matchID, Players: players})
}

func (p *NatsPublisher) MatchFinished(matchID string, scores map[string]int) {
	p.publish(SubjectMatchFinished, matchEvent{MatchID: matchID, Scores: scores})
}

func (p *NatsPublisher) PlayerDisconnected(matchID, nickname string) {
	p.publish(SubjectPlayerDisconnected, matchEvent{MatchID: matchID, Nickname: nickname})
}

func (p *NatsPublisher) PlayerReconnected(matchID, nickname string) {
	p.publish(SubjectPlayerReconnected, matchEvent{MatchID: matchID, Nickname: nickname})
}

func (p *NatsPublisher) Close() {
	p.nc.Drain()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func NewNop() NopPublisher { return NopPublisher{} }

func (NopPublisher) MatchStarted(string, []string)        {}
func (NopPublisher) MatchFinished(string, map[string]int) {}
func (NopPublisher) PlayerDisconnected(string, string)    {}
func (NopPublisher) PlayerReconnected(string, string)     {}
func (NopPublisher) Close()                               {}
