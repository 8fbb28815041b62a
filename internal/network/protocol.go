package network

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind classifies a message envelope for routing: requests and notifications
// go to the command layer, responses resolve a pending call.
type Kind string

const (
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindNotification Kind = "notification"
)

// NoCorrelation marks a fire-and-forget message. Correlation IDs handed out
// by the session layer start at 1, so the zero value is never ambiguous.
const NoCorrelation uint64 = 0

// Message is the envelope for all traffic on a connection. Type routes the
// payload, Payload stays raw JSON so each handler decodes its own shape.
type Message struct {
	Kind        Kind            `json:"kind"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Correlation uint64          `json:"correlation,omitempty"`
}

// MaxMessageSize bounds a single inbound frame. Anything larger is treated
// as a protocol violation and the connection is dropped.
const MaxMessageSize = 64 * 1024

// IsResponse reports whether the message resolves a pending call.
func (m Message) IsResponse() bool {
	return m.Kind == KindResponse
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return errors.New("empty payload")
	}
	return errors.Wrap(json.Unmarshal(m.Payload, v), "decode payload failed")
}
