package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nitroshare/cmd/internal/ids"
)

// Protocol version and envelope types of the session event feed.
const (
	Version = 1

	TypeHello          = "hello"
	TypeHelloAck       = "hello.ack"
	TypeStateFetch     = "state.fetch"
	TypeSessionChanged = "session.changed"
	TypeError          = "error"
)

// inbound lists the types a client may send.
var inbound = map[string]struct{}{
	TypeHello:      {},
	TypeStateFetch: {},
}

// Envelope is the frame exchanged on the feed.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks an inbound envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := inbound[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	return nil
}

// HelloAckPayload answers a hello.
type HelloAckPayload struct {
	ConnID string `json:"conn_id"`
}

// SessionPayload describes the session state without the credential.
type SessionPayload struct {
	LoggedIn bool       `json:"logged_in"`
	UserID   int64      `json:"user_id,omitempty"`
	Username string     `json:"username,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
}

// ErrorPayload reports a rejected inbound envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(typ string, payload any, ts time.Time) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      ids.MustNew(ts),
		TS:      ts,
		Payload: raw,
	}
}
