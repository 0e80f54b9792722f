// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame sent to dashboard clients. Type names the
// payload shape so the frontend can route frames without sniffing.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Frame types broadcast on the state socket.
const (
	TypeState   = "state"
	TypeCommand = "command"
	TypeError   = "error"
)

// NewEnvelope encodes payload and wraps it in a typed frame.
func NewEnvelope(frameType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: frameType, Timestamp: time.Now().UTC(), Payload: data}, nil
}
