// ABOUTME: Control message type definitions
// ABOUTME: Text frames used for liveness probing alongside binary audio
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// MessageTypePing asks the peer to echo a timestamp
	MessageTypePing = "ping"
	// MessageTypePong echoes a ping's timestamp
	MessageTypePong = "pong"
)

// Message is the top-level wrapper for all control messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Probe is the payload of ping and pong messages
type Probe struct {
	TimeStart int64 `json:"timeStart"` // sender clock, milliseconds since epoch
}

// NewProbeMessage builds a ping or pong text frame
func NewProbeMessage(msgType string, timeStart int64) ([]byte, error) {
	payload, err := json.Marshal(Probe{TimeStart: timeStart})
	if err != nil {
		return nil, fmt.Errorf("failed to encode probe: %w", err)
	}
	return json.Marshal(Message{Type: msgType, Payload: payload})
}

// ParseMessage decodes a control text frame
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse control message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("control message has no type")
	}
	return &msg, nil
}

// ParseProbe decodes the payload of a ping or pong
func (m *Message) ParseProbe() (Probe, error) {
	var p Probe
	if len(m.Payload) == 0 {
		return p, fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to parse %s payload: %w", m.Type, err)
	}
	return p, nil
}
