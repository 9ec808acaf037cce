// ABOUTME: Tests for control message types
// ABOUTME: Verifies ping/pong framing and parsing
package protocol

import (
	"encoding/json"
	"testing"
)

func TestProbeMessageMarshaling(t *testing.T) {
	data, err := NewProbeMessage(MessageTypePing, 1700000000123)
	if err != nil {
		t.Fatalf("failed to build probe: %v", err)
	}

	expected := `{"type":"ping","payload":{"timeStart":1700000000123}}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}

	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if msg.Type != MessageTypePing {
		t.Errorf("expected type ping, got %s", msg.Type)
	}

	probe, err := msg.ParseProbe()
	if err != nil {
		t.Fatalf("failed to parse probe: %v", err)
	}
	if probe.TimeStart != 1700000000123 {
		t.Errorf("expected timeStart 1700000000123, got %d", probe.TimeStart)
	}
}

func TestParseMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "hello"},
		{"missing type", `{"payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseProbeWithoutPayload(t *testing.T) {
	msg := Message{Type: MessageTypePong}
	if _, err := msg.ParseProbe(); err == nil {
		t.Error("expected error for missing payload")
	}

	msg.Payload = json.RawMessage(`"nope"`)
	if _, err := msg.ParseProbe(); err == nil {
		t.Error("expected error for malformed payload")
	}
}
