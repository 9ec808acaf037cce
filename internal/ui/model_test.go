// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and rendering
package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/audiorouter/voicelink/pkg/jitter"
	"github.com/audiorouter/voicelink/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil) // Controls are optional for testing

	if model.connected {
		t.Error("expected connected to be false initially")
	}

	if !model.micEnabled {
		t.Error("expected mic to be enabled initially")
	}

	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}

	if model.state != transport.Disconnected {
		t.Errorf("expected Disconnected state, got %v", model.state)
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{
		Connected: &connected,
		ServerURL: "ws://router:8930/audio",
	})

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}

	if model.serverURL != "ws://router:8930/audio" {
		t.Errorf("expected serverURL to be set, got '%s'", model.serverURL)
	}
}

func TestStatusMsgDisconnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected})

	disconnected := false
	model.applyStatus(StatusMsg{Connected: &disconnected})

	if model.connected {
		t.Error("expected connected to be false after disconnect")
	}
}

func TestStatusMsgExhaustedClearsOnReconnect(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{Exhausted: true})
	if !model.exhausted {
		t.Fatal("expected exhausted to be set")
	}

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected})
	if model.exhausted {
		t.Error("expected exhausted to clear after connecting")
	}
}

func TestStatusMsgState(t *testing.T) {
	model := NewModel(nil)

	state := transport.Connecting
	model.applyStatus(StatusMsg{State: &state})

	if model.state != transport.Connecting {
		t.Errorf("expected Connecting, got %v", model.state)
	}
}

func TestStatusMsgRTT(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{RTT: 42 * time.Millisecond})

	if model.rtt != 42*time.Millisecond {
		t.Errorf("expected rtt 42ms, got %v", model.rtt)
	}
}

func TestStatusMsgStats(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{Stats: &StatsUpdate{
		BufferDepth:    1440,
		BufferMs:       30,
		Buffer:         jitter.Stats{Added: 48, Removed: 96, SuccessRate: 50},
		TxPackets:      100,
		RxPackets:      95,
		Dropped:        3,
		RateMismatches: 2,
	}})

	if model.bufferDepth != 1440 {
		t.Errorf("expected bufferDepth 1440, got %d", model.bufferDepth)
	}

	if model.bufferMs != 30 {
		t.Errorf("expected bufferMs 30, got %d", model.bufferMs)
	}

	if model.buffer.Added != 48 || model.buffer.Removed != 96 {
		t.Errorf("unexpected buffer stats %+v", model.buffer)
	}

	if model.txPackets != 100 || model.rxPackets != 95 {
		t.Errorf("expected tx 100 rx 95, got tx %d rx %d", model.txPackets, model.rxPackets)
	}

	if model.holdOffMs != 30 {
		t.Errorf("expected holdOffMs to keep its default, got %d", model.holdOffMs)
	}
}

func TestStatusMsgRuntimeStats(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		Goroutines: 12,
		MemAlloc:   1 << 20,
		MemSys:     4 << 20,
	})

	if model.goroutines != 12 {
		t.Errorf("expected goroutines 12, got %d", model.goroutines)
	}

	if model.memAlloc != 1<<20 || model.memSys != 4<<20 {
		t.Error("expected memory stats to be set")
	}
}

func TestStatusMsgZeroValues(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{Connected: &connected, Room: "standup", RTT: time.Millisecond})

	// An empty update must not clear anything
	model.applyStatus(StatusMsg{})

	if !model.connected || model.room != "standup" || model.rtt != time.Millisecond {
		t.Error("empty status message changed the model")
	}
}

func TestMicKeySendsToggle(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)

	updated, _ := model.Update(key("m"))
	model = updated.(Model)

	if model.micEnabled {
		t.Error("expected mic to be disabled after pressing m")
	}

	select {
	case enabled := <-controls.Mic:
		if enabled {
			t.Error("expected a disable request")
		}
	default:
		t.Fatal("expected a mic request")
	}
}

func TestMicStatusOverridesKeyState(t *testing.T) {
	model := NewModel(nil)

	disabled := false
	model.applyStatus(StatusMsg{MicEnabled: &disabled})

	if model.micEnabled {
		t.Error("expected mic disabled from status")
	}
}

func TestQuitKeyClosesQuit(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)

	_, cmd := model.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected a quit command")
	}

	select {
	case <-controls.Quit:
	default:
		t.Fatal("expected Quit to be closed")
	}

	// A second quit must not panic
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
}

func TestDebugToggle(t *testing.T) {
	model := NewModel(nil)

	updated, _ := model.Update(key("d"))
	model = updated.(Model)

	if !model.showDebug {
		t.Error("expected debug view after pressing d")
	}
}

func TestViewRenders(t *testing.T) {
	model := NewModel(nil)

	if model.View() != "Loading..." {
		t.Error("expected loading view before the first resize")
	}

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = updated.(Model)

	connected := true
	model.applyStatus(StatusMsg{
		Connected:   &connected,
		ServerURL:   "ws://router:8930/audio",
		Room:        "standup",
		Participant: "alice",
		RTT:         12 * time.Millisecond,
	})

	view := model.View()
	for _, want := range []string{"Connected to ws://router:8930/audio", "standup as alice", "12ms", "Mic:    on"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.length)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.length, result, tt.expected)
		}
	}
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		value, max int
		expected   string
	}{
		{0, 60, "░░░░░░░░░░"},
		{30, 60, "█████░░░░░"},
		{120, 60, "██████████"},
	}

	for _, tt := range tests {
		if got := renderBar(tt.value, tt.max, 10); got != tt.expected {
			t.Errorf("renderBar(%d, %d) = %q, want %q", tt.value, tt.max, got, tt.expected)
		}
	}
}

func TestFormatRTT(t *testing.T) {
	if got := formatRTT(0, false); got != "-" {
		t.Errorf("expected '-' when disconnected, got %q", got)
	}
	if got := formatRTT(0, true); got != "measuring" {
		t.Errorf("expected 'measuring', got %q", got)
	}
	if got := formatRTT(25*time.Millisecond, true); got != "25ms" {
		t.Errorf("expected '25ms', got %q", got)
	}
}
