// ABOUTME: Bubbletea model for the voice client TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/audiorouter/voicelink/pkg/jitter"
	"github.com/audiorouter/voicelink/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
)

const boxWidth = 54

// Model represents the TUI state
type Model struct {
	controls *Controls

	// Connection
	connected   bool
	state       transport.State
	serverURL   string
	room        string
	participant string
	rtt         time.Duration
	lastEvent   string
	exhausted   bool

	// Audio
	micEnabled     bool
	bufferDepth    int
	bufferMs       int
	holdOffMs      int
	buffer         jitter.Stats
	rateMismatches int64

	// Traffic
	txPackets int64
	rxPackets int64
	dropped   int64

	// Debug
	showDebug  bool
	goroutines int
	memAlloc   uint64
	memSys     uint64

	// Dimensions
	width  int
	height int
}

// StatusMsg updates TUI state; zero fields leave the model unchanged
// unless noted
type StatusMsg struct {
	Connected   *bool
	State       *transport.State
	ServerURL   string
	Room        string
	Participant string
	RTT         time.Duration
	Event       string
	Exhausted   bool
	MicEnabled  *bool

	// Stats is applied as a whole when set
	Stats *StatsUpdate

	Goroutines int
	MemAlloc   uint64
	MemSys     uint64
}

// StatsUpdate carries periodic buffer and traffic numbers
type StatsUpdate struct {
	BufferDepth    int
	BufferMs       int
	HoldOffMs      int
	Buffer         jitter.Stats
	TxPackets      int64
	RxPackets      int64
	Dropped        int64
	RateMismatches int64
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderAudio())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func line(format string, args ...any) string {
	return fmt.Sprintf("│ %-*s │\n", boxWidth-4, truncate(fmt.Sprintf(format, args...), boxWidth-4))
}

// renderHeader renders connection status
func (m Model) renderHeader() string {
	status := m.state.String()
	if m.connected {
		status = fmt.Sprintf("Connected to %s", m.serverURL)
	}
	if m.exhausted {
		status = "Gave up reconnecting"
	}

	s := "┌─ voicelink ────────────────────────────────────────┐\n"
	s += line("Status: %s", status)
	s += line("Room:   %s as %s", m.room, m.participant)
	s += line("RTT:    %s", formatRTT(m.rtt, m.connected))
	if m.lastEvent != "" {
		s += line("Event:  %s", m.lastEvent)
	}
	s += "├────────────────────────────────────────────────────┤\n"
	return s
}

// renderAudio renders mic and buffer state
func (m Model) renderAudio() string {
	mic := "on"
	if !m.micEnabled {
		mic = "muted"
	}

	s := line("Mic:    %s", mic)
	s += line("Buffer: [%s] %dms (%d samples)",
		renderBar(m.bufferMs, 2*max(m.holdOffMs, 1), 10), m.bufferMs, m.bufferDepth)
	return s
}

// renderStats renders buffer corrections and traffic
func (m Model) renderStats() string {
	s := "├────────────────────────────────────────────────────┤\n"
	s += line("Splice: +%d -%d  ok %.0f%%", m.buffer.Added, m.buffer.Removed, m.buffer.SuccessRate)
	s += line("Drift:  over %d  under %d  flush %d", m.buffer.Overs, m.buffer.Unders, m.buffer.Flushes)
	s += line("Net/s:  TX %d  RX %d  bad %d", m.txPackets, m.rxPackets, m.dropped)
	if m.rateMismatches > 0 {
		s += line("Rate:   %d packets skipped", m.rateMismatches)
	}
	return s
}

// renderDebug renders runtime information
func (m Model) renderDebug() string {
	s := line("DEBUG:")
	s += line("  Goroutines: %d", m.goroutines)
	s += line("  Memory: %.1fMB alloc / %.1fMB sys",
		float64(m.memAlloc)/(1<<20), float64(m.memSys)/(1<<20))
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return line("m:Mic  d:Debug  q:Quit") +
		"└────────────────────────────────────────────────────┘\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			m.controls.requestQuit()
		}
		return m, tea.Quit
	case "m":
		m.micEnabled = !m.micEnabled
		if m.controls != nil {
			m.controls.sendMic(m.micEnabled)
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
		if m.connected {
			m.exhausted = false
		}
	}
	if msg.State != nil {
		m.state = *msg.State
	}
	if msg.ServerURL != "" {
		m.serverURL = msg.ServerURL
	}
	if msg.Room != "" {
		m.room = msg.Room
	}
	if msg.Participant != "" {
		m.participant = msg.Participant
	}
	if msg.RTT != 0 {
		m.rtt = msg.RTT
	}
	if msg.Event != "" {
		m.lastEvent = msg.Event
	}
	if msg.Exhausted {
		m.exhausted = true
	}
	if msg.MicEnabled != nil {
		m.micEnabled = *msg.MicEnabled
	}
	if msg.Stats != nil {
		st := msg.Stats
		m.bufferDepth = st.BufferDepth
		m.bufferMs = st.BufferMs
		if st.HoldOffMs != 0 {
			m.holdOffMs = st.HoldOffMs
		}
		m.buffer = st.Buffer
		m.txPackets = st.TxPackets
		m.rxPackets = st.RxPackets
		m.dropped = st.Dropped
		m.rateMismatches = st.RateMismatches
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
		m.memSys = msg.MemSys
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

func formatRTT(rtt time.Duration, connected bool) string {
	if !connected {
		return "-"
	}
	if rtt == 0 {
		return "measuring"
	}
	return fmt.Sprintf("%dms", rtt.Milliseconds())
}
