// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the voice client UI
package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Controls carries user actions from the TUI to the application
type Controls struct {
	Mic  chan bool
	Quit chan struct{}

	quitOnce sync.Once
}

// NewControls creates a control channel set
func NewControls() *Controls {
	return &Controls{
		Mic:  make(chan bool, 10),
		Quit: make(chan struct{}),
	}
}

func (c *Controls) sendMic(enabled bool) {
	select {
	case c.Mic <- enabled:
	default:
	}
}

func (c *Controls) requestQuit() {
	c.quitOnce.Do(func() { close(c.Quit) })
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		controls:   controls,
		micEnabled: true,
		holdOffMs:  30,
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
