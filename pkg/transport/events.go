// ABOUTME: Session states, events and sentinel errors
// ABOUTME: Events form a closed set delivered on the session's event channel
package transport

import (
	"errors"
	"time"
)

var (
	// ErrConfiguration reports a missing or invalid construction parameter
	ErrConfiguration = errors.New("configuration error")

	// ErrReconnectExhausted is reported once every reconnect attempt failed
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrClosed is returned by operations on a closed session
	ErrClosed = errors.New("session closed")
)

// State is the connection state of a session
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is emitted by a session on state changes and probe results
type Event interface {
	isEvent()
}

// Connected is emitted when the channel opens
type Connected struct {
	ConnectionID string
}

// Disconnect is emitted when an open channel closes or fails
type Disconnect struct {
	Err error
}

// Latency reports the round trip time of a liveness probe
type Latency struct {
	RTT time.Duration
}

// ReconnectExhausted is emitted once when reconnection gives up
type ReconnectExhausted struct{}

func (Connected) isEvent()          {}
func (Disconnect) isEvent()         {}
func (Latency) isEvent()            {}
func (ReconnectExhausted) isEvent() {}
