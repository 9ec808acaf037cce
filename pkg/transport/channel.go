// ABOUTME: Duplex message channel abstraction under the session
// ABOUTME: Implemented by websocket connections and WebRTC data channels
package transport

import (
	"context"
	"errors"
)

// ErrChannel wraps failures of the underlying channel
var ErrChannel = errors.New("channel error")

// MessageKind distinguishes audio frames from control text
type MessageKind int

const (
	// Binary messages carry audio packets
	Binary MessageKind = iota
	// Text messages carry control messages
	Text
)

func (k MessageKind) String() string {
	if k == Text {
		return "text"
	}
	return "binary"
}

// Message is one length-delimited frame received from a channel
type Message struct {
	Kind MessageKind
	Data []byte
}

// Channel is an ordered, message-oriented duplex link. Messages is closed
// when the channel ends; Err then reports why, or nil after Close.
type Channel interface {
	Send(kind MessageKind, data []byte) error
	Messages() <-chan Message
	Err() error
	Close() error
}

// Dialer opens a new Channel to the media router
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context) (Channel, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context) (Channel, error) {
	return f(ctx)
}
