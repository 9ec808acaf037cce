// ABOUTME: WebRTC data channel implementation of Channel and Dialer
// ABOUTME: Wraps an already negotiated pion data channel
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DataChannel is the subset of *webrtc.DataChannel the session uses
type DataChannel interface {
	OnOpen(f func())
	OnClose(f func())
	OnError(f func(err error))
	OnMessage(f func(msg webrtc.DataChannelMessage))
	Send(data []byte) error
	SendText(s string) error
	Close() error
	ReadyState() webrtc.DataChannelState
	Label() string
}

var _ DataChannel = (*webrtc.DataChannel)(nil)

// DataChannelDialer turns a data channel into a session Channel. Open is
// called on every dial and must return a fresh data channel; signaling and
// peer negotiation happen outside this package.
type DataChannelDialer struct {
	Open func(ctx context.Context) (DataChannel, error)
}

// NewPeerConnectionDialer creates ordered data channels with the given
// label on an existing peer connection
func NewPeerConnectionDialer(pc *webrtc.PeerConnection, label string) *DataChannelDialer {
	return &DataChannelDialer{
		Open: func(ctx context.Context) (DataChannel, error) {
			ordered := true
			dc, err := pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
			if err != nil {
				return nil, err
			}
			return dc, nil
		},
	}
}

// Dial opens a data channel and waits for it to reach the open state
func (d *DataChannelDialer) Dial(ctx context.Context) (Channel, error) {
	if d.Open == nil {
		return nil, fmt.Errorf("%w: data channel dialer has no Open func", ErrConfiguration)
	}

	dc, err := d.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create data channel: %v", ErrChannel, err)
	}

	c := newDataChannel(dc)

	if dc.ReadyState() == webrtc.DataChannelStateOpen {
		return c, nil
	}

	select {
	case <-c.opened:
		return c, nil
	case <-c.ended:
		return nil, c.Err()
	case <-ctx.Done():
		_ = c.Close()
		return nil, fmt.Errorf("%w: data channel %q did not open: %v", ErrChannel, dc.Label(), ctx.Err())
	}
}

type dataChannel struct {
	dc       DataChannel
	messages chan Message
	opened   chan struct{}
	ended    chan struct{}

	mu        sync.Mutex
	err       error
	closed    bool
	sendMu    sync.RWMutex // held for reading while delivering into messages
	openOnce  sync.Once
	endOnce   sync.Once
	closeOnce sync.Once
}

func newDataChannel(dc DataChannel) *dataChannel {
	c := &dataChannel{
		dc:       dc,
		messages: make(chan Message, channelQueueDepth),
		opened:   make(chan struct{}),
		ended:    make(chan struct{}),
	}

	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.opened) })
	})
	dc.OnClose(func() {
		c.end(nil)
	})
	dc.OnError(func(err error) {
		c.end(err)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m := Message{Kind: Binary, Data: msg.Data}
		if msg.IsString {
			m.Kind = Text
		}

		c.sendMu.RLock()
		defer c.sendMu.RUnlock()
		select {
		case <-c.ended:
			return
		default:
		}
		select {
		case c.messages <- m:
		case <-c.ended:
		}
	})

	return c
}

// end marks the channel finished and closes messages once no callback is
// delivering into it
func (c *dataChannel) end(cause error) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		if !c.closed {
			if cause != nil {
				c.err = fmt.Errorf("%w: %v", ErrChannel, cause)
			} else {
				c.err = fmt.Errorf("%w: data channel %q closed by peer", ErrChannel, c.dc.Label())
			}
		}
		c.mu.Unlock()

		close(c.ended)
		c.sendMu.Lock()
		close(c.messages)
		c.sendMu.Unlock()
	})
}

func (c *dataChannel) Send(kind MessageKind, data []byte) error {
	var err error
	if kind == Text {
		err = c.dc.SendText(string(data))
	} else {
		err = c.dc.Send(data)
	}
	if err != nil {
		return fmt.Errorf("%w: send: %v", ErrChannel, err)
	}
	return nil
}

func (c *dataChannel) Messages() <-chan Message {
	return c.messages
}

func (c *dataChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *dataChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.dc.Close()
		c.end(nil)
	})
	return err
}
