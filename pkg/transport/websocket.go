// ABOUTME: WebSocket implementation of Channel and Dialer
// ABOUTME: Binary frames carry audio, text frames carry control messages
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/audiorouter/voicelink/pkg/protocol"
	"github.com/gorilla/websocket"
)

const (
	// Routing headers sent on the websocket upgrade
	HeaderAccount     = "account"
	HeaderRoom        = "room"
	HeaderParticipant = "participant"

	writeTimeout      = 5 * time.Second
	channelQueueDepth = 64
)

// WebSocketDialer dials the media router over a websocket
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer that identifies the participant in
// the upgrade request headers
func NewWebSocketDialer(url string, h protocol.Header) *WebSocketDialer {
	header := http.Header{}
	header.Set(HeaderAccount, h.Account)
	header.Set(HeaderRoom, h.Room)
	header.Set(HeaderParticipant, h.Participant)

	return &WebSocketDialer{
		URL:    url,
		Header: header,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 5 * time.Second,
		},
	}
}

// Dial opens the websocket
func (d *WebSocketDialer) Dial(ctx context.Context) (Channel, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s failed with status %d: %v", ErrChannel, d.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dial %s failed: %v", ErrChannel, d.URL, err)
	}

	return NewWebSocketChannel(conn), nil
}

type wsChannel struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	messages chan Message
	done     chan struct{}

	mu        sync.Mutex
	err       error
	closed    bool
	closeOnce sync.Once
}

// NewWebSocketChannel wraps an established connection, client or server side
func NewWebSocketChannel(conn *websocket.Conn) Channel {
	c := &wsChannel{
		conn:     conn,
		messages: make(chan Message, channelQueueDepth),
		done:     make(chan struct{}),
	}
	go c.readMessages()
	return c
}

func (c *wsChannel) readMessages() {
	defer close(c.messages)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = fmt.Errorf("%w: read: %v", ErrChannel, err)
			}
			c.mu.Unlock()
			return
		}

		var msg Message
		switch messageType {
		case websocket.BinaryMessage:
			msg = Message{Kind: Binary, Data: data}
		case websocket.TextMessage:
			msg = Message{Kind: Text, Data: data}
		default:
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *wsChannel) Send(kind MessageKind, data []byte) error {
	messageType := websocket.BinaryMessage
	if kind == Text {
		messageType = websocket.TextMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("%w: write: %v", ErrChannel, err)
	}
	return nil
}

func (c *wsChannel) Messages() <-chan Message {
	return c.messages
}

func (c *wsChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}
