// ABOUTME: Transport package for the binary audio channel
// ABOUTME: Channel implementations plus the reconnecting session
// Package transport carries audio packets between a client and the media
// router.
//
// A Channel is any ordered, message-oriented duplex link: a websocket
// (WebSocketDialer) or an already negotiated WebRTC data channel
// (DataChannelDialer). A Session owns one Channel at a time and runs the
// connection state machine:
//
//	Disconnected -> Connecting -> Open -> Disconnected -> (retry) ...
//	                                   -> Closing -> Closed
//
// After an unexpected disconnect the session retries every ReconnectDelay.
// The first failure only arms reconnection; every later consecutive failure
// spends one of ReconnectAttempts, and when none are left a
// ReconnectExhausted event is emitted. A successful open restores the full
// budget. While Open, a ping carrying the send time goes out every
// ProbeInterval and each pong yields a Latency event.
//
// Example:
//
//	s, err := transport.NewSession(transport.Config{
//	    Dialer: transport.NewWebSocketDialer("ws://router:8930/audio", header),
//	    Header: header,
//	})
//	s.Open()
//	for e := range s.Events() { ... }
package transport
