// ABOUTME: Media router package
// ABOUTME: Room-scoped packet relay for local testing
// Package router implements a small media-routing server.
//
// Participants connect over a websocket at /audio and identify themselves
// with the account, room and participant upgrade headers. Every well-formed
// audio packet is relayed unchanged to the other participants of the same
// account and room; malformed packets are dropped and pings are answered.
//
// Example:
//
//	srv := router.NewServer(router.Config{Port: 8930, Loopback: true})
//	go srv.Start()
//	defer srv.Stop()
package router
