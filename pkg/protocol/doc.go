// ABOUTME: Voicelink wire protocol package
// ABOUTME: Defines the binary audio packet and the text control messages
// Package protocol implements the voicelink wire format.
//
// Audio travels as binary frames: a compact JSON header naming the account,
// room, participant, sample count and network rate, a single newline, then
// the samples as little-endian int16:
//
//	{"acnt":"a1","rm":"lobby","ppt":"p7","cnt":256,"rate":24000}\n<512 bytes>
//
// Liveness probes travel as text frames:
//
//	{"type":"ping","payload":{"timeStart":1700000000000}}
//
// Example:
//
//	data, err := protocol.Encode(protocol.Header{Account: "a1", Room: "lobby", Participant: "p7", Rate: 24000}, samples)
//	pkt, err := protocol.Decode(data)
package protocol
