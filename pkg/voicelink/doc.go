// ABOUTME: Voice client package
// ABOUTME: Capture in, playback out, router in between
// Package voicelink connects a capture/playback pair to a media router.
//
// Captured frames at the capture rate go in through Write, are decimated to
// the network rate and sent as packets. Packets relayed by the router are
// interpolated back to the capture rate and queued in an adaptive playout
// buffer that Read drains from the playback callback.
//
// Example:
//
//	c, err := voicelink.NewClient(voicelink.Config{
//	    ServerURL:   "ws://localhost:8930/audio",
//	    Account:     "acme",
//	    Room:        "standup",
//	    Participant: "alice",
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	c.Open(ctx)
//
//	// capture callback
//	c.Write(frame)
//
//	// playback callback
//	c.Read(out)
package voicelink
