// ABOUTME: Adaptive playout buffer package
// ABOUTME: Absorbs network jitter without a fixed large playback delay
// Package jitter implements the receive-side playout buffer.
//
// Frames arrive from the network at irregular times and are drained by an
// audio callback at a fixed rate. Instead of holding a large static delay,
// the buffer aims for a small target occupancy (MidPoint). When an arriving
// frame finds occupancy too low or too high, the buffer looks for a point in
// the frame's tail where the waveform repeats itself and duplicates or drops
// the stretch between the two similar points, blending the seam. Voice is
// strongly periodic, so the splice is inaudible and the pitch is unchanged.
//
// Example:
//
//	buf, err := jitter.New(jitter.DefaultConfig(48000))
//	buf.Write(frame)  // receive path, int16 samples at 48 kHz
//	buf.Read(out)     // audio callback, float32 samples
package jitter
