// ABOUTME: Audio device interface and shared helpers
// ABOUTME: Float32 byte packing, volume and capture frame assembly
package device

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	bytesPerSample   = 4
	defaultFrameSize = 512
)

var log = logrus.WithField("component", "device")

// PullFunc fills out with playback samples and returns how many were real
// audio; voicelink.Client.Read satisfies it
type PullFunc func(out []float32) int

// PushFunc receives one captured frame; voicelink.Client.Write satisfies it
type PushFunc func(frame []float32) error

// Device is a running audio backend
type Device interface {
	// Start begins capture and/or playback
	Start() error

	// SetVolume sets the playback volume (0-100)
	SetVolume(volume int)

	// Close stops the device and releases its resources
	Close() error
}

// Config describes a mono float32 device
type Config struct {
	SampleRate int

	// FrameSize is the capture frame length handed to Capture and the
	// largest single playback pull
	FrameSize int

	// Playback is pulled from the audio callback; nil disables playback
	Playback PullFunc

	// Capture receives frames off the audio thread; nil disables capture
	Capture PushFunc
}

// volume holds a playback gain shared with the audio callback
type volume struct {
	level atomic.Int32
}

func (v *volume) set(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	v.level.Store(int32(level))
}

func (v *volume) apply(samples []float32) {
	level := v.level.Load()
	if level == 100 {
		return
	}
	gain := float32(level) / 100
	for i := range samples {
		samples[i] *= gain
	}
}

// encodeFloat32LE packs samples into dst, which must hold 4 bytes per sample
func encodeFloat32LE(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*bytesPerSample:], math.Float32bits(s))
	}
}

// decodeFloat32LE unpacks whole samples from src into dst and returns the
// count
func decodeFloat32LE(dst []float32, src []byte) int {
	n := min(len(dst), len(src)/bytesPerSample)
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*bytesPerSample:]))
	}
	return n
}

// frameAssembler regroups callback-sized capture chunks into fixed frames
type frameAssembler struct {
	size    int
	pending []float32
}

func newFrameAssembler(size int) *frameAssembler {
	return &frameAssembler{size: size, pending: make([]float32, 0, size*2)}
}

// add appends samples and calls emit with a fresh slice for every complete
// frame
func (a *frameAssembler) add(samples []float32, emit func([]float32)) {
	a.pending = append(a.pending, samples...)
	for len(a.pending) >= a.size {
		frame := make([]float32, a.size)
		copy(frame, a.pending)
		emit(frame)
		a.pending = a.pending[:copy(a.pending, a.pending[a.size:])]
	}
}

// captureQueue moves frames from the audio thread to a pushing goroutine,
// dropping frames when the consumer falls behind
type captureQueue struct {
	frames  chan []float32
	push    PushFunc
	dropped atomic.Int64
	done    chan struct{}
}

func newCaptureQueue(push PushFunc, depth int) *captureQueue {
	q := &captureQueue{
		frames: make(chan []float32, depth),
		push:   push,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *captureQueue) offer(frame []float32) {
	select {
	case q.frames <- frame:
	default:
		q.dropped.Add(1)
	}
}

func (q *captureQueue) run() {
	defer close(q.done)
	for frame := range q.frames {
		if err := q.push(frame); err != nil {
			log.WithError(err).Debug("Capture push failed")
		}
	}
}

// close stops accepting frames and waits for the pusher to drain
func (q *captureQueue) close() {
	close(q.frames)
	<-q.done
	if n := q.dropped.Load(); n > 0 {
		log.WithField("dropped", n).Warn("Capture frames dropped")
	}
}
