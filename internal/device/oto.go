// ABOUTME: Oto playback device pulling from the client through io.Reader
// ABOUTME: Oto drives the pace; each Read pulls at most one frame of float32 samples
package device

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// Oto plays back through oto. It has no capture side; pair it with a
// capture-only Malgo or a file source.
type Oto struct {
	config Config

	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	reader *pullReader
	volume volume
}

// NewOto creates an oto playback device; nothing is opened until Start
func NewOto(config Config) (*Oto, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", config.SampleRate)
	}
	if config.Playback == nil {
		return nil, fmt.Errorf("oto device needs a playback source")
	}
	if config.Capture != nil {
		return nil, fmt.Errorf("oto device does not capture")
	}
	if config.FrameSize < 0 {
		return nil, fmt.Errorf("invalid frame size %d", config.FrameSize)
	}
	if config.FrameSize == 0 {
		config.FrameSize = defaultFrameSize
	}

	o := &Oto{config: config}
	o.volume.set(100)
	return o, nil
}

// Start creates the oto context and begins playback. Oto allows one
// context per process.
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   o.config.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.reader = newPullReader(o.config.Playback, &o.volume, o.config.FrameSize)
	o.player = ctx.NewPlayer(o.reader)
	// Oto otherwise requests half a second per read, more than the
	// playout buffer ever holds
	o.player.SetBufferSize(o.config.FrameSize * bytesPerSample)
	o.player.Play()

	log.WithFields(logrus.Fields{
		"rate":  o.config.SampleRate,
		"frame": o.config.FrameSize,
	}).Info("Audio device started (oto/F32 mono)")

	return nil
}

// SetVolume sets the playback volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.volume.set(volume)
}

// Close stops playback
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.WithError(err).Warn("Oto player close error")
		}
		o.player = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			log.WithError(err).Warn("Oto suspend error")
		}
	}
	return nil
}

// pullReader adapts a PullFunc to the io.Reader oto consumes
type pullReader struct {
	pull    PullFunc
	volume  *volume
	scratch []float32
}

func newPullReader(pull PullFunc, v *volume, frameSize int) *pullReader {
	return &pullReader{pull: pull, volume: v, scratch: make([]float32, frameSize)}
}

// Read fills p with at most one frame of whole float32 samples; it never
// blocks and never ends
func (r *pullReader) Read(p []byte) (int, error) {
	n := min(len(p)/bytesPerSample, len(r.scratch))
	if n == 0 {
		return 0, nil
	}
	samples := r.scratch[:n]
	r.pull(samples)
	r.volume.apply(samples)
	encodeFloat32LE(p, samples)
	return n * bytesPerSample, nil
}
