// ABOUTME: Real-time pacing of a source into capture-sized frames
// ABOUTME: Resamples to the capture rate and pushes one frame per period
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/audiorouter/voicelink/pkg/audio/resample"
)

// Framer cuts a Reader into fixed frames at a target rate
type Framer struct {
	reader    Reader
	resampler *resample.Resampler
	frameSize int
	in        []float32
	out       []float32
	pending   []float32
}

// NewFramer creates a framer producing frameSize samples at targetRate
func NewFramer(r Reader, targetRate, frameSize int) *Framer {
	res := resample.New(r.SampleRate(), targetRate, 1)
	chunk := res.InputSamplesNeeded(frameSize) + 1
	return &Framer{
		reader:    r,
		resampler: res,
		frameSize: frameSize,
		in:        make([]float32, chunk),
		out:       make([]float32, res.OutputSamplesNeeded(chunk)),
		pending:   make([]float32, 0, frameSize*2),
	}
}

// Next returns the next frame in a fresh slice
func (f *Framer) Next() ([]float32, error) {
	for len(f.pending) < f.frameSize {
		n, err := f.reader.Read(f.in)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("source produced no audio")
		}
		m := f.resampler.Resample(f.in[:n], f.out)
		f.pending = append(f.pending, f.out[:m]...)
	}

	frame := make([]float32, f.frameSize)
	copy(frame, f.pending)
	f.pending = f.pending[:copy(f.pending, f.pending[f.frameSize:])]
	return frame, nil
}

// Pump pushes one frame every frameSize/targetRate seconds until ctx ends or
// the source fails
func Pump(ctx context.Context, r Reader, targetRate, frameSize int, push func([]float32) error) error {
	framer := NewFramer(r, targetRate, frameSize)
	period := time.Duration(frameSize) * time.Second / time.Duration(targetRate)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame, err := framer.Next()
			if err != nil {
				return fmt.Errorf("audio source failed: %w", err)
			}
			if err := push(frame); err != nil {
				log.WithError(err).Debug("Push failed")
			}
		}
	}
}
