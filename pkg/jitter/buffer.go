// ABOUTME: Adaptive playout buffer between the network and the audio callback
// ABOUTME: Steers occupancy toward a target by splicing arriving frames
package jitter

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "jitter")

// Buffer holds playback samples produced by the receive path and drained by
// a fixed-size pull from the audio callback. Occupancy checks and the
// mutations that depend on them happen under one lock.
type Buffer struct {
	mu      sync.Mutex
	config  Config
	splicer splicer

	midPoint  int
	maxSize   int
	sampleErr int

	samples []float32
	lastPCM int16
	primed  bool
	stats   Stats
}

// New creates a playout buffer
func New(config Config) (*Buffer, error) {
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	b := &Buffer{
		config: config,
		splicer: splicer{
			matchWin:  config.MatchWindow,
			searchWin: config.SearchWindow(),
			threshold: config.MatchThreshold,
		},
		midPoint:  config.MidPoint(),
		maxSize:   config.MaxSize(),
		sampleErr: config.SampleError(),
		samples:   make([]float32, 0, config.MaxSize()+config.SampleRate/10),
	}

	log.WithFields(logrus.Fields{
		"rate":        config.SampleRate,
		"mid_point":   b.midPoint,
		"max_size":    b.maxSize,
		"search_win":  b.splicer.searchWin,
		"sample_err":  b.sampleErr,
		"correcting":  !config.DisableCorrection,
		"match_win":   config.MatchWindow,
		"match_limit": config.MatchThreshold,
	}).Debug("Playout buffer created")

	return b, nil
}

// Write appends an arriving frame, splicing it first when occupancy has
// drifted more than SampleError from MidPoint. It returns the number of
// samples the splice added (positive) or removed (negative).
func (b *Buffer) Write(frame []int16) int {
	if len(frame) == 0 {
		return 0
	}

	work := make([]float64, len(frame), len(frame)+b.splicer.searchWin)
	for i, s := range frame {
		work[i] = float64(s)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delta := 0
	if !b.config.DisableCorrection {
		work, delta = b.correct(work)
	}

	for _, v := range work {
		b.samples = append(b.samples, pcmScaleToFloat(v))
	}
	b.lastPCM = roundPCM(work[len(work)-1])

	if len(b.samples) > b.maxSize {
		log.WithFields(logrus.Fields{
			"occupancy": len(b.samples),
			"max_size":  b.maxSize,
		}).Warn("Playout buffer overflow, flushing")
		b.flushLocked()
		b.stats.Flushes++
	}

	return delta
}

// correct must be called with b.mu held
func (b *Buffer) correct(work []float64) ([]float64, int) {
	offset := len(b.samples) - b.midPoint

	switch {
	case offset > b.sampleErr:
		b.stats.Overs++
		if len(work) < MinCorrectableFrame {
			return work, 0
		}
		b.stats.AttemptRemove++
		work, n, found := b.splicer.remove(work)
		b.stats.recordAttempt(found)
		b.stats.Removed += int64(n)
		return work, -n

	case offset < -b.sampleErr:
		b.stats.Unders++
		if len(work) < MinCorrectableFrame {
			return work, 0
		}
		b.stats.AttemptAdd++
		work, n, found := b.splicer.add(work)
		b.stats.recordAttempt(found)
		b.stats.Added += int64(n)
		return work, n
	}

	return work, 0
}

// Read fills out with buffered audio and returns how many samples came from
// the buffer; the rest of out is silence. Playback waits until MidPoint
// samples have accumulated, then runs until the buffer cannot fill a whole
// pull.
func (b *Buffer) Read(out []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	occupancy := len(b.samples)
	if occupancy == 0 || (!b.primed && occupancy < b.midPoint) {
		clear(out)
		return 0
	}

	if occupancy >= len(out) {
		b.primed = true
		n := copy(out, b.samples)
		b.consumeLocked(n)
		return n
	}

	n := copy(out, b.samples)
	clear(out[n:])
	b.consumeLocked(n)
	b.primed = false
	return n
}

func (b *Buffer) consumeLocked(n int) {
	remaining := copy(b.samples, b.samples[n:])
	b.samples = b.samples[:remaining]
}

func (b *Buffer) flushLocked() {
	b.samples = b.samples[:0]
	b.primed = false
}

// Flush discards all buffered audio
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Len returns the current occupancy in samples
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Primed reports whether playback has started since the last underrun
func (b *Buffer) Primed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.primed
}

// LastPCM returns the most recently appended sample in int16 scale, or 0
// when the buffer is empty. It seeds upsampling of the next frame.
func (b *Buffer) LastPCM() int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return 0
	}
	return b.lastPCM
}

// Stats returns a copy of the counters
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// SnapshotStats returns the counters and resets them to zero
func (b *Buffer) SnapshotStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	b.stats = Stats{}
	return s
}

// Config returns the effective configuration
func (b *Buffer) Config() Config {
	return b.config
}

// MidPoint returns the target occupancy in samples
func (b *Buffer) MidPoint() int { return b.midPoint }

// MaxSize returns the flush threshold in samples
func (b *Buffer) MaxSize() int { return b.maxSize }

// SampleError returns the tolerated distance from MidPoint
func (b *Buffer) SampleError() int { return b.sampleErr }

func pcmScaleToFloat(v float64) float32 {
	f := v / 32768
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return float32(f)
}

func roundPCM(v float64) int16 {
	r := math.Round(v)
	if r > math.MaxInt16 {
		return math.MaxInt16
	}
	if r < math.MinInt16 {
		return math.MinInt16
	}
	return int16(r)
}
