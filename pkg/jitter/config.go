// ABOUTME: Playout buffer configuration
// ABOUTME: Millisecond knobs and the sample counts derived from them
package jitter

import (
	"errors"
	"fmt"
)

const (
	DefaultHoldOffMs      = 30
	DefaultMaxBufferMs    = 200
	DefaultMatchWindow    = 8
	DefaultSearchWindowMs = 8
	DefaultMatchThreshold = 2.0

	// MinCorrectableFrame is the smallest frame a splice is attempted on
	MinCorrectableFrame = 64
)

// ErrInvalidConfig is returned by New for unusable settings
var ErrInvalidConfig = errors.New("invalid playout buffer config")

// Config holds playout buffer settings. Zero values take defaults,
// except SampleRate which is required.
//
// SampleRate is the rate of the samples handed to Write, which is the
// post-upsample playback rate, not the network rate. A client sending at
// 8000 Hz upsamples to 16000 Hz, so the default hold-off gives MidPoint 480.
type Config struct {
	SampleRate     int     // post-upsample playback rate
	HoldOffMs      int     // target occupancy
	MaxBufferMs    int     // occupancy above which the buffer is flushed
	MatchWindow    int     // samples compared per splice candidate
	SearchWindowMs int     // trailing part of a frame searched for a splice
	MatchThreshold float64 // summed absolute difference, int16 scale, that counts as a match

	// DisableCorrection appends frames without any splicing
	DisableCorrection bool
}

// DefaultConfig returns the stock settings for a sample rate
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:     sampleRate,
		HoldOffMs:      DefaultHoldOffMs,
		MaxBufferMs:    DefaultMaxBufferMs,
		MatchWindow:    DefaultMatchWindow,
		SearchWindowMs: DefaultSearchWindowMs,
		MatchThreshold: DefaultMatchThreshold,
	}
}

func (c Config) withDefaults() Config {
	if c.HoldOffMs == 0 {
		c.HoldOffMs = DefaultHoldOffMs
	}
	if c.MaxBufferMs == 0 {
		c.MaxBufferMs = DefaultMaxBufferMs
	}
	if c.MatchWindow == 0 {
		c.MatchWindow = DefaultMatchWindow
	}
	if c.SearchWindowMs == 0 {
		c.SearchWindowMs = DefaultSearchWindowMs
	}
	if c.MatchThreshold == 0 {
		c.MatchThreshold = DefaultMatchThreshold
	}
	return c
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.HoldOffMs < 0 || c.MaxBufferMs < 0 || c.SearchWindowMs < 0 || c.MatchWindow < 0 {
		return fmt.Errorf("%w: negative window", ErrInvalidConfig)
	}
	if c.MaxBufferMs < c.HoldOffMs {
		return fmt.Errorf("%w: max buffer %dms below hold-off %dms", ErrInvalidConfig, c.MaxBufferMs, c.HoldOffMs)
	}
	return nil
}

// MidPoint is the target occupancy in samples
func (c Config) MidPoint() int {
	return c.HoldOffMs * c.SampleRate / 1000
}

// MaxSize is the flush threshold in samples
func (c Config) MaxSize() int {
	return c.MaxBufferMs * c.SampleRate / 1000
}

// SearchWindow is the splice search window in samples
func (c Config) SearchWindow() int {
	return c.SearchWindowMs * c.SampleRate / 1000
}

// SampleError is the tolerated distance from MidPoint before correcting
func (c Config) SampleError() int {
	return c.MidPoint() / 2
}
