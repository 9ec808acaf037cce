// ABOUTME: Fixed 2:1 rate conversion between the capture rate and the network rate
// ABOUTME: Decimates on send and linearly interpolates on receive
package resample

import "github.com/audiorouter/voicelink/pkg/audio"

// Downsample halves the rate of a playback-domain frame by keeping every
// second sample and converts the result to network PCM.
func Downsample(frame []float32) []int16 {
	out := make([]int16, len(frame)/2)
	for i := range out {
		out[i] = audio.FloatToPCM(frame[i*2])
	}
	return out
}

// Upsample doubles the rate of a network frame. Each input sample v1 yields
// floor((v0+v1)/2) followed by v1, where v0 is the previous input sample.
// prev seeds v0 for the first sample of the frame.
func Upsample(in []int16, prev int16) []int16 {
	out := make([]int16, 0, len(in)*2)
	v0 := int32(prev)
	for _, s := range in {
		v1 := int32(s)
		out = append(out, int16((v0+v1)>>1), s)
		v0 = v1
	}
	return out
}

// Upsampler carries the interpolation seed across frames for callers that
// do not keep a playout buffer.
type Upsampler struct {
	last int16
}

// Process upsamples one frame, continuing from the previous call
func (u *Upsampler) Process(in []int16) []int16 {
	out := Upsample(in, u.last)
	if len(in) > 0 {
		u.last = in[len(in)-1]
	}
	return out
}

// Reset forgets the carried seed
func (u *Upsampler) Reset() {
	u.last = 0
}
