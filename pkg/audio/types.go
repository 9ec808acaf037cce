// ABOUTME: Audio type definitions and sample conversions
// ABOUTME: Converts between network int16 PCM and normalized float playback samples
package audio

import "math"

const (
	// 24-bit audio range constants, used when narrowing hi-res file sources
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a mono or interleaved PCM stream
type Format struct {
	SampleRate int
	Channels   int
}

// SamplesFor returns how many samples per channel cover ms milliseconds
func (f Format) SamplesFor(ms int) int {
	return ms * f.SampleRate / 1000
}

// PCMToFloat converts a network sample to the playback domain, clamped to [-1, 1]
func PCMToFloat(sample int16) float32 {
	return clampFloat(float32(sample) / 32768)
}

// FloatToPCM converts a playback sample to the network domain with rounding and clamping
func FloatToPCM(sample float32) int16 {
	v := math.Round(float64(sample) * 32767)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// PCMSliceToFloat converts src into dst and returns the number of samples written
func PCMSliceToFloat(dst []float32, src []int16) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = PCMToFloat(src[i])
	}
	return n
}

// FloatSliceToPCM converts src into dst and returns the number of samples written
func FloatSliceToPCM(dst []int16, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = FloatToPCM(src[i])
	}
	return n
}

// IntToFloat normalizes a signed sample of the given bit depth to [-1, 1]
func IntToFloat(sample int32, bitDepth int) float32 {
	switch bitDepth {
	case 16:
		return PCMToFloat(int16(sample))
	case 24:
		return clampFloat(float32(sample) / 8388608)
	case 32:
		return clampFloat(float32(float64(sample) / 2147483648))
	}
	// Other depths (8, 20) are normalized by their own full-scale value
	return clampFloat(float32(float64(sample) / float64(int64(1)<<(bitDepth-1))))
}

// Silence zeroes buf
func Silence(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// IsSilent reports whether every sample in buf is exactly zero
func IsSilent(buf []float32) bool {
	for _, s := range buf {
		if s != 0 {
			return false
		}
	}
	return true
}

func clampFloat(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
