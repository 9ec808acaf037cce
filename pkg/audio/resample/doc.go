// ABOUTME: Audio resampling package
// ABOUTME: Fixed 2:1 network conversion plus a general linear resampler
// Package resample provides audio sample rate conversion.
//
// Downsample and Upsample implement the fixed 2:1 conversion between the
// capture rate and the network rate. Resampler is a general linear
// interpolator used to bring file sources to the capture rate.
//
// Example:
//
//	net := resample.Downsample(captured)       // 48 kHz float -> 24 kHz int16
//	play := resample.Upsample(net, lastSample) // 24 kHz -> 48 kHz
//
//	r := resample.New(44100, 48000, 1)
//	n := r.Resample(input, output)
package resample
