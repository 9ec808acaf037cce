// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and the int16 <-> float sample conversions
// Package audio provides the sample domains shared by the voicelink pipeline.
//
// Samples travel the network as signed 16-bit integers and are played back as
// normalized float32 values in [-1, 1]:
//
//	float = clamp(int16 / 32768, -1, 1)
//	int16 = clamp(round(float * 32767), -32768, 32767)
//
// Example:
//
//	f := audio.PCMToFloat(-16384) // -0.5
//	s := audio.FloatToPCM(0.5)    // 16384
package audio
