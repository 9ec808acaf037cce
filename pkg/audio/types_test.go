// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion functions
package audio

import "testing"

func TestPCMToFloat(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected float32
	}{
		{"zero", 0, 0},
		{"half", 16384, 0.5},
		{"negative half", -16384, -0.5},
		{"min", -32768, -1},
		{"max", 32767, 32767.0 / 32768.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PCMToFloat(tt.input)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestFloatToPCM(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"zero", 0, 0},
		{"full scale", 1, 32767},
		{"negative full scale", -1, -32767},
		{"clamp high", 1.5, 32767},
		{"clamp low", -2, -32768},
		{"rounds", 0.5, 16384}, // 16383.5 rounds away from zero
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FloatToPCM(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestSliceConversions(t *testing.T) {
	pcm := []int16{0, 16384, -16384}
	floats := make([]float32, 2)

	if n := PCMSliceToFloat(floats, pcm); n != 2 {
		t.Fatalf("expected 2 samples converted, got %d", n)
	}
	if floats[1] != 0.5 {
		t.Errorf("expected 0.5, got %v", floats[1])
	}

	back := make([]int16, 4)
	if n := FloatSliceToPCM(back, floats); n != 2 {
		t.Fatalf("expected 2 samples converted, got %d", n)
	}
	if back[1] != 16384 {
		t.Errorf("expected 16384, got %d", back[1])
	}
}

func TestIntToFloat(t *testing.T) {
	tests := []struct {
		name     string
		sample   int32
		bitDepth int
		expected float32
	}{
		{"16-bit half", 16384, 16, 0.5},
		{"24-bit max", Max24Bit, 24, float32(Max24Bit) / 8388608},
		{"24-bit min", Min24Bit, 24, -1},
		{"8-bit half", 64, 8, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IntToFloat(tt.sample, tt.bitDepth)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestSilence(t *testing.T) {
	buf := []float32{0.1, -0.2, 0.3}
	if IsSilent(buf) {
		t.Fatal("expected non-silent buffer")
	}
	Silence(buf)
	if !IsSilent(buf) {
		t.Errorf("expected silent buffer, got %v", buf)
	}
}

func TestFormatSamplesFor(t *testing.T) {
	f := Format{SampleRate: 8000, Channels: 1}
	if got := f.SamplesFor(30); got != 240 {
		t.Errorf("expected 240, got %d", got)
	}
}
