// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Brings file sources to the capture rate using linear interpolation
package resample

// Resampler performs linear interpolation between arbitrary sample rates
// on interleaved float samples. Interpolation continues across calls.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastFrame  []float32 // one sample per channel, from the previous call
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels < 1 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]float32, channels),
	}
}

// Resample converts interleaved input at inputRate into output at outputRate
// and returns the number of samples written. The last input frame is kept so
// the next call interpolates across the chunk boundary.
func (r *Resampler) Resample(input []float32, output []float32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}

	if r.inputRate == r.outputRate {
		n := copy(output, input[:inputFrames*r.channels])
		copy(r.lastFrame, input[(inputFrames-1)*r.channels:])
		return n
	}

	// frame returns the input frame at idx, where idx -1 is the carried frame
	frame := func(idx, ch int) float32 {
		if idx < 0 {
			return r.lastFrame[ch]
		}
		return input[idx*r.channels+ch]
	}

	// The carried frame sits at position -1 once primed
	offset := 0.0
	if r.primed {
		offset = 1.0
	}

	outputFrames := len(output) / r.channels
	outIdx := 0
	for outIdx < outputFrames {
		pos := r.position - offset
		idx := int(pos)
		if pos < 0 {
			idx = -1
		}
		if idx+1 >= inputFrames {
			break
		}

		frac := float32(pos - float64(idx))
		for ch := 0; ch < r.channels; ch++ {
			s1 := frame(idx, ch)
			s2 := frame(idx+1, ch)
			output[outIdx*r.channels+ch] = s1*(1-frac) + s2*frac
		}

		outIdx++
		r.position += r.ratio
	}

	// Rebase so the last input frame becomes position 0 of the next call
	r.position -= offset + float64(inputFrames-1)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:])
	r.primed = true

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames)/r.ratio) + 1
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
