// ABOUTME: Waveform-similarity splicing used to grow or shrink a frame
// ABOUTME: Finds a self-similar point in the frame tail and duplicates or drops a period
package jitter

import "math"

// splicer works on frames in int16 scale held as float64 so blended samples
// keep their fractional mean.
type splicer struct {
	matchWin  int
	searchWin int
	threshold float64
}

// window returns a copy of the trailing search window of frame and its offset
func (s splicer) window(frame []float64) ([]float64, int) {
	start := 0
	if len(frame) > s.searchWin {
		start = len(frame) - s.searchWin
	}
	win := make([]float64, len(frame)-start)
	copy(win, frame[start:])
	return win, start
}

// findMatch compares win[ref:ref+matchWin] against win[i:i+matchWin] for i
// stepping from start towards end (exclusive). The first candidate whose
// summed absolute difference stays under threshold wins; -1 if none.
func (s splicer) findMatch(win []float64, start, end, step, ref int) int {
	for i := start; i != end; i += step {
		sum := 0.0
		for j := 0; j < s.matchWin; j++ {
			sum += math.Abs(win[ref+j] - win[i+j])
			if sum > s.threshold {
				break
			}
		}
		if sum < s.threshold {
			return i
		}
	}
	return -1
}

// add lengthens frame by repeating the stretch of the search window that
// follows a match for its tail. It returns the frame, the samples added and
// whether a match was found.
func (s splicer) add(frame []float64) ([]float64, int, bool) {
	win, _ := s.window(frame)
	n := len(win)
	mw := s.matchWin
	end := n - 2*mw
	if mw <= 0 || end <= 0 {
		return frame, 0, false
	}

	idx := s.findMatch(win, 0, end, 1, n-mw)
	if idx < 0 {
		return frame, 0, false
	}

	tail := len(frame) - mw
	for k := 0; k < mw; k++ {
		frame[tail+k] = 0.5 * (frame[tail+k] + win[idx+k])
	}
	dup := win[idx+mw:]
	frame = append(frame, dup...)

	return frame, len(dup), true
}

// remove shortens frame by dropping the head of the search window up to a
// match for that head, blending the new seam with the dropped samples.
func (s splicer) remove(frame []float64) ([]float64, int, bool) {
	win, start := s.window(frame)
	n := len(win)
	mw := s.matchWin
	first := n - mw
	if mw <= 0 || first <= mw {
		return frame, 0, false
	}

	idx := s.findMatch(win, first, mw, -1, 0)
	if idx < 0 {
		return frame, 0, false
	}

	for k := 0; k < mw; k++ {
		frame[start+idx+k] = 0.5 * (win[k] + win[idx+k])
	}
	frame = append(frame[:start], frame[start+idx:]...)

	return frame, idx, true
}
