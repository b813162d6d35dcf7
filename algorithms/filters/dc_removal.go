// Package filters holds streaming sample-domain filters applied ahead of
// pitch estimation.
package filters

import (
	"math"
)

// DefaultDCPole gives a cutoff of roughly 35 Hz at 44.1 kHz, below the
// lowest admissible pitch.
const DefaultDCPole = 0.995

// DCBlocker removes the DC offset from 16-bit frames with the one-pole
// high-pass y[n] = x[n] - x[n-1] + R*y[n-1]. State carries across frames so
// consecutive frames filter as one stream.
//
// References:
//   - Julius O. Smith III, "Introduction to Digital Filters with Audio Applications"
//     https://ccrma.stanford.edu/~jos/filters/DC_Blocker.html
type DCBlocker struct {
	pole float64

	x1 float64
	y1 float64
}

// NewDCBlocker returns a blocker with pole location pole (0 < R < 1).
// Out-of-range values fall back to DefaultDCPole.
func NewDCBlocker(pole float64) *DCBlocker {
	if pole <= 0 || pole >= 1 {
		pole = DefaultDCPole
	}
	return &DCBlocker{pole: pole}
}

// NewDCBlockerWithCutoff derives the pole from a -3 dB cutoff using the
// small angle approximation R = 1 - 2*pi*fc/fs.
func NewDCBlockerWithCutoff(sampleRate int, cutoffHz float64) *DCBlocker {
	if sampleRate <= 0 || cutoffHz <= 0 {
		return NewDCBlocker(DefaultDCPole)
	}
	pole := 1.0 - 2.0*math.Pi*cutoffHz/float64(sampleRate)
	return NewDCBlocker(min(max(pole, 0.001), 0.999))
}

// Apply filters src into dst and returns the filled prefix, growing dst
// when too short. Output is rounded and clipped to the int16 range.
func (dc *DCBlocker) Apply(dst, src []int16) []int16 {
	if cap(dst) < len(src) {
		dst = make([]int16, len(src))
	}
	dst = dst[:len(src)]

	for i, s := range src {
		x := float64(s)
		y := x - dc.x1 + dc.pole*dc.y1
		dc.x1 = x
		dc.y1 = y
		dst[i] = clip(y)
	}
	return dst
}

// Reset clears the filter state.
func (dc *DCBlocker) Reset() {
	dc.x1 = 0
	dc.y1 = 0
}

// Pole returns the pole location R.
func (dc *DCBlocker) Pole() float64 {
	return dc.pole
}

// CutoffHz is the approximate -3 dB cutoff at sampleRate.
func (dc *DCBlocker) CutoffHz(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return (1 - dc.pole) * float64(sampleRate) / (2 * math.Pi)
}

func clip(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
