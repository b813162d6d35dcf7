package tonal

import (
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/pitchscope/algorithms/common"
)

// DefaultYINThreshold is the absolute CMND threshold admitting a lag as a
// period candidate.
const DefaultYINThreshold = 0.15

// YIN implements the estimator of de Cheveigné and Kawahara (2002): squared
// difference function, cumulative mean normalization, absolute threshold
// and parabolic refinement of the chosen lag.
//
// The working buffer has frameCapacity/2 entries and is rewritten in full on
// every call. A frame needs at least twice that many valid samples.
type YIN struct {
	threshold float64

	buffer  []float64
	samples []float64
	delta   []float64

	aperiodicity float64
}

// NewYIN creates an estimator for frames of frameCapacity samples.
func NewYIN(frameCapacity int, threshold float64) *YIN {
	w := max(frameCapacity/2, 0)
	return &YIN{
		threshold:    threshold,
		buffer:       make([]float64, w),
		aperiodicity: 1,
	}
}

func (y *YIN) Method() Method {
	return MethodYIN
}

// MinSamples is the valid sample count below which Estimate returns NoPitch
// without computing.
func (y *YIN) MinSamples() int {
	return 2 * len(y.buffer)
}

// Estimate runs the four YIN stages over samples.
func (y *YIN) Estimate(samples []int16, sampleRate int) Estimate {
	y.aperiodicity = 1

	w := len(y.buffer)
	// below three entries the scan range [2, w-2] is empty
	if w < 3 || len(samples) < 2*w || sampleRate <= 0 {
		return NoPitch
	}

	y.difference(samples)
	y.cumulativeMeanNormalize()

	tau := y.absoluteThreshold()
	if tau < 0 {
		return NoPitch
	}
	y.aperiodicity = y.buffer[tau]

	period := common.RefinePeak(y.buffer, tau)
	if period <= 0 {
		return NoPitch
	}
	return Pitch(float64(sampleRate) / period)
}

// Aperiodicity returns the normalized difference at the lag chosen by the
// last call (0 is perfectly periodic), or 1 when no lag was chosen.
func (y *YIN) Aperiodicity() float64 {
	return y.aperiodicity
}

// difference stores sum_i (x[i]-x[i+tau])^2 over i+tau < n at buffer[tau].
func (y *YIN) difference(samples []int16) {
	n := len(samples)
	y.samples = common.Int16ToFloat64(y.samples, samples)
	if cap(y.delta) < n {
		y.delta = make([]float64, n)
	}

	clear(y.buffer)
	x := y.samples
	for tau := 1; tau < len(y.buffer); tau++ {
		m := n - tau
		d := floats.SubTo(y.delta[:m], x[:m], x[tau:])
		y.buffer[tau] = floats.Dot(d, d)
	}
}

// cumulativeMeanNormalize rewrites buffer[tau] as d(tau) * tau / sum_{j<=tau} d(j).
func (y *YIN) cumulativeMeanNormalize() {
	y.buffer[0] = 1
	runningSum := 0.0
	for tau := 1; tau < len(y.buffer); tau++ {
		runningSum += y.buffer[tau]
		if runningSum == 0 {
			y.buffer[tau] = 1
			continue
		}
		y.buffer[tau] *= float64(tau) / runningSum
	}
}

// absoluteThreshold returns the first lag in [2, w-2] that dips below the
// threshold while still falling, walked forward to the bottom of that dip.
// It returns -1 when no lag qualifies.
func (y *YIN) absoluteThreshold() int {
	last := len(y.buffer) - 2
	for tau := 2; tau <= last; tau++ {
		if y.buffer[tau] < y.threshold && y.buffer[tau] < y.buffer[tau-1] {
			for tau < last && y.buffer[tau+1] < y.buffer[tau] {
				tau++
			}
			return tau
		}
	}
	return -1
}
