package tonal

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/pitchscope/algorithms/common"
	"github.com/RyanBlaney/pitchscope/algorithms/spectral"
)

// DefaultMinStrength is the correlation floor on raw 16-bit products. It
// must be re-derived if samples are ever rescaled.
const DefaultMinStrength = 1e9

// AutocorrelationParams configures the lag search.
type AutocorrelationParams struct {
	// MinFreq and MaxFreq bound the detectable band and set the closed lag
	// range [sampleRate/MaxFreq, sampleRate/MinFreq].
	MinFreq float64 `yaml:"min_freq"`
	MaxFreq float64 `yaml:"max_freq"`

	// MinStrength rejects peaks whose raw correlation sum is below it.
	MinStrength float64 `yaml:"min_strength"`

	// UseFFT computes the lag sums through the frequency domain. The result
	// matches the direct sums to floating-point accuracy.
	UseFFT bool `yaml:"use_fft"`
}

// DefaultAutocorrelationParams returns a search over roughly 50-1000 Hz.
func DefaultAutocorrelationParams() AutocorrelationParams {
	return AutocorrelationParams{
		MinFreq:     50,
		MaxFreq:     1000,
		MinStrength: DefaultMinStrength,
	}
}

// Autocorrelation estimates pitch as sampleRate/L for the lag L maximizing
// sum_i x[i]*x[i+L]. The search is unnormalized, so shorter lags are
// favoured; callers rely on the lag bounds and a band filter to contain
// octave errors.
//
// Cost is O((maxLag-minLag) * n) in direct mode and dominates the pipeline.
type Autocorrelation struct {
	params AutocorrelationParams
	fft    *spectral.FFT

	scratch      []float64
	lastStrength float64
}

// NewAutocorrelation creates an estimator with the given parameters.
func NewAutocorrelation(params AutocorrelationParams) *Autocorrelation {
	return &Autocorrelation{
		params: params,
		fft:    spectral.NewFFT(),
	}
}

// LagRange converts a frequency band into the closed lag range searched at
// sampleRate. minLag is at least 1.
func LagRange(sampleRate int, minFreq, maxFreq float64) (minLag, maxLag int) {
	minLag = 1
	if maxFreq > 0 {
		minLag = max(1, int(float64(sampleRate)/maxFreq))
	}
	maxLag = math.MaxInt32
	if minFreq > 0 {
		maxLag = int(float64(sampleRate) / minFreq)
	}
	return minLag, maxLag
}

func (a *Autocorrelation) Method() Method {
	return MethodAutocorrelation
}

// Estimate searches the configured lag range over samples.
func (a *Autocorrelation) Estimate(samples []int16, sampleRate int) Estimate {
	a.lastStrength = 0

	n := len(samples)
	if n < 2 || sampleRate <= 0 {
		return NoPitch
	}

	minLag, maxLag := LagRange(sampleRate, a.params.MinFreq, a.params.MaxFreq)
	maxLag = min(maxLag, n-1)
	if minLag > maxLag {
		return NoPitch
	}

	a.scratch = common.Int16ToFloat64(a.scratch, samples)
	x := a.scratch

	var sums []float64
	if a.params.UseFFT {
		sums = a.fft.LagCorrelation(x, maxLag)
	}

	bestLag := 0
	bestSum := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var sum float64
		if sums != nil {
			sum = sums[lag]
		} else {
			sum = floats.Dot(x[:n-lag], x[lag:])
		}
		if sum > bestSum {
			bestSum = sum
			bestLag = lag
		}
	}

	a.lastStrength = bestSum
	if bestLag == 0 || bestSum < a.params.MinStrength {
		return NoPitch
	}
	return Pitch(float64(sampleRate) / float64(bestLag))
}

// Strength returns the winning correlation sum of the last call, 0 when no
// lag produced a positive sum.
func (a *Autocorrelation) Strength() float64 {
	return a.lastStrength
}
