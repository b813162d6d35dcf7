package spectral

import (
	"github.com/mjibson/go-dsp/fft"

	"github.com/RyanBlaney/pitchscope/algorithms/common"
)

// FFT provides Fast Fourier Transform functionality backed by
// mjibson/go-dsp.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the forward transform of a real signal.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeInverseReal computes the inverse transform and keeps the real part.
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}
	return realResult
}

// LagCorrelation returns r[L] = sum_{i<n-L} x[i]*x[i+L] for L in
// [0, maxLag] using the Wiener-Khinchin relation. The signal is zero padded
// to at least n+maxLag so circular wrap-around never reaches a requested
// lag. Lags at or beyond len(x) are zero.
func (f *FFT) LagCorrelation(x []float64, maxLag int) []float64 {
	if len(x) == 0 || maxLag < 0 {
		return []float64{}
	}

	size := common.NextPowerOfTwo(len(x) + maxLag)
	padded := make([]float64, size)
	copy(padded, x)

	spectrum := f.Compute(padded)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}

	full := f.ComputeInverseReal(spectrum)
	out := make([]float64, maxLag+1)
	copy(out, full[:min(maxLag+1, len(x))])
	return out
}
