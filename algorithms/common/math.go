package common

import (
	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/pitchscope/audio"
)

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

// Int16ToFloat64 widens 16-bit samples into dst without rescaling and
// returns the filled prefix. dst is grown when too short.
func Int16ToFloat64(dst []float64, src []int16) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// NormalizedWaveform returns the first n samples of src scaled to [-1, 1)
// by the 16-bit full scale. The result never aliases src.
func NormalizedWaveform(src []int16, n int) []float64 {
	n = min(max(n, 0), len(src))
	out := Int16ToFloat64(nil, src[:n])
	floats.Scale(1/audio.MaxSampleMagnitude, out)
	return out
}
