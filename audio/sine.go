package audio

import "math"

// Sine renders n samples of a sine wave at freq Hz with the given peak
// amplitude, clipped to the 16-bit range.
func Sine(freq, amplitude float64, sampleRate, n int) []int16 {
	out := make([]int16, max(n, 0))
	for i := range out {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		out[i] = clip16(v)
	}
	return out
}

func clip16(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}
