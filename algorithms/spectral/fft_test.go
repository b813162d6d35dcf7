package spectral

import (
	"math"
	"testing"
)

func directLagCorrelation(x []float64, maxLag int) []float64 {
	out := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag && lag < len(x); lag++ {
		sum := 0.0
		for i := 0; i+lag < len(x); i++ {
			sum += x[i] * x[i+lag]
		}
		out[lag] = sum
	}
	return out
}

func TestLagCorrelationMatchesDirect(t *testing.T) {
	x := make([]float64, 300)
	for i := range x {
		x[i] = 1000*math.Sin(2*math.Pi*float64(i)/37) + 300*math.Cos(2*math.Pi*float64(i)/11)
	}

	for _, maxLag := range []int{0, 10, 150, 299, 400} {
		got := NewFFT().LagCorrelation(x, maxLag)
		want := directLagCorrelation(x, maxLag)
		if len(got) != maxLag+1 {
			t.Fatalf("maxLag %d: len = %d", maxLag, len(got))
		}
		for lag := range want {
			tol := 1e-6 * math.Max(1, math.Abs(want[0]))
			if math.Abs(got[lag]-want[lag]) > tol {
				t.Fatalf("maxLag %d lag %d: got %v, want %v", maxLag, lag, got[lag], want[lag])
			}
		}
	}
}

func TestLagCorrelationEmpty(t *testing.T) {
	if got := NewFFT().LagCorrelation(nil, 10); len(got) != 0 {
		t.Errorf("empty input produced %d lags", len(got))
	}
}
