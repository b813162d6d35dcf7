package temporal

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/pitchscope/algorithms/common"
	"github.com/RyanBlaney/pitchscope/audio"
)

// Energy computes the normalized RMS energy of 16-bit frames. It keeps a
// widening buffer between calls and is therefore not safe for concurrent
// use.
type Energy struct {
	scratch []float64
}

// NewEnergy creates a new energy calculator
func NewEnergy() *Energy {
	return &Energy{}
}

// RMS returns the root-mean-square of samples on the native 16-bit scale.
// An empty slice has zero energy.
func (e *Energy) RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	e.scratch = common.Int16ToFloat64(e.scratch, samples)
	sumSquares := floats.Dot(e.scratch, e.scratch)
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// Normalized returns RMS divided by the 16-bit full scale, clamped to [0, 1].
func (e *Energy) Normalized(samples []int16) float64 {
	return common.Clamp(e.RMS(samples)/audio.MaxSampleMagnitude, 0, 1)
}

// RawToNormalized converts a threshold expressed on the native 16-bit RMS
// scale (e.g. 1200) to the normalized 0..1 scale used by VolumeGate.
func RawToNormalized(raw float64) float64 {
	return raw / audio.MaxSampleMagnitude
}
