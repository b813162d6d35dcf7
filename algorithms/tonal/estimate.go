package tonal

import (
	"fmt"
	"math"
)

// NoPitchHz is the value reported to consumers when a frame carries no
// pitch. Valid estimates are always strictly positive, so zero is never
// ambiguous.
const NoPitchHz = 0.0

// Estimate is the tagged outcome of pitch estimation for one frame: either
// NoPitch or a positive, finite frequency in Hz.
type Estimate struct {
	hz float64
}

// NoPitch marks silence, a rejected estimate or the absence of a candidate.
var NoPitch = Estimate{}

// Pitch tags hz as a valid estimate. Non-positive, NaN and infinite values
// collapse to NoPitch.
func Pitch(hz float64) Estimate {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return NoPitch
	}
	return Estimate{hz: hz}
}

// Valid reports whether the estimate carries a frequency.
func (e Estimate) Valid() bool {
	return e.hz > 0
}

// Hz returns the frequency, or NoPitchHz when the estimate is not valid.
func (e Estimate) Hz() float64 {
	if !e.Valid() {
		return NoPitchHz
	}
	return e.hz
}

func (e Estimate) String() string {
	if !e.Valid() {
		return "no pitch"
	}
	return fmt.Sprintf("%.2f Hz", e.hz)
}
